package engine

import (
	"context"
	"database/sql"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/pool"
	"db-portal/internal/schema"
	"db-portal/internal/value"
)

// ProcedureExecutor calls stored procedures and functions with a named
// argument map, mapped onto the parameter list read from the catalog.
type ProcedureExecutor struct {
	pool      *pool.Manager
	dialect   dialect.Dialect
	validator *schema.Validator
	maxRows   int
}

func NewProcedureExecutor(p *pool.Manager, d dialect.Dialect, v *schema.Validator, maxRows int) *ProcedureExecutor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &ProcedureExecutor{pool: p, dialect: d, validator: v, maxRows: maxRows}
}

// slot is one parameter position in the call text.
type slot struct {
	param  *schema.Param
	val    value.Value
	absent bool // optional IN parameter the caller left out
}

// Plan validates name and args and renders the call without running it.
func (e *ProcedureExecutor) Plan(ctx context.Context, name string, args map[string]value.Value) (*schema.Procedure, string, []any, error) {
	proc, err := e.validator.ValidateProcedure(ctx, name)
	if err != nil {
		return nil, "", nil, err
	}

	given := make(map[string]value.Value, len(args))
	for k, v := range args {
		prm, ok := proc.Param(k)
		if !ok || prm.Mode == schema.ModeOut {
			return nil, "", nil, dberr.New(dberr.KindArgumentMismatch, k)
		}
		if _, dup := given[prm.Name]; dup {
			return nil, "", nil, dberr.New(dberr.KindArgumentMismatch, k)
		}
		given[prm.Name] = value.Coerce(v, prm.Kind)
	}

	fn := proc.IsFunction()
	policy := e.dialect.OutParams(fn)
	if proc.HasOutput() && policy == dialect.OutUnsupported {
		return nil, "", nil, dberr.New(dberr.KindDialectUnsupportedOperation, proc.Name)
	}
	byName := e.dialect.CallArgsByName(fn)

	var slots []slot
	for _, prm := range proc.Params {
		v, supplied := given[prm.Name]
		switch {
		case supplied:
			slots = append(slots, slot{param: prm, val: v})
		case prm.Required:
			return nil, "", nil, dberr.New(dberr.KindArgumentMismatch, prm.Name)
		case prm.Mode != schema.ModeIn:
			if policy == dialect.OutBindNull {
				slots = append(slots, slot{param: prm, val: value.Null()})
			}
		case !byName:
			slots = append(slots, slot{param: prm, absent: true})
		}
	}

	q, bound := e.render(proc, slots)
	return proc, q, bound, nil
}

// render builds the call text. Positional calls drop trailing optional
// slots; an optional slot followed by a bound one gets DEFAULT where the
// engine binds by name natively, NULL otherwise.
func (e *ProcedureExecutor) render(proc *schema.Procedure, slots []slot) (string, []any) {
	named := e.dialect.NamedProcArgs()
	for len(slots) > 0 && slots[len(slots)-1].absent && !named {
		slots = slots[:len(slots)-1]
	}

	spec := dialect.CallSpec{
		Name:         dialect.Qualify(e.dialect, proc.Schema, proc.Name),
		Function:     proc.IsFunction(),
		ReturnsTable: proc.ReturnsTable,
	}
	var args []any
	for _, s := range slots {
		arg := dialect.CallArg{Name: s.param.Name}
		switch {
		case named && s.absent:
			arg.Marker = "DEFAULT"
		case named:
			arg.Marker = e.dialect.NamedPlaceholder(s.param.Name)
			args = append(args, sql.Named(s.param.Name, s.val))
		default:
			arg.Marker = e.dialect.Placeholder(len(args))
			args = append(args, s.val)
		}
		spec.Args = append(spec.Args, arg)
	}
	return e.dialect.CallQuery(spec), args
}

// Call runs the routine and returns whatever rows it produces.
func (e *ProcedureExecutor) Call(ctx context.Context, name string, args map[string]value.Value) ([]value.Row, error) {
	proc, q, bound, err := e.Plan(ctx, name, args)
	if err != nil {
		return nil, err
	}

	out := []value.Row{}
	err = e.pool.With(ctx, func(c *pool.Conn) error {
		if !e.dialect.CallReturnsRows(proc.IsFunction()) {
			_, err := c.ExecContext(ctx, q, bound...)
			return err
		}
		rows, err := c.QueryxContext(ctx, q, bound...)
		if err != nil {
			return err
		}
		out, _, err = scanRows(rows, e.dialect, nil, e.maxRows)
		return err
	})
	if err != nil {
		return nil, dbErr(proc.Name, err)
	}
	return out, nil
}
