package engine

import (
	"context"
	"strings"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/pool"
	"db-portal/internal/schema"
	"db-portal/internal/value"
)

const (
	DefaultLimit   = 1000
	DefaultMaxRows = 10000
)

// Limits bounds how many rows a read may return.
type Limits struct {
	DefaultLimit int
	MaxRows      int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultLimit <= 0 {
		l.DefaultLimit = DefaultLimit
	}
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	if l.DefaultLimit > l.MaxRows {
		l.DefaultLimit = l.MaxRows
	}
	return l
}

// clamp resolves a caller's limit: zero or negative means the default,
// anything above the maximum is cut down to it.
func (l Limits) clamp(limit int) int {
	if limit <= 0 {
		return l.DefaultLimit
	}
	if limit > l.MaxRows {
		return l.MaxRows
	}
	return limit
}

// CreateResult is the outcome of an insert. Key is the generated or
// supplied primary key, Null when the table has none.
type CreateResult struct {
	Key          value.Value `json:"key"`
	RowsAffected int64       `json:"rows_affected"`
}

// Repository runs CRUD statements against validated table descriptors.
// Values are always bound; identifiers come from descriptors or pass the
// validator before they are quoted into SQL text.
type Repository struct {
	pool      *pool.Manager
	dialect   dialect.Dialect
	validator *schema.Validator
	limits    Limits
}

func NewRepository(p *pool.Manager, d dialect.Dialect, v *schema.Validator, limits Limits) *Repository {
	return &Repository{pool: p, dialect: d, validator: v, limits: limits.withDefaults()}
}

func (r *Repository) Limits() Limits { return r.limits }

func (r *Repository) table(t *schema.Table) string {
	return dialect.Qualify(r.dialect, t.Schema, t.Name)
}

// columns validates every column of row against t and returns the catalog
// names with values coerced to each column's kind.
func (r *Repository) columns(t *schema.Table, row value.Row) ([]string, []value.Value, error) {
	var (
		cols []string
		vals []value.Value
		seen = make(map[string]bool, row.Len())
		err  error
	)
	row.Each(func(name string, v value.Value) {
		if err != nil {
			return
		}
		var c *schema.Column
		if c, err = r.validator.ValidateColumn(t, name); err != nil {
			return
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			err = dberr.New(dberr.KindInvalidArgument, name)
			return
		}
		seen[key] = true
		cols = append(cols, c.Name)
		vals = append(vals, value.Coerce(v, c.Kind))
	})
	return cols, vals, err
}

func columnTypes(t *schema.Table) []string {
	types := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		types[i] = c.DataType
	}
	return types
}

// Create inserts row, listing exactly the supplied columns.
func (r *Repository) Create(ctx context.Context, t *schema.Table, row value.Row) (CreateResult, error) {
	if row.Len() == 0 {
		return CreateResult{}, dberr.New(dberr.KindInvalidArgument, t.Name)
	}
	cols, vals, err := r.columns(t, row)
	if err != nil {
		return CreateResult{}, err
	}

	pk := t.PrimaryKey()
	var (
		supplied  = value.Null()
		returning string
	)
	if pk != nil {
		if v, ok := row.Lookup(pk.Name); ok {
			supplied = value.Coerce(v, pk.Kind)
		} else {
			returning = pk.Name
		}
	}

	q, returnsKey := r.dialect.InsertQuery(r.table(t), cols, returning)
	res := CreateResult{Key: supplied}
	err = r.pool.With(ctx, func(c *pool.Conn) error {
		if returnsKey {
			var raw any
			err := c.QueryRowxContext(ctx, q, bindArgs(vals)...).Scan(&raw)
			if fb, ok := r.dialect.(dialect.InsertFallback); ok && err != nil && pk.IsAutoInc {
				if alt := fb.FallbackInsertQuery(r.table(t), cols, err); alt != "" {
					err = c.QueryRowxContext(ctx, alt, bindArgs(vals)...).Scan(&raw)
				}
			}
			if err != nil {
				return err
			}
			res.Key = r.dialect.DecodeValue(raw, pk.DataType)
			res.RowsAffected = 1
			return nil
		}
		out, err := c.ExecContext(ctx, q, bindArgs(vals)...)
		if err != nil {
			return err
		}
		if res.RowsAffected, err = out.RowsAffected(); err != nil {
			return err
		}
		if returning != "" && pk.IsAutoInc {
			if id, err := out.LastInsertId(); err == nil && id != 0 {
				res.Key = value.Int(id)
			}
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, dbErr(t.Name, err)
	}
	return res, nil
}

// ReadAll returns up to limit rows of t; see Limits for how limit resolves.
func (r *Repository) ReadAll(ctx context.Context, t *schema.Table, limit int) ([]value.Row, error) {
	q := dialect.SelectQuery(r.dialect, r.table(t), t.ColumnNames(), "", r.limits.clamp(limit))

	var out []value.Row
	err := r.pool.With(ctx, func(c *pool.Conn) error {
		rows, err := c.QueryxContext(ctx, q)
		if err != nil {
			return err
		}
		out, _, err = scanRows(rows, r.dialect, columnTypes(t), 0)
		return err
	})
	if err != nil {
		return nil, dbErr(t.Name, err)
	}
	return out, nil
}

// keyPredicate builds "col = ?" for a validated key column. A bare date
// against a date/time column compares on the date part only.
func (r *Repository) keyPredicate(c *schema.Column, key value.Value, index int) (string, value.Value) {
	col := r.dialect.QuoteIdent(c.Name)
	if c.Kind == value.KindTime && key.Kind() == value.KindString && value.IsDateOnly(key.Text()) {
		col = r.dialect.DateOnly(col)
	}
	return col + " = " + r.dialect.Placeholder(index), value.Coerce(key, c.Kind)
}

// ReadByKey returns the first row whose keyColumn equals key, or NotFound.
func (r *Repository) ReadByKey(ctx context.Context, t *schema.Table, keyColumn string, key value.Value) (value.Row, error) {
	c, err := r.validator.ValidateColumn(t, keyColumn)
	if err != nil {
		return value.Row{}, err
	}
	where, arg := r.keyPredicate(c, key, 0)
	q := dialect.SelectQuery(r.dialect, r.table(t), t.ColumnNames(), where, 1)

	var out []value.Row
	err = r.pool.With(ctx, func(conn *pool.Conn) error {
		rows, err := conn.QueryxContext(ctx, q, arg)
		if err != nil {
			return err
		}
		out, _, err = scanRows(rows, r.dialect, columnTypes(t), 1)
		return err
	})
	if err != nil {
		return value.Row{}, dbErr(t.Name, err)
	}
	if len(out) == 0 {
		return value.Row{}, dberr.New(dberr.KindNotFound, t.Name)
	}
	return out[0], nil
}

// Update sets the columns present in patch on the rows matching key and
// returns how many rows changed. An empty patch fails before any I/O.
func (r *Repository) Update(ctx context.Context, t *schema.Table, keyColumn string, key value.Value, patch value.Row) (int64, error) {
	if patch.Len() == 0 {
		return 0, dberr.New(dberr.KindNoFieldsToUpdate, t.Name)
	}
	c, err := r.validator.ValidateColumn(t, keyColumn)
	if err != nil {
		return 0, err
	}
	cols, vals, err := r.columns(t, patch)
	if err != nil {
		return 0, err
	}
	q := dialect.UpdateQuery(r.dialect, r.table(t), cols, c.Name)
	vals = append(vals, value.Coerce(key, c.Kind))
	return r.exec(ctx, t, q, vals)
}

// Delete removes the rows matching key and returns how many went.
func (r *Repository) Delete(ctx context.Context, t *schema.Table, keyColumn string, key value.Value) (int64, error) {
	c, err := r.validator.ValidateColumn(t, keyColumn)
	if err != nil {
		return 0, err
	}
	q := dialect.DeleteQuery(r.dialect, r.table(t), c.Name)
	return r.exec(ctx, t, q, []value.Value{value.Coerce(key, c.Kind)})
}

func (r *Repository) exec(ctx context.Context, t *schema.Table, q string, vals []value.Value) (int64, error) {
	var affected int64
	err := r.pool.With(ctx, func(c *pool.Conn) error {
		res, err := c.ExecContext(ctx, q, bindArgs(vals)...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, dbErr(t.Name, err)
	}
	return affected, nil
}
