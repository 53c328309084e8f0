package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/pool"
	"db-portal/internal/schema"
	"db-portal/internal/sqlscan"
	"db-portal/internal/value"
)

// Result is the outcome of a raw statement. Statements that return rows
// fill Rows and report their count in RowsAffected.
type Result struct {
	Rows         []value.Row `json:"rows,omitempty"`
	RowsAffected int64       `json:"rows_affected"`
	Truncated    bool        `json:"truncated,omitempty"`
}

var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"VALUES":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
}

var readOnlyKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// writeKeywords may not appear anywhere in a read-only statement, which
// catches data-modifying CTEs and locking reads.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"UPSERT":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"GRANT":    true,
	"REVOKE":   true,
	"EXEC":     true,
	"EXECUTE":  true,
	"CALL":     true,
	"INTO":     true,
}

// Executor runs caller-written SQL with @name parameters. The statement's
// structure is trusted; its values never reach the text.
type Executor struct {
	pool      *pool.Manager
	dialect   dialect.Dialect
	validator *schema.Validator
	maxRows   int
	readOnly  bool
}

func NewExecutor(p *pool.Manager, d dialect.Dialect, v *schema.Validator, maxRows int, readOnly bool) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{pool: p, dialect: d, validator: v, maxRows: maxRows, readOnly: readOnly}
}

// prepare runs every client-side check and returns the rewritten statement.
// text must hold exactly one statement; a trailing ';' is allowed.
func (e *Executor) prepare(text string, params map[string]value.Value) (string, string, []any, error) {
	kw := sqlscan.FirstKeyword(text)
	if kw == "" {
		return "", "", nil, dberr.New(dberr.KindInvalidArgument, "sql")
	}
	stmts := sqlscan.Statements(text, dialect.LexOptions(e.dialect))
	if len(stmts) > 1 {
		return "", "", nil, dberr.New(dberr.KindStatementNotAllowed, ";")
	}
	if e.readOnly {
		if !readOnlyKeywords[kw] {
			return "", "", nil, dberr.New(dberr.KindStatementNotAllowed, kw)
		}
		for _, tok := range stmts[0] {
			if w := strings.ToUpper(tok.Value); tok.Type == sqlscan.Word && writeKeywords[w] {
				return "", "", nil, dberr.New(dberr.KindStatementNotAllowed, w)
			}
		}
	}
	if e.validator != nil {
		if err := e.validator.CheckStatement(text); err != nil {
			return "", "", nil, err
		}
	}
	q, args, err := BindNamed(e.dialect, text, params)
	if err != nil {
		return "", "", nil, err
	}
	return kw, q, args, nil
}

// Execute runs text once. Row results are capped at the configured maximum.
func (e *Executor) Execute(ctx context.Context, text string, params map[string]value.Value) (Result, error) {
	kw, q, args, err := e.prepare(text, params)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.pool.With(ctx, func(c *pool.Conn) error {
		if rowKeywords[kw] {
			rows, err := c.QueryxContext(ctx, q, args...)
			if err != nil {
				return err
			}
			if res.Rows, res.Truncated, err = scanRows(rows, e.dialect, nil, e.maxRows); err != nil {
				return err
			}
			res.RowsAffected = int64(len(res.Rows))
			return nil
		}
		out, err := c.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		res.RowsAffected, err = out.RowsAffected()
		return err
	})
	if err != nil {
		return Result{}, dbErr("query", err)
	}
	return res, nil
}

// Validate performs the checks Execute would, then has the engine compile
// the statement without running it.
func (e *Executor) Validate(ctx context.Context, text string, params map[string]value.Value) error {
	_, q, args, err := e.prepare(text, params)
	if err != nil {
		return err
	}
	stmts, target := e.dialect.ExplainStatements(q)

	err = e.pool.With(ctx, func(c *pool.Conn) error {
		var first error
		for i, s := range stmts {
			var err error
			if i == target {
				_, err = c.ExecContext(ctx, s, args...)
			} else {
				_, err = c.ExecContext(ctx, s)
			}
			switch {
			case err == nil:
			case i > target:
				// session state may be left behind; never reuse this conn
				return errors.Join(driver.ErrBadConn, err)
			case first == nil:
				first = err
			}
			if first != nil && i < target {
				return first
			}
		}
		return first
	})
	return dbErr("query", err)
}

// Diagnostics runs the dialect's server identification query and returns
// its single row.
func (e *Executor) Diagnostics(ctx context.Context) (value.Row, error) {
	var rows []value.Row
	err := e.pool.With(ctx, func(c *pool.Conn) error {
		rs, err := c.QueryxContext(ctx, e.dialect.DiagnosticsQuery())
		if err != nil {
			return err
		}
		rows, _, err = scanRows(rs, e.dialect, nil, 1)
		return err
	})
	if err != nil {
		return value.Row{}, dbErr("diagnostics", err)
	}
	if len(rows) == 0 {
		return value.Row{}, dberr.New(dberr.KindNotFound, "diagnostics")
	}
	return rows[0], nil
}
