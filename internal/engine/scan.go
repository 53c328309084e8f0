package engine

import (
	"context"
	"errors"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/value"

	"github.com/jmoiron/sqlx"
)

// scanRows drains rows into ordered Rows, decoding each cell with the
// dialect. dbTypes gives the declared type per result column; when nil the
// driver's column types are used. A positive max caps the result and the
// second return value reports whether rows were left unread.
func scanRows(rows *sqlx.Rows, d dialect.Dialect, dbTypes []string, max int) ([]value.Row, bool, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}
	if dbTypes == nil {
		types, err := rows.ColumnTypes()
		if err != nil {
			return nil, false, err
		}
		dbTypes = make([]string, len(types))
		for i, ct := range types {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	out := []value.Row{}
	for rows.Next() {
		if max > 0 && len(out) >= max {
			return out, true, nil
		}
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, false, err
		}
		var r value.Row
		for i, c := range cols {
			var t string
			if i < len(dbTypes) {
				t = dbTypes[i]
			}
			r.Set(c, d.DecodeValue(raw[i], t))
		}
		out = append(out, r)
	}
	return out, false, rows.Err()
}

// dbErr maps a failure from the database round trip onto the taxonomy.
// Typed errors pass through; a context that ran out becomes Timeout; any
// other driver error is wrapped so its text stays server side.
func dbErr(ident string, err error) error {
	if err == nil {
		return nil
	}
	var typed *dberr.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dberr.Wrap(dberr.KindTimeout, ident, err)
	}
	return dberr.Wrap(dberr.KindDatabaseExecutionFailure, ident, err)
}

func bindArgs(vals []value.Value) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}
