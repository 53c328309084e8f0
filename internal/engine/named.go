package engine

import (
	"database/sql"
	"strings"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/sqlscan"
	"db-portal/internal/value"
)

// paramKey normalizes a parameter name: leading '@' dropped, case folded.
func paramKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

func normalizeParams(params map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(params))
	for k, v := range params {
		out[paramKey(k)] = v
	}
	return out
}

// BindNamed rewrites every @name token of text into d's native parameter
// form and returns the matching driver arguments. Tokens inside literals,
// quoted identifiers and comments are left alone, as are @@ system
// variables. A token without an entry in params fails with
// MissingParameter; entries the text never mentions are ignored.
//
// Numbered dialects reuse one number per distinct name, anonymous '?'
// dialects repeat the value per occurrence, and engines with native named
// binding receive sql.Named arguments.
func BindNamed(d dialect.Dialect, text string, params map[string]value.Value) (string, []any, error) {
	lookup := normalizeParams(params)
	numbered := d.Placeholder(0) != d.Placeholder(1)

	var (
		b       strings.Builder
		args    []any
		last    int
		markers = map[string]string{}
	)
	for _, tok := range sqlscan.Tokenize(text, dialect.LexOptions(d)) {
		if tok.Type != sqlscan.Param {
			continue
		}
		key := paramKey(tok.Value)
		v, ok := lookup[key]
		if !ok {
			return "", nil, dberr.New(dberr.KindMissingParameter, tok.Value)
		}

		b.WriteString(text[last:tok.Pos])
		last = tok.End

		if m, seen := markers[key]; seen && numbered {
			b.WriteString(m)
			continue
		}
		var marker string
		if named := d.NamedPlaceholder(tok.Value); named != "" {
			marker = named
			args = append(args, sql.Named(tok.Value, v))
		} else {
			marker = d.Placeholder(len(args))
			args = append(args, v)
		}
		markers[key] = marker
		b.WriteString(marker)
	}
	b.WriteString(text[last:])
	return b.String(), args, nil
}
