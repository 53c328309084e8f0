package schema

import (
	"strings"

	"db-portal/internal/value"
)

// exact names that the substring rules below would misfile
var kindOverrides = map[string]value.Kind{
	"interval": value.KindString,
	"point":    value.KindString,
	"uuid":     value.KindString,
	"json":     value.KindString,
	"jsonb":    value.KindString,
	"bit":      value.KindBool,
	"bool":     value.KindBool,
	"boolean":  value.KindBool,
}

// KindForType maps a normalized column type to the scalar kind that string
// inputs for the column are coerced to.
func KindForType(dataType string) value.Kind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	if k, ok := kindOverrides[t]; ok {
		return k
	}
	switch {
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "bytea", t == "image", strings.HasSuffix(t, "raw"):
		return value.KindBinary
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return value.KindTime
	case strings.Contains(t, "int"), strings.Contains(t, "decimal"), strings.Contains(t, "numeric"),
		strings.Contains(t, "number"), strings.Contains(t, "float"), strings.Contains(t, "double"),
		strings.Contains(t, "real"), strings.Contains(t, "money"), strings.Contains(t, "serial"):
		return value.KindNumber
	default:
		return value.KindString
	}
}
