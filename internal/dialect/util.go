package dialect

import (
	"fmt"
	"strings"
	"time"

	"db-portal/internal/sqlscan"
	"db-portal/internal/value"

	"github.com/shopspring/decimal"
)

// GeneratePlaceholders is a helper function to create a slice of placeholder strings.
// It takes the number of placeholders needed and a function that returns the placeholder for a given index.
// It returns a comma-separated string of the generated placeholders.
func GeneratePlaceholders(count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(i)
	}
	return strings.Join(placeholders, ", ")
}

// QuoteWith wraps name in l and r, doubling any embedded r.
func QuoteWith(name string, l, r byte) string {
	escaped := strings.ReplaceAll(name, string(r), string([]byte{r, r}))
	return string(l) + escaped + string(r)
}

// Qualify returns the quoted schema.table form, or just the quoted name
// when schema is empty.
func Qualify(d Dialect, schema, name string) string {
	if schema == "" {
		return d.QuoteIdent(name)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(name)
}

// QuoteList quotes every column name and joins them with ", ".
func QuoteList(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// SelectQuery builds SELECT cols FROM table [WHERE where], limited when limit > 0.
func SelectQuery(d Dialect, table string, cols []string, where string, limit int) string {
	q := fmt.Sprintf("SELECT %s FROM %s", QuoteList(d, cols), table)
	if where != "" {
		q += " WHERE " + where
	}
	if limit > 0 {
		q = d.LimitQuery(q, limit)
	}
	return q
}

// UpdateQuery builds UPDATE table SET a = ?, b = ? WHERE key = ?. The key
// placeholder follows the SET placeholders.
func UpdateQuery(d Dialect, table string, cols []string, key string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = d.QuoteIdent(c) + " = " + d.Placeholder(i)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		table, strings.Join(sets, ", "), d.QuoteIdent(key), d.Placeholder(len(cols)))
}

func DeleteQuery(d Dialect, table string, key string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, d.QuoteIdent(key), d.Placeholder(0))
}

func defaultInsert(d Dialect, table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, QuoteList(d, cols), vals)
}

// DefaultNormalizeType is a default implementation for type normalization (lowercase).
func DefaultNormalizeType(sqlType string) string {
	return strings.ToLower(strings.TrimSpace(sqlType))
}

// DefaultDecodeValue converts what database/sql scanned into a Value. Drivers
// hand back exact numerics and most text as []byte, so the declared database
// type decides whether bytes are text, a number or genuine binary.
func DefaultDecodeValue(raw any, dbType string) value.Value {
	switch x := raw.(type) {
	case nil:
		return value.Null()
	case []byte:
		return decodeBytes(x, dbType)
	case string:
		if isBinaryType(dbType) {
			return value.String(x)
		}
		return decodeBytes([]byte(x), dbType)
	case time.Time:
		return value.Time(x)
	}
	v, err := value.Of(raw)
	if err != nil {
		return value.String(fmt.Sprint(raw))
	}
	return v
}

func decodeBytes(b []byte, dbType string) value.Value {
	switch {
	case isBinaryType(dbType):
		return value.Binary(b)
	case isNumericType(dbType):
		if d, err := decimal.NewFromString(string(b)); err == nil {
			return value.Number(d)
		}
	case isBoolType(dbType):
		if len(b) == 1 && b[0] <= 1 {
			return value.Bool(b[0] == 1)
		}
		switch string(b) {
		case "1", "t", "true":
			return value.Bool(true)
		case "0", "f", "false":
			return value.Bool(false)
		}
	case isTimeType(dbType):
		if t, ok := value.ParseTime(string(b)); ok {
			return value.Time(t)
		}
	}
	return value.String(string(b))
}

func isNumericType(t string) bool {
	switch strings.ToUpper(t) {
	case "DECIMAL", "NUMERIC", "NUMBER", "MONEY", "SMALLMONEY",
		"INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT",
		"INT2", "INT4", "INT8", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL",
		"UNSIGNED INT", "UNSIGNED BIGINT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT",
		"UNSIGNED MEDIUMINT", "BINARY_FLOAT", "BINARY_DOUBLE":
		return true
	}
	return false
}

func isBinaryType(t string) bool {
	switch strings.ToUpper(t) {
	case "BINARY", "VARBINARY", "IMAGE", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "RAW", "LONG RAW":
		return true
	}
	return false
}

func isBoolType(t string) bool {
	switch strings.ToUpper(t) {
	case "BOOL", "BOOLEAN", "BIT":
		return true
	}
	return false
}

func isTimeType(t string) bool {
	switch strings.ToUpper(t) {
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIME", "TIMETZ":
		return true
	}
	return false
}

// LexOptions returns the sqlscan settings matching d's quoting rules.
func LexOptions(d Dialect) sqlscan.Options {
	switch d.Engine() {
	case MySQL:
		return sqlscan.Options{BackslashEscapes: true}
	case SQLServer:
		return sqlscan.Options{BracketIdents: true}
	default:
		return sqlscan.Options{}
	}
}
