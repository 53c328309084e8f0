package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"db-portal/internal/value"

	"github.com/lib/pq"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Engine() Engine { return Postgres }
func (d *PostgresDialect) DriverName() string { return "postgres" }

// Open validates the DSN through pq's own parser before any connection is made.
func (d *PostgresDialect) Open(dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func (d *PostgresDialect) IsBrokenConn(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P01..57P03: admin shutdown / cannot connect now
		return strings.HasPrefix(string(pqErr.Code), "08") || strings.HasPrefix(string(pqErr.Code), "57P0")
	}
	return false
}

func (d *PostgresDialect) QuoteIdent(name string) string { return QuoteWith(name, '"', '"') }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

// pq has no named binding; names are rewritten to numbered markers.
func (d *PostgresDialect) NamedPlaceholder(string) string { return "" }
func (d *PostgresDialect) NamedProcArgs() bool { return false }

// Functions never take OUT slots; procedures (CALL) need one per OUT parameter.
func (d *PostgresDialect) OutParams(function bool) OutParamPolicy {
	if function {
		return OutSkip
	}
	return OutBindNull
}

func (d *PostgresDialect) CallArgsByName(bool) bool { return false }
func (d *PostgresDialect) CallReturnsRows(bool) bool { return true }

func (d *PostgresDialect) DefaultSchema() string { return "public" }

func (d *PostgresDialect) CurrentSchemaQuery() string { return `SELECT current_schema()` }

func (d *PostgresDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *PostgresDialect) ColumnsQuery() string {
	return `SELECT
    c.column_name,
    c.udt_name,
    c.is_nullable,
    COALESCE((SELECT 'PRI' FROM information_schema.table_constraints tc
     JOIN information_schema.key_column_usage kcu
       ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
     WHERE tc.constraint_type = 'PRIMARY KEY'
     AND kcu.table_schema = c.table_schema AND kcu.table_name = c.table_name AND kcu.column_name = c.column_name LIMIT 1), '') AS column_key,
    CASE WHEN c.is_identity = 'YES' THEN 'identity' ELSE COALESCE(c.column_default, '') END AS extra
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`
}

func (d *PostgresDialect) ForeignKeysQuery() string {
	return `SELECT kcu.table_name, kcu.column_name, ccu.table_name AS referenced_table_name, ccu.column_name AS referenced_column_name FROM information_schema.key_column_usage kcu JOIN information_schema.constraint_column_usage ccu ON kcu.constraint_name = ccu.constraint_name JOIN information_schema.table_constraints tc ON kcu.constraint_name = tc.constraint_name WHERE kcu.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'`
}

func (d *PostgresDialect) RoutineQuery() string {
	return `SELECT COALESCE(routine_type, 'FUNCTION'), COALESCE(data_type, '') FROM information_schema.routines WHERE routine_schema = $1 AND routine_name = $2 LIMIT 1`
}

func (d *PostgresDialect) ProcedureParamsQuery() string {
	return `SELECT
    COALESCE(p.parameter_name, ''),
    COALESCE(p.parameter_mode, 'IN'),
    p.data_type,
    CASE WHEN p.parameter_default IS NULL THEN 0 ELSE 1 END
FROM information_schema.parameters p
WHERE p.specific_schema = $1
AND p.specific_name = (
    SELECT r.specific_name FROM information_schema.routines r
    WHERE r.routine_schema = $1 AND r.routine_name = $2 LIMIT 1)
ORDER BY p.ordinal_position`
}

func (d *PostgresDialect) DiagnosticsQuery() string {
	return `SELECT current_database() AS database_name, current_schema() AS schema_name, version() AS server_version, current_user AS current_user_name`
}

func (d *PostgresDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *PostgresDialect) InsertQuery(table string, cols []string, returning string) (string, bool) {
	q := defaultInsert(d, table, cols)
	if returning == "" {
		return q, false
	}
	return q + " RETURNING " + d.QuoteIdent(returning), true
}

func (d *PostgresDialect) CallQuery(spec CallSpec) string {
	markers := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		markers[i] = a.Marker
	}
	if spec.Function {
		return fmt.Sprintf("SELECT * FROM %s(%s)", spec.Name, strings.Join(markers, ", "))
	}
	return fmt.Sprintf("CALL %s(%s)", spec.Name, strings.Join(markers, ", "))
}

func (d *PostgresDialect) DateOnly(expr string) string {
	return "CAST(" + expr + " AS DATE)"
}

func (d *PostgresDialect) ExplainStatements(query string) ([]string, int) {
	return []string{"EXPLAIN " + query}, 0
}

func (d *PostgresDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "int4", "int2":
		return "int"
	case "int8":
		return "bigint"
	case "float4":
		return "float"
	case "float8":
		return "double"
	case "bpchar":
		return "char"
	case "bool":
		return "boolean"
	case "timestamptz", "timestamp":
		return "timestamp"
	default:
		return t
	}
}

func (d *PostgresDialect) DecodeValue(raw any, dbType string) value.Value {
	return DefaultDecodeValue(raw, dbType)
}
