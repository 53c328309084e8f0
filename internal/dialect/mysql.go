package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"db-portal/internal/value"

	"github.com/go-sql-driver/mysql"
)

type MysqlDialect struct{}

func (d *MysqlDialect) Engine() Engine { return MySQL }
func (d *MysqlDialect) DriverName() string { return "mysql" }

// Open parses the DSN with the driver's parser so a malformed one fails at startup.
func (d *MysqlDialect) Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	// DATE/DATETIME come back as time.Time instead of []byte
	cfg.ParseTime = true
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func (d *MysqlDialect) IsBrokenConn(err error) bool {
	return errors.Is(err, mysql.ErrInvalidConn)
}

func (d *MysqlDialect) QuoteIdent(name string) string { return QuoteWith(name, '`', '`') }

func (d *MysqlDialect) Placeholder(index int) string {
	return "?"
}

func (d *MysqlDialect) NamedPlaceholder(string) string { return "" }
func (d *MysqlDialect) NamedProcArgs() bool { return false }

// OUT/INOUT values would need session variables and a second SELECT.
func (d *MysqlDialect) OutParams(bool) OutParamPolicy { return OutUnsupported }

func (d *MysqlDialect) CallArgsByName(bool) bool { return false }
func (d *MysqlDialect) CallReturnsRows(bool) bool { return true }

// MySQL has no schema separate from the database; DefaultSchema is resolved
// at runtime through CurrentSchemaQuery.
func (d *MysqlDialect) DefaultSchema() string { return "" }

func (d *MysqlDialect) CurrentSchemaQuery() string { return `SELECT DATABASE()` }

func (d *MysqlDialect) TablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MysqlDialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY, EXTRA FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
}

func (d *MysqlDialect) ForeignKeysQuery() string {
	return `SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL`
}

func (d *MysqlDialect) RoutineQuery() string {
	return `SELECT ROUTINE_TYPE, COALESCE(DATA_TYPE, '') FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? AND ROUTINE_NAME = ?`
}

// ORDINAL_POSITION 0 is a function's return value.
func (d *MysqlDialect) ProcedureParamsQuery() string {
	return `SELECT COALESCE(PARAMETER_NAME, ''), COALESCE(PARAMETER_MODE, 'IN'), DATA_TYPE, 0 FROM information_schema.PARAMETERS WHERE SPECIFIC_SCHEMA = ? AND SPECIFIC_NAME = ? AND ORDINAL_POSITION > 0 ORDER BY ORDINAL_POSITION`
}

func (d *MysqlDialect) DiagnosticsQuery() string {
	return `SELECT DATABASE() AS database_name, DATABASE() AS schema_name, VERSION() AS server_version, CURRENT_USER() AS current_user_name`
}

func (d *MysqlDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

// MySQL has no RETURNING; the generated key comes from LastInsertId.
func (d *MysqlDialect) InsertQuery(table string, cols []string, _ string) (string, bool) {
	return defaultInsert(d, table, cols), false
}

func (d *MysqlDialect) CallQuery(spec CallSpec) string {
	markers := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		markers[i] = a.Marker
	}
	if spec.Function {
		return fmt.Sprintf("SELECT %s(%s) AS %s", spec.Name, strings.Join(markers, ", "), d.QuoteIdent("result"))
	}
	return fmt.Sprintf("CALL %s(%s)", spec.Name, strings.Join(markers, ", "))
}

func (d *MysqlDialect) DateOnly(expr string) string {
	return "DATE(" + expr + ")"
}

func (d *MysqlDialect) ExplainStatements(query string) ([]string, int) {
	return []string{"EXPLAIN " + query}, 0
}

func (d *MysqlDialect) NormalizeType(sqlType string) string {
	return DefaultNormalizeType(sqlType)
}

func (d *MysqlDialect) DecodeValue(raw any, dbType string) value.Value {
	return DefaultDecodeValue(raw, dbType)
}
