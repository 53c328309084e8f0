package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"db-portal/internal/value"

	mssql "github.com/denisenkom/go-mssqldb" // SQL Server Driver
)

type MSSQLDialect struct{}

// Helper: MSSQL Driver (go-mssqldb) prefers @p1, @p2 positional parameters
// and binds sql.Named arguments to @name markers natively.

func (d *MSSQLDialect) Engine() Engine { return SQLServer }
func (d *MSSQLDialect) DriverName() string { return "sqlserver" }

func (d *MSSQLDialect) Open(dsn string) (*sql.DB, error) {
	connector, err := mssql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid sqlserver dsn: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Severity 20 and above terminates the session on the server side.
func (d *MSSQLDialect) IsBrokenConn(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Class >= 20
	}
	return false
}

func (d *MSSQLDialect) QuoteIdent(name string) string { return QuoteWith(name, '[', ']') }

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) NamedPlaceholder(name string) string { return "@" + name }
func (d *MSSQLDialect) NamedProcArgs() bool { return true }

// OUTPUT parameters have no value to send; EXEC runs without them.
func (d *MSSQLDialect) OutParams(bool) OutParamPolicy { return OutSkip }

// EXEC takes @name = value pairs; function calls are positional.
func (d *MSSQLDialect) CallArgsByName(function bool) bool { return !function }
func (d *MSSQLDialect) CallReturnsRows(bool) bool { return true }

func (d *MSSQLDialect) DefaultSchema() string { return "dbo" }

func (d *MSSQLDialect) CurrentSchemaQuery() string { return `SELECT SCHEMA_NAME()` }

func (d *MSSQLDialect) TablesQuery() string {
	// Use @p1 for schema binding
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MSSQLDialect) ColumnsQuery() string {
	return `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END AS COLUMN_KEY,
			CASE
				WHEN COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity') = 1 THEN 'identity'
				ELSE COALESCE(c.COLUMN_DEFAULT, '')
			END AS EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.TABLE_SCHEMA, kcu.TABLE_NAME, kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA AND c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`
}

func (d *MSSQLDialect) ForeignKeysQuery() string {
	return `SELECT KCU1.TABLE_NAME, KCU1.COLUMN_NAME, KCU2.TABLE_NAME AS REF_TABLE, KCU2.COLUMN_NAME AS REF_COLUMN FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS RC JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU1 ON RC.CONSTRAINT_NAME = KCU1.CONSTRAINT_NAME JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE KCU2 ON RC.UNIQUE_CONSTRAINT_NAME = KCU2.CONSTRAINT_NAME AND KCU1.ORDINAL_POSITION = KCU2.ORDINAL_POSITION WHERE KCU1.TABLE_SCHEMA = @p1`
}

// DATA_TYPE is 'TABLE' for table-valued functions.
func (d *MSSQLDialect) RoutineQuery() string {
	return `SELECT ROUTINE_TYPE, COALESCE(DATA_TYPE, '') FROM INFORMATION_SCHEMA.ROUTINES WHERE ROUTINE_SCHEMA = @p1 AND ROUTINE_NAME = @p2`
}

// parameter_id 0 is a scalar function's return value.
func (d *MSSQLDialect) ProcedureParamsQuery() string {
	return `
		SELECT
			p.name,
			CASE WHEN p.is_output = 1 THEN 'INOUT' ELSE 'IN' END,
			TYPE_NAME(p.user_type_id),
			CAST(p.has_default_value AS INT)
		FROM sys.parameters p
		WHERE p.object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
			AND p.parameter_id > 0
		ORDER BY p.parameter_id
	`
}

func (d *MSSQLDialect) DiagnosticsQuery() string {
	return `SELECT DB_NAME() AS database_name, SCHEMA_NAME() AS schema_name, @@VERSION AS server_version, SUSER_SNAME() AS current_user_name`
}

func (d *MSSQLDialect) LimitQuery(query string, limit int) string {
	// Simple T-SQL TOP injection
	trimmed := strings.TrimSpace(query)
	if strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		// Generated queries always start with an upper-case SELECT.
		return strings.Replace(query, "SELECT", fmt.Sprintf("SELECT TOP %d", limit), 1)
	}
	return query
}

func (d *MSSQLDialect) InsertQuery(table string, cols []string, returning string) (string, bool) {
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	if returning == "" {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, QuoteList(d, cols), vals), false
	}
	return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		table, QuoteList(d, cols), d.QuoteIdent(returning), vals), true
}

// Msg 334: OUTPUT without INTO on a table with enabled triggers.
const errOutputWithTriggers = 334

func (d *MSSQLDialect) FallbackInsertQuery(table string, cols []string, err error) string {
	var msErr mssql.Error
	if !errors.As(err, &msErr) || msErr.Number != errOutputWithTriggers {
		return ""
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s); SELECT CAST(SCOPE_IDENTITY() AS BIGINT)",
		table, QuoteList(d, cols), GeneratePlaceholders(len(cols), d.Placeholder))
}

func (d *MSSQLDialect) CallQuery(spec CallSpec) string {
	if spec.Function {
		markers := make([]string, len(spec.Args))
		for i, a := range spec.Args {
			markers[i] = a.Marker
		}
		if spec.ReturnsTable {
			return fmt.Sprintf("SELECT * FROM %s(%s)", spec.Name, strings.Join(markers, ", "))
		}
		return fmt.Sprintf("SELECT %s(%s) AS %s", spec.Name, strings.Join(markers, ", "), d.QuoteIdent("result"))
	}
	if len(spec.Args) == 0 {
		return "EXEC " + spec.Name
	}
	pairs := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		pairs[i] = fmt.Sprintf("@%s = %s", a.Name, a.Marker)
	}
	return fmt.Sprintf("EXEC %s %s", spec.Name, strings.Join(pairs, ", "))
}

func (d *MSSQLDialect) DateOnly(expr string) string {
	return "CAST(" + expr + " AS DATE)"
}

// NOEXEC compiles the batch without running it; the session flag must be
// cleared again afterwards.
func (d *MSSQLDialect) ExplainStatements(query string) ([]string, int) {
	return []string{"SET NOEXEC ON", query, "SET NOEXEC OFF"}, 1
}

func (d *MSSQLDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "nvarchar", "nchar", "text", "ntext":
		return "varchar"
	case "bit":
		return "boolean"
	case "tinyint":
		return "tinyint" // 0-255
	case "smallint":
		return "smallint"
	case "int":
		return "int"
	case "bigint":
		return "bigint"
	case "decimal", "numeric", "money", "smallmoney":
		return "decimal"
	case "float", "real":
		return "float"
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return "datetime"
	case "date":
		return "date"
	case "image", "binary", "varbinary":
		return "blob"
	default:
		return t
	}
}

// UNIQUEIDENTIFIER arrives as 16 mixed-endian bytes; the driver's type knows
// the byte order.
func (d *MSSQLDialect) DecodeValue(raw any, dbType string) value.Value {
	if b, ok := raw.([]byte); ok && strings.EqualFold(dbType, "UNIQUEIDENTIFIER") {
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return value.String(id.String())
		}
	}
	return DefaultDecodeValue(raw, dbType)
}
