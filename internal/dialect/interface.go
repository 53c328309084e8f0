package dialect

import (
	"database/sql"

	"db-portal/internal/value"
)

// Engine names one supported database engine.
type Engine string

const (
	SQLServer Engine = "sqlserver"
	Postgres  Engine = "postgres"
	MySQL     Engine = "mysql"
	Oracle    Engine = "oracle"
)

// OutParamPolicy says how a dialect treats OUT/INOUT procedure parameters
// that the caller does not supply.
type OutParamPolicy int

const (
	// OutSkip leaves them out of the call.
	OutSkip OutParamPolicy = iota
	// OutBindNull passes NULL in their slot.
	OutBindNull
	// OutUnsupported rejects procedures that declare them.
	OutUnsupported
)

// CallArg is one bound routine argument: its catalog name and the
// placeholder that carries its value.
type CallArg struct {
	Name   string
	Marker string
}

// CallSpec describes a routine invocation.
type CallSpec struct {
	Name         string // already quoted and qualified
	Function     bool
	ReturnsTable bool
	Args         []CallArg
}

// Dialect abstracts database-specific operations.
type Dialect interface {
	Engine() Engine

	// Open parses dsn with the engine's own parser and returns a handle.
	// No network I/O happens until the first connection is requested.
	Open(dsn string) (*sql.DB, error)
	DriverName() string
	// IsBrokenConn reports driver-specific errors that poison a connection.
	IsBrokenConn(err error) bool

	// Identifiers and placeholders
	QuoteIdent(name string) string
	Placeholder(index int) string // Returns ?, $1, @p1, :1
	// NamedPlaceholder returns the native named marker, or "" if the
	// engine only binds positionally.
	NamedPlaceholder(name string) string
	NamedProcArgs() bool
	OutParams(function bool) OutParamPolicy
	// CallArgsByName reports whether the call text names each argument, so
	// optional parameters can be left out instead of filling a slot.
	CallArgsByName(function bool) bool
	CallReturnsRows(function bool) bool

	// Metadata Queries (Schema Introspection). Catalog queries take the
	// schema as first argument and, where scoped to one object, its name
	// as second.
	DefaultSchema() string
	CurrentSchemaQuery() string
	TablesQuery() string
	ColumnsQuery() string
	ForeignKeysQuery() string
	RoutineQuery() string
	ProcedureParamsQuery() string
	DiagnosticsQuery() string

	// Query Generation
	LimitQuery(query string, limit int) string
	InsertQuery(table string, cols []string, returning string) (query string, returnsKey bool)
	CallQuery(spec CallSpec) string
	DateOnly(expr string) string
	ExplainStatements(query string) (stmts []string, target int)

	// Helpers
	NormalizeType(sqlType string) string
	DecodeValue(raw any, dbType string) value.Value
}

// InsertFallback is implemented by dialects whose key-returning insert the
// server may refuse for some tables. FallbackInsertQuery returns a statement
// that inserts the row and selects its identity, or "" when err is not that
// refusal.
type InsertFallback interface {
	FallbackInsertQuery(table string, cols []string, err error) string
}
