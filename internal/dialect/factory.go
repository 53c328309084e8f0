package dialect

import (
	"fmt"
	"strings"
)

// ParseEngine maps a configured provider name, including its common aliases,
// to an Engine.
func ParseEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlserver", "mssql", "sqlserverexpress", "localdb":
		return SQLServer, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "oracle":
		return Oracle, nil
	default:
		return "", fmt.Errorf("unsupported database provider %q", name)
	}
}

// Factory returns the appropriate Dialect implementation based on driver name.
func GetDialect(driver string) (Dialect, error) {
	engine, err := ParseEngine(driver)
	if err != nil {
		return nil, err
	}
	switch engine {
	case Postgres:
		return &PostgresDialect{}, nil
	case SQLServer:
		return &MSSQLDialect{}, nil
	case Oracle:
		return &OracleDialect{}, nil
	default:
		return &MysqlDialect{}, nil
	}
}

// Ensure interface implementation
var _ Dialect = (*MysqlDialect)(nil)
var _ Dialect = (*PostgresDialect)(nil)
var _ Dialect = (*MSSQLDialect)(nil)
var _ Dialect = (*OracleDialect)(nil)
