package cmd

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDatabases(t *testing.T, dbs ...map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("databases", dbs)
}

func TestGetActiveDBConfig(t *testing.T) {
	setDatabases(t,
		map[string]any{"name": "local-pg", "driver": "postgres", "dsn": "postgres://localhost/tienda", "active": false},
		map[string]any{"name": "erp", "driver": "mssql", "dsn": "sqlserver://sa@localhost?database=erp", "schema": "ventas", "active": true},
	)
	cfg, err := GetActiveDBConfig()
	require.NoError(t, err)
	assert.Equal(t, "erp", cfg.Name)
	assert.Equal(t, "ventas", cfg.Schema)
}

func TestGetActiveDBConfigRequiresExactlyOne(t *testing.T) {
	setDatabases(t, map[string]any{"name": "a", "driver": "mysql", "dsn": "x"})
	_, err := GetActiveDBConfig()
	assert.ErrorContains(t, err, "no active database")

	setDatabases(t,
		map[string]any{"name": "a", "driver": "mysql", "dsn": "x", "active": true},
		map[string]any{"name": "b", "driver": "mysql", "dsn": "y", "active": true},
	)
	_, err = GetActiveDBConfig()
	assert.ErrorContains(t, err, "multiple active")
}

func TestResolveDBConfig(t *testing.T) {
	setDatabases(t,
		map[string]any{"name": "local-pg", "driver": "postgres", "dsn": "postgres://localhost/tienda", "active": true},
		map[string]any{"name": "shop", "driver": "mariadb", "dsn": "root@tcp(127.0.0.1:3306)/shop"},
	)

	cfg, err := ResolveDBConfig("SHOP", "", "")
	require.NoError(t, err)
	assert.Equal(t, "mariadb", cfg.Driver)

	cfg, err = ResolveDBConfig("", "", "postgres://replica/tienda")
	require.NoError(t, err)
	assert.Equal(t, "local-pg", cfg.Name)
	assert.Equal(t, "postgres://replica/tienda", cfg.DSN)

	_, err = ResolveDBConfig("missing", "", "")
	assert.Error(t, err)
}

func TestResolveDBConfigFromFlagsOnly(t *testing.T) {
	setDatabases(t)

	_, err := ResolveDBConfig("", "postgres", "")
	assert.Error(t, err)

	cfg, err := ResolveDBConfig("", "postgres", "postgres://localhost/tienda")
	require.NoError(t, err)
	assert.Equal(t, "cli", cfg.Name)
}

func TestLoadSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("settings.pool_size", 4)
	viper.Set("settings.operation_timeout", "2s")
	viper.Set("settings.forbidden_tables", "usuarios_sistema, auditoria ,")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, s.PoolSize)
	assert.Equal(t, 2*time.Second, s.OperationTimeout)
	assert.Equal(t, []string{"usuarios_sistema", "auditoria"}, s.ForbiddenTables)

	viper.Set("settings.forbidden_tables", []string{"usuarios_sistema", "auditoria"})
	s, err = LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{"usuarios_sistema", "auditoria"}, s.ForbiddenTables)

	opts := GatewayOptions(DBConfig{Driver: "pg", DSN: "postgres://x", Schema: "public"}, s)
	assert.Equal(t, "pg", opts.Driver)
	assert.Equal(t, s.ForbiddenTables, opts.ForbiddenTables)

	viper.Set("settings.max_rows", -1)
	_, err = LoadSettings()
	assert.Error(t, err)
}
