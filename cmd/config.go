package cmd

import (
	"fmt"
	"strings"
	"time"

	"db-portal/internal/gateway"
	"db-portal/internal/schema"

	"github.com/spf13/viper"
)

type DBConfig struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
	Active bool   `mapstructure:"active"`
}

// Settings are the process-wide limits read once at startup.
type Settings struct {
	PoolSize         int
	AcquireTimeout   time.Duration
	OperationTimeout time.Duration
	DefaultLimit     int
	MaxRows          int
	ForbiddenTables  []string
	ReadOnlyQueries  bool
	Seed             int64
}

func loadDBConfigs() ([]DBConfig, error) {
	var configs []DBConfig
	if err := viper.UnmarshalKey("databases", &configs); err != nil {
		return nil, fmt.Errorf("failed to parse databases config: %w", err)
	}
	return configs, nil
}

// GetActiveDBConfig returns the currently active database configuration.
func GetActiveDBConfig() (*DBConfig, error) {
	configs, err := loadDBConfigs()
	if err != nil {
		return nil, err
	}

	var activeConfig *DBConfig
	count := 0

	for i := range configs {
		if configs[i].Active {
			activeConfig = &configs[i]
			count++
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("no active database found in config (set active: true)")
	}
	if count > 1 {
		return nil, fmt.Errorf("multiple active databases found (only one can be active)")
	}

	return activeConfig, nil
}

// ResolveDBConfig picks the entry named name, or the active one, and applies
// the driver and dsn overrides. With no usable entry, driver and dsn alone
// are enough.
func ResolveDBConfig(name, driver, dsn string) (DBConfig, error) {
	var cfg DBConfig
	switch {
	case name != "":
		configs, err := loadDBConfigs()
		if err != nil {
			return DBConfig{}, err
		}
		found := false
		for _, c := range configs {
			if strings.EqualFold(c.Name, name) {
				cfg, found = c, true
				break
			}
		}
		if !found {
			return DBConfig{}, fmt.Errorf("no database named %q in config", name)
		}
	default:
		active, err := GetActiveDBConfig()
		if err != nil {
			if driver == "" || dsn == "" {
				return DBConfig{}, fmt.Errorf("%w: or pass --driver and --dsn", err)
			}
			cfg = DBConfig{Name: "cli"}
		} else {
			cfg = *active
		}
	}

	if driver != "" {
		cfg.Driver = driver
	}
	if dsn != "" {
		cfg.DSN = dsn
	}
	if cfg.Driver == "" {
		return DBConfig{}, fmt.Errorf("database %q has no driver", cfg.Name)
	}
	if cfg.DSN == "" {
		return DBConfig{}, fmt.Errorf("database %q has no dsn", cfg.Name)
	}
	return cfg, nil
}

// LoadSettings reads the settings block. forbidden_tables may be a list or
// a comma separated string, which is what an environment variable gives.
func LoadSettings() (Settings, error) {
	s := Settings{
		PoolSize:         viper.GetInt("settings.pool_size"),
		AcquireTimeout:   viper.GetDuration("settings.acquire_timeout"),
		OperationTimeout: viper.GetDuration("settings.operation_timeout"),
		DefaultLimit:     viper.GetInt("settings.default_limit"),
		MaxRows:          viper.GetInt("settings.max_rows"),
		ReadOnlyQueries:  viper.GetBool("settings.read_only_queries"),
		Seed:             viper.GetInt64("settings.seed"),
	}
	switch raw := viper.Get("settings.forbidden_tables").(type) {
	case nil:
	case string:
		s.ForbiddenTables = schema.ParseDenylist(raw)
	default:
		for _, t := range viper.GetStringSlice("settings.forbidden_tables") {
			s.ForbiddenTables = append(s.ForbiddenTables, schema.ParseDenylist(t)...)
		}
	}

	if s.PoolSize < 0 || s.DefaultLimit < 0 || s.MaxRows < 0 {
		return Settings{}, fmt.Errorf("settings: pool_size, default_limit and max_rows must not be negative")
	}
	if s.AcquireTimeout < 0 || s.OperationTimeout < 0 {
		return Settings{}, fmt.Errorf("settings: timeouts must not be negative")
	}
	return s, nil
}

func GatewayOptions(db DBConfig, s Settings) gateway.Options {
	return gateway.Options{
		Driver:           db.Driver,
		DSN:              db.DSN,
		Schema:           db.Schema,
		PoolSize:         s.PoolSize,
		AcquireTimeout:   s.AcquireTimeout,
		OperationTimeout: s.OperationTimeout,
		DefaultLimit:     s.DefaultLimit,
		MaxRows:          s.MaxRows,
		ForbiddenTables:  s.ForbiddenTables,
		ReadOnlyQueries:  s.ReadOnlyQueries,
		Seed:             s.Seed,
	}
}
