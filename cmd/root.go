package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"db-portal/internal/gateway"
	"db-portal/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X db-portal/cmd.Version=...".
var Version = "dev"

var (
	cfgFile    string
	dsn        string
	driverName string
	dbName     string
	schemaName string

	logger = logging.Default()
)

var RootCmd = &cobra.Command{
	Use:   "db-portal",
	Short: "Dialect-independent access to any table of a relational database",
	Long: `db-portal runs CRUD, parameterized SQL and stored procedure calls
against SQL Server, PostgreSQL, MySQL/MariaDB or Oracle, selected by
configuration. Table and column names are validated against the live
catalog before they reach SQL; values are always bound.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var cfg logging.Config
		if err := viper.UnmarshalKey("logging", &cfg); err != nil {
			return fmt.Errorf("failed to parse logging config: %w", err)
		}
		logger = logging.New(cfg, Version)
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", "path", used)
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Define flags
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./db-portal.yaml)")
	RootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database Source Name, overrides the active entry")
	RootCmd.PersistentFlags().StringVar(&driverName, "driver", "", "Database provider (sqlserver, postgres, mysql, oracle or an alias)")
	RootCmd.PersistentFlags().StringVar(&dbName, "db", "", "Name of the databases entry to use instead of the active one")
	RootCmd.PersistentFlags().StringVar(&schemaName, "schema", "", "Schema to introspect (default depends on the provider)")

	viper.SetDefault("settings.pool_size", 10)
	viper.SetDefault("settings.acquire_timeout", "5s")
	viper.SetDefault("settings.operation_timeout", "30s")
	viper.SetDefault("settings.default_limit", 1000)
	viper.SetDefault("settings.max_rows", 10000)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stderr")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		ex, err := os.Executable()
		if err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}

		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("db-portal")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DBPORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Failed to read config file:", err)
		}
	}
}

// openGateway connects with the resolved configuration. Callers close it.
func openGateway(ctx context.Context) (*gateway.Gateway, error) {
	db, err := ResolveDBConfig(dbName, driverName, dsn)
	if err != nil {
		return nil, err
	}
	if schemaName != "" {
		db.Schema = schemaName
	}
	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}

	log := logger.With("database", db.Name)
	g, err := gateway.Open(ctx, GatewayOptions(db, settings), log)
	if err != nil {
		return nil, err
	}
	log.Debug("connected", "driver", db.Driver, "schema", g.Schema())
	return g, nil
}

// withGateway runs fn on a fresh gateway and drains it afterwards.
func withGateway(cmd *cobra.Command, fn func(context.Context, *gateway.Gateway) error) error {
	ctx := cmd.Context()
	g, err := openGateway(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.Close(cctx); err != nil {
			logger.Warn("failed to close pool", "error", err)
		}
	}()
	return fn(ctx, g)
}
