package cmd

import (
	"context"

	"db-portal/internal/gateway"

	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the configured schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			names, err := g.ListTables(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), names)
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [table]",
	Short: "Describe one table, or the whole schema with foreign keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			if len(args) == 1 {
				t, err := g.DescribeTable(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			}
			all, err := g.DescribeDatabase(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), all)
		})
	},
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Show provider, server and pool diagnostics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			row, err := g.Diagnostics(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), row)
		})
	},
}

func init() {
	RootCmd.AddCommand(tablesCmd, describeCmd, diagCmd)
}
