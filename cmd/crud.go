package cmd

import (
	"context"

	"db-portal/internal/gateway"
	"db-portal/internal/value"

	"github.com/spf13/cobra"
)

var (
	limit   int
	rowData string
)

var listCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "Read rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			rows, err := g.ReadAll(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <table> <key-column> <key>",
	Short: "Read the first row whose key column equals key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			row, err := g.ReadByKey(ctx, args[0], args[1], value.String(args[2]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), row)
		})
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert <table>",
	Short: "Insert one row given as a JSON object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := parseRow(rowData)
		if err != nil {
			return err
		}
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			res, err := g.Create(ctx, args[0], row)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <table> <key-column> <key>",
	Short: "Update the columns given as a JSON object on the matching rows",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseRow(rowData)
		if err != nil {
			return err
		}
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			n, err := g.Update(ctx, args[0], args[1], value.String(args[2]), patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"rows_affected": n})
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table> <key-column> <key>",
	Short: "Delete the rows whose key column equals key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			n, err := g.Delete(ctx, args[0], args[1], value.String(args[2]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"rows_affected": n})
		})
	},
}

func init() {
	RootCmd.AddCommand(listCmd, getCmd, insertCmd, updateCmd, deleteCmd)

	listCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to return (default from settings.default_limit)")
	for _, c := range []*cobra.Command{insertCmd, updateCmd} {
		c.Flags().StringVarP(&rowData, "data", "d", "", "Row as a JSON object, @file or - for stdin")
		_ = c.MarkFlagRequired("data")
	}
}
