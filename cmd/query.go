package cmd

import (
	"context"
	"strings"

	"db-portal/internal/gateway"
	"db-portal/internal/value"

	"github.com/spf13/cobra"
)

var paramData string

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run SQL with @name parameters given as a JSON object",
	Example: `  db-portal query "SELECT * FROM productos WHERE precio > @min" -p '{"min": 100}'
  db-portal query -p @params.json - < report.sql`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, params, err := queryInput(args[0])
		if err != nil {
			return err
		}
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			res, err := g.Execute(ctx, text, params)
			if err != nil {
				return err
			}
			if res.Truncated {
				logger.Warn("result truncated", "rows", len(res.Rows))
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <sql>",
	Short: "Check SQL against the catalog without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, params, err := queryInput(args[0])
		if err != nil {
			return err
		}
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			if err := g.ValidateQuery(ctx, text, params); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"valid": true})
		})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <procedure>",
	Short: "Call a stored procedure or function with named arguments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(paramData)
		if err != nil {
			return err
		}
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			rows, err := g.Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		})
	},
}

// queryInput reads the statement (inline, @file or - for stdin) and the
// parameters flag.
func queryInput(arg string) (string, map[string]value.Value, error) {
	data, err := readArg(arg)
	if err != nil {
		return "", nil, err
	}
	params, err := parseParams(paramData)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(string(data)), params, nil
}

func init() {
	RootCmd.AddCommand(queryCmd, validateCmd, callCmd)
	for _, c := range []*cobra.Command{queryCmd, validateCmd, callCmd} {
		c.Flags().StringVarP(&paramData, "params", "p", "", "Parameters as a JSON object, @file or - for stdin")
	}
}
