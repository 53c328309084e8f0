package cmd

import (
	"context"
	"os"

	"db-portal/internal/gateway"
	"db-portal/internal/schema"
	"db-portal/internal/value"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
)

var dumpLimit int

type tableDump struct {
	Table string      `json:"table"`
	Rows  []value.Row `json:"rows"`
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Export every visible table as JSON, referenced tables first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			all, err := g.DescribeDatabase(ctx)
			if err != nil {
				return err
			}
			list := make([]*schema.Table, 0, len(all))
			for _, t := range all {
				list = append(list, t)
			}
			ordered := schema.SortByDependencies(list)

			progress := uiprogress.New()
			progress.SetOut(os.Stderr)
			progress.Start()
			bar := progress.AddBar(max(len(ordered), 1)).AppendCompleted().PrependElapsed()
			bar.PrependFunc(func(b *uiprogress.Bar) string { return "Dumping: " })

			out := make([]tableDump, 0, len(ordered))
			for _, t := range ordered {
				rows, err := g.ReadAll(ctx, t.Name, dumpLimit)
				if err != nil {
					progress.Stop()
					return err
				}
				out = append(out, tableDump{Table: t.Name, Rows: rows})
				bar.Incr()
			}
			progress.Stop()
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 0, "Maximum rows per table (default from settings.default_limit)")
}
