package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"db-portal/internal/gateway"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	count  int
	dryRun bool
	tables []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill tables with generated rows, parents before children",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Fetch count from Viper (Flag > Config > Default)
		targetCount := viper.GetInt("settings.default_count")
		if count > 0 {
			targetCount = count
		}
		// Flag > config settings.tables > every visible table
		names := tables
		if len(names) == 0 {
			names = viper.GetStringSlice("settings.tables")
		}

		return withGateway(cmd, func(ctx context.Context, g *gateway.Gateway) error {
			targets, err := g.SeedTables(ctx, names)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dryRun {
				fmt.Fprintln(out, "Dry run, nothing is written. Fill order:")
				for i, t := range targets {
					fmt.Fprintf(out, "[%02d] %s (Dependencies: %v)\n", i+1, t.Name, t.Dependencies)
				}
				return nil
			}

			logger.Info("seeding", "tables", len(targets), "count", targetCount)
			start := time.Now()

			progress := uiprogress.New()
			progress.SetOut(os.Stderr)
			progress.Start()
			bar := progress.AddBar(max(len(targets)*targetCount, 1)).AppendCompleted().PrependElapsed()
			bar.PrependFunc(func(b *uiprogress.Bar) string { return "Seeding: " })

			results, err := g.Seed(ctx, targets, targetCount, func() { bar.Incr() })
			progress.Stop()

			fmt.Fprintln(out, "\nSummary (dependency order):")
			total := 0
			for i, r := range results {
				icon := "✓"
				if r.Inserted < r.Target {
					icon = "!"
				}
				fmt.Fprintf(out, "[%s] [%02d/%02d] %-20s : %d rows (Target: %d, failed: %d)\n",
					icon, i+1, len(targets), r.Table, r.Inserted, r.Target, r.Failed)
				if r.Err != nil {
					fmt.Fprintf(out, "    └ Error: %s\n", r.Err)
				}
				total += r.Inserted
			}
			fmt.Fprintln(out, "--------------------------------------------------")
			fmt.Fprintf(out, "Total rows: %d in %s\n", total, time.Since(start).Round(time.Millisecond))
			return err
		})
	},
}

func init() {
	RootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&count, "count", 0, "Number of rows to generate per table (overrides config)")
	seedCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the fill order without writing")
	seedCmd.Flags().StringSliceVarP(&tables, "tables", "t", []string{}, "Specific tables to fill (comma-separated)")

	viper.SetDefault("settings.default_count", 100)
}
