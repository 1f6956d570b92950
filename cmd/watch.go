package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/server"
)

func newWatchCmd() *cobra.Command {
	var (
		once bool
		top  int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Runs the harvest loop",
		Long: `Opens a crawl every poll interval, fetches the board, enriches and stores
each entry in ranking order, then closes the crawl. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if cmd.Flags().Changed("top") {
				if top < 0 {
					return fmt.Errorf("--top must be >= 0, got %d", top)
				}
				cfg.Harvest.ItemCap = top
			}

			app, err := server.Build(cmd.Context(), cfg, rt.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := app.Close(); cerr != nil {
					rt.logger.Warn("close failed", zap.Error(cerr))
				}
			}()

			if once {
				report := app.RunOnce(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "crawl %d: %s, %d entries, %d persisted, %d failed\n",
					report.CrawlID, report.Status(), report.Entries, report.Persisted, report.Failed)
				if report.Status() != "ok" {
					return fmt.Errorf("cycle finished with status %s: %w", report.Status(), report.Err)
				}
				return nil
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	cmd.Flags().IntVar(&top, "top", 0, "harvest only the leading N board entries (overrides harvest.item_cap)")
	return cmd
}
