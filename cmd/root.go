// Package cmd defines the boardwatch CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/config"
	"github.com/JakeFAU/boardwatch/internal/logging"
)

type runtimeKeyType struct{}

var runtimeKey runtimeKeyType

// runtime carries what every subcommand needs.
type runtime struct {
	cfg       config.Config
	logger    *zap.Logger
	closeLogs func()
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "boardwatch",
		Short: "Periodically harvests a ranked hot board into a relational ledger.",
		Long: `boardwatch polls a ranked "hot" board on a fixed cadence, enriches every
entry with a detail-page fetch, and records each harvest as a crawl with its
ranked items.`,
		SilenceUsage: true,

		// Config and logging are resolved before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLogs, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger, closeLogs: closeLogs}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				rt.closeLogs()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); BOARDWATCH_* env vars override it")

	cmd.AddCommand(newWatchCmd(), newSchemaCmd(), newCrawlsCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("runtime not initialized")
	}
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
