package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/boardwatch/internal/server"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Creates the ledger tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			store, err := server.OpenStore(cmd.Context(), rt.cfg, rt.logger.Named("ledger"))
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", rt.cfg.DB.Driver)
			return nil
		},
	}
}
