package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/boardwatch/internal/server"
)

func newCrawlsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "crawls",
		Short: "Lists recent crawls, newest first",
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

			crawls, err := store.ListCrawls(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBEGIN\tEND\tITEMS")
			for _, crawl := range crawls {
				items, err := store.ListItems(cmd.Context(), crawl.ID)
				if err != nil {
					return err
				}
				end := "open"
				if crawl.Closed() {
					end = crawl.End.V.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", crawl.ID, crawl.Begin.Format(time.RFC3339), end, len(items))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of crawls to show")
	return cmd
}
