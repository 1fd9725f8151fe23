package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Probe the configured daemons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := withLogger(cmd.Context(), os.Stderr)

		deps, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.close(ctx)

		results := daemon.Probe(ctx, deps.client, deps.servers, daemon.DefaultProbeParallelism)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tLOCATION\tSTATUS\tLATENCY")

		for _, h := range results {
			status := "🟢 " + h.Version
			if !h.Online {
				status = "🔴 " + h.Error
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\n", h.Server.ID, h.Server.BaseURL, h.Server.Location, status, h.LatencyMS)
		}

		return w.Flush()
	},
}
