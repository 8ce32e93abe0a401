package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-iosched/internal/config"
	"github.com/tokligence/tokligence-iosched/internal/ledger"
	"github.com/tokligence/tokligence-iosched/internal/ledger/backend"
)

func newStatsCmd() *cobra.Command {
	var (
		devices []string
		queue   string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted queue counters from the snapshot ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			cfg, err := config.LoadIoschedConfig(root)
			if err != nil {
				return err
			}
			opened, err := backend.Open(cfg, false, nil)
			if err != nil {
				return err
			}
			defer opened.Store.Close()

			if len(devices) == 0 {
				devices = cfg.Devices
			}
			ctx := context.Background()
			out := cmd.OutOrStdout()
			for _, d := range devices {
				var entries []ledger.Entry
				if queue != "" {
					entries, err = opened.Store.History(ctx, d, queue, limit)
				} else {
					entries, err = opened.Store.Latest(ctx, d)
				}
				if err != nil {
					return fmt.Errorf("read snapshots for %s: %w", d, err)
				}
				printEntries(out, d, entries, queue == "")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&devices, "device", nil, "Devices to show (default: configured devices)")
	cmd.Flags().StringVar(&queue, "queue", "", "Show history of one queue instead of the latest snapshot")
	cmd.Flags().IntVar(&limit, "limit", 20, "History entries to show")
	return cmd
}

func printEntries(w io.Writer, device string, entries []ledger.Entry, total bool) {
	fmt.Fprintf(w, "== %s\n", device)
	if len(entries) == 0 {
		fmt.Fprintln(w, "no snapshots recorded")
		return
	}
	var backlog int64
	fmt.Fprintf(w, "%-6s %12s %12s %10s  %s\n", "QUEUE", "ENQUEUED", "DEQUEUED", "BACKLOG", "TAKEN")
	for _, e := range entries {
		fmt.Fprintf(w, "%-6s %12s %12s %10s  %s\n", e.Queue,
			humanize.Comma(e.Enqueued), humanize.Comma(e.Dequeued), humanize.Comma(e.Backlog), humanize.Time(e.CreatedAt))
		backlog += e.Backlog
	}
	if total {
		fmt.Fprintf(w, "total backlog %s\n", humanize.Comma(backlog))
	}
}
