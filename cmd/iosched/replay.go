package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
	"github.com/tokligence/tokligence-iosched/internal/trace"
)

func newReplayCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay TRACE.yaml...",
		Short: "Replay workload traces against a fresh device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				t, err := trace.Load(path)
				if err != nil {
					return err
				}
				res, err := trace.Replay(t, nil)
				if res == nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(res); err != nil {
						return err
					}
				} else {
					printReplay(out, path, res)
				}
				if err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d traces failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func printReplay(w io.Writer, path string, res *trace.Result) {
	fmt.Fprintf(w, "== %s (device %s)\n", path, res.Device)
	fmt.Fprintf(w, "dispatched: %s\n", orNone(res.Dispatched))
	if len(res.Merged) > 0 {
		fmt.Fprintf(w, "merged:     %s\n", strings.Join(res.Merged, " "))
	}
	if len(res.Flushed) > 0 {
		fmt.Fprintf(w, "flushed:    %s\n", strings.Join(res.Flushed, " "))
	}
	printQueues(w, res.Final.Queues)
}

func printQueues(w io.Writer, queues []scheduler.QueueStats) {
	fmt.Fprintf(w, "%-6s %12s %12s %10s\n", "QUEUE", "ENQUEUED", "DEQUEUED", "BACKLOG")
	for _, q := range queues {
		if q.Enqueued == 0 {
			continue
		}
		fmt.Fprintf(w, "%-6s %12s %12s %10s\n", q.Name,
			humanize.Comma(int64(q.Enqueued)), humanize.Comma(int64(q.Dequeued)), humanize.Comma(int64(q.Backlog)))
	}
}

func orNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, " ")
}
