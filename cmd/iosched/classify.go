package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

func newClassifyCmd() *cobra.Command {
	var (
		class  string
		level  int
		mode   string
		queues int
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which queue a priority tag lands in",
		Long: `Classify a priority tag the way a device scheduler would.

Examples:
  iosched classify --class rt --level 9      # clamps to rt7
  iosched classify --class bogus             # unknown classes are best-effort
  iosched classify --class be --level 7 --mode stochastic --seed 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scheduler.ConfigFromSettings(mode, queues, seed, nil)
			if err != nil {
				return err
			}
			s := scheduler.New(cfg)
			tag := scheduler.Tag{Class: scheduler.ParseClass(class), Level: level}
			req := &scheduler.Request{ID: "probe", Tag: tag}
			q := s.Submit(req)
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> queue %d (%s) of %d\n", tag, q, s.QueueName(q), s.NumQueues())
			s.DispatchAll()
			s.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&class, "class", "be", "Priority class (rt, be, idle)")
	cmd.Flags().IntVar(&level, "level", 0, "Priority level")
	cmd.Flags().StringVar(&mode, "mode", "strict", "Best-effort layout (strict, stochastic)")
	cmd.Flags().IntVar(&queues, "queues", 4, "Sibling best-effort queues in stochastic mode")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Stochastic seed")
	return cmd
}
