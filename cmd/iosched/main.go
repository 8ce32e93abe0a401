package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-iosched/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "iosched",
		Short: "Operate and inspect the priority I/O scheduler",
		Long: `iosched works with the priority I/O scheduler used by ioschedd.

Examples:
  # Scaffold config/setting.ini and config/dev/iosched.ini
  iosched init --devices sda,nvme0n1

  # Replay a workload trace and print the dispatch order
  iosched replay testdata/mixed.yaml

  # Show the latest persisted queue counters
  iosched stats --device sda`,
		SilenceUsage: true,
		Version:      version.Info(),
	}
	root.PersistentFlags().String("root", ".", "Directory containing config/")

	root.AddCommand(
		newInitCmd(),
		newClassifyCmd(),
		newReplayCmd(),
		newStatsCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "iosched "+version.FullInfo())
		},
	}
}
