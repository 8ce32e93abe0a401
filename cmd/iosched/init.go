package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-iosched/internal/bootstrap"
)

func newInitCmd() *cobra.Command {
	var opts bootstrap.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Root, _ = cmd.Flags().GetString("root")
			if err := bootstrap.Init(opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s/config/setting.ini and %s/config/%s/iosched.ini\n",
				opts.Root, opts.Root, envOrDefault(opts.Environment))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Environment, "env", "dev", "Environment name")
	cmd.Flags().StringSliceVar(&opts.Devices, "devices", []string{"sda"}, "Devices to activate")
	cmd.Flags().StringVar(&opts.BestEffortMode, "mode", "strict", "Best-effort layout (strict, stochastic)")
	cmd.Flags().IntVar(&opts.BestEffortQueues, "queues", 4, "Sibling best-effort queues in stochastic mode")
	cmd.Flags().StringVar(&opts.SnapshotStore, "snapshot-store", "", "SQLite path or postgres:// DSN")
	cmd.Flags().StringVar(&opts.AdminAddress, "admin-address", ":8089", "Admin HTTP listen address")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing files")
	return cmd
}

func envOrDefault(env string) string {
	if env == "" {
		return "dev"
	}
	return env
}
