package main

import (
	"github.com/spf13/cobra"
)

func newChangedAtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changed-at",
		Short: "Reconcile payroll changes from the last run date up to now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{NeedsRunDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runner.Run(cmd.Context())
		},
	}
}

func newChangedAtInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changed-at-init",
		Short: "Seed the run database with the global from date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{NeedsRunDB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runner.Init(cmd.Context(), a.conf.SD.GlobalFromDate)
		},
	}
}
