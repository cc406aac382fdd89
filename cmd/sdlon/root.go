package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sdlon",
		Short:         "Reconcile SD Løn payroll data into the MO organization record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChangedAtCmd())
	cmd.AddCommand(newChangedAtInitCmd())
	cmd.AddCommand(newDateIntervalRunCmd())
	cmd.AddCommand(newImportSingleUserCmd())
	cmd.AddCommand(newFixDepartmentsCmd())
	cmd.AddCommand(newUnapplyNYLogicCmd())
	cmd.AddCommand(newFixTerminatedCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
