package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

func newFixDepartmentsCmd() *cobra.Command {
	var (
		ou     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "fix-departments --ou <uuid>",
		Short: "Ensure a unit and its ancestors exist with correct attributes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			unit, err := uuid.Parse(ou)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), appOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.treeFixer.FixDepartment(cmd.Context(), unit, validity.ToMidnight(time.Now().UTC()))
		},
	}

	cmd.Flags().StringVar(&ou, "ou", "", "organization unit to fix")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mutations instead of writing them")
	_ = cmd.MarkFlagRequired("ou")
	return cmd
}

func newUnapplyNYLogicCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "unapply-ny-logic",
		Short: "Move engagements back from elevated units to their raw payroll departments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.reconciler.UnapplyNYLogic(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mutations instead of writing them")
	return cmd
}

func newFixTerminatedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "fix-terminated",
		Short: "Align engagement end dates with the payroll employment timeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.reconciler.FixTerminatedEngagements(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mutations instead of writing them")
	return cmd
}
