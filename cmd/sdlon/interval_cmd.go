package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func newDateIntervalRunCmd() *cobra.Command {
	var (
		fromDate      string
		toDate        string
		cpr           string
		dryRun        bool
		institutionID string
	)

	cmd := &cobra.Command{
		Use:   "date-interval-run --from-date <date> --to-date <date>",
		Short: "Reconcile a fixed date interval without touching the run database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseDate(fromDate)
			if err != nil {
				return err
			}
			to, err := parseDate(toDate)
			if err != nil {
				return err
			}
			if to.Before(from) {
				return errors.New("--to-date must not precede --from-date")
			}

			a, err := buildApp(cmd.Context(), appOptions{
				DryRun:        dryRun,
				InstitutionID: institutionID,
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runner.RunInterval(cmd.Context(), from, to, cpr)
		},
	}

	cmd.Flags().StringVar(&fromDate, "from-date", "", "start of the interval (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to-date", "", "end of the interval (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cpr, "cpr", "", "restrict the run to a single person")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mutations instead of writing them")
	cmd.Flags().StringVar(&institutionID, "institution-identifier", "", "override the configured institution identifier")
	_ = cmd.MarkFlagRequired("from-date")
	_ = cmd.MarkFlagRequired("to-date")
	return cmd
}

func newImportSingleUserCmd() *cobra.Command {
	var (
		cpr           string
		fromDate      string
		dryRun        bool
		institutionID string
	)

	cmd := &cobra.Command{
		Use:   "import-single-user --cpr <cpr>",
		Short: "Reconcile one person from a given date up to now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{
				DryRun:        dryRun,
				InstitutionID: institutionID,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			from := a.conf.SD.GlobalFromDate
			if fromDate != "" {
				from, err = parseDate(fromDate)
				if err != nil {
					return err
				}
			}
			return a.runner.ImportSingleUser(cmd.Context(), cpr, from)
		},
	}

	cmd.Flags().StringVar(&cpr, "cpr", "", "CPR of the person to import")
	cmd.Flags().StringVar(&fromDate, "from-date", "", "start date, defaults to the global from date")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mutations instead of writing them")
	cmd.Flags().StringVar(&institutionID, "institution-identifier", "", "override the configured institution identifier")
	_ = cmd.MarkFlagRequired("cpr")
	return cmd
}
