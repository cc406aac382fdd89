package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/pkg/metrics"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Run statuses persisted between windows. A run left in "running" means the
// previous process died mid-window and a human must inspect before the next
// run is allowed.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
)

// ErrPreviousRunNotCompleted refuses a new run while the last persisted run
// is not completed.
var ErrPreviousRunNotCompleted = errors.New("previous run not completed")

// ErrNoRuns is returned by the registry before the initial run has been
// seeded.
var ErrNoRuns = errors.New("no runs recorded")

// RunRegistry persists run progress across processes.
type RunRegistry interface {
	// LastRun returns the status and to-date of the most recent run.
	LastRun(ctx context.Context) (status string, to time.Time, err error)
	PersistRun(ctx context.Context, from, to time.Time, status string) error
}

// Runner drives the reconciler over day windows, gated by the run registry.
type Runner struct {
	reconciler *Reconciler
	runs       RunRegistry
	log        *logrus.Logger
	now        func() time.Time
}

func NewRunner(reconciler *Reconciler, runs RunRegistry, log *logrus.Logger) *Runner {
	return &Runner{
		reconciler: reconciler,
		runs:       runs,
		log:        log,
		now:        time.Now,
	}
}

// Init seeds the run registry at the go-live date so the first Run picks up
// from there. Refused when runs already exist.
func (r *Runner) Init(ctx context.Context, fromDate time.Time) error {
	_, _, err := r.runs.LastRun(ctx)
	if err == nil {
		return errors.New("run registry already initialized")
	}
	if !errors.Is(err, ErrNoRuns) {
		return err
	}
	return r.runs.PersistRun(ctx, fromDate, fromDate, RunStatusCompleted)
}

// Run processes every day window between the last completed run and now.
// Each window is persisted as running before and completed after, so a crash
// leaves an inspectable trace and blocks the next run.
func (r *Runner) Run(ctx context.Context) error {
	status, lastTo, err := r.runs.LastRun(ctx)
	if err != nil {
		return err
	}
	if status != RunStatusCompleted {
		return errors.Wrapf(ErrPreviousRunNotCompleted, "status %q", status)
	}

	metrics.SetState(metrics.StateRunning)
	if err := r.run(ctx, lastTo, r.now().UTC()); err != nil {
		metrics.SetState(metrics.StateUnknown)
		return err
	}
	metrics.SetState(metrics.StateOK)
	metrics.MarkSuccess()
	return nil
}

// RunInterval processes an explicit date range without touching the run
// registry or metrics. Used for backfills and single-person imports.
func (r *Runner) RunInterval(ctx context.Context, from, to time.Time, onlyCPR string) error {
	for _, window := range validity.DateIntervals(from, to) {
		if err := r.window(ctx, window.From, window.To, onlyCPR); err != nil {
			return err
		}
	}
	return nil
}

// ImportSingleUser reconciles one person from the given date up to now.
func (r *Runner) ImportSingleUser(ctx context.Context, cpr string, fromDate time.Time) error {
	return r.RunInterval(ctx, fromDate, r.now().UTC(), cpr)
}

func (r *Runner) run(ctx context.Context, from, to time.Time) error {
	if !from.Before(to) {
		r.log.Info("no new window to process")
		return nil
	}
	for _, window := range validity.DateIntervals(from, to) {
		if err := r.runs.PersistRun(ctx, window.From, window.To, RunStatusRunning); err != nil {
			return err
		}
		if err := r.window(ctx, window.From, window.To, ""); err != nil {
			return err
		}
		if err := r.runs.PersistRun(ctx, window.From, window.To, RunStatusCompleted); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) window(ctx context.Context, from, to time.Time, onlyCPR string) error {
	r.log.WithFields(logrus.Fields{
		"from": from.Format(time.RFC3339),
		"to":   to.Format(time.RFC3339),
	}).Info("processing window")
	if err := r.reconciler.UpdateChangedPersons(ctx, from, to, onlyCPR); err != nil {
		return err
	}
	return r.reconciler.UpdateEmployments(ctx, from, to, onlyCPR)
}
