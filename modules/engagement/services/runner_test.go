package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magenta-aps/sdlon/pkg/logging"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

type persistedRun struct {
	from, to time.Time
	status   string
}

type fakeRegistry struct {
	runs []persistedRun
}

func (f *fakeRegistry) LastRun(_ context.Context) (string, time.Time, error) {
	if len(f.runs) == 0 {
		return "", time.Time{}, ErrNoRuns
	}
	last := f.runs[len(f.runs)-1]
	return last.status, last.to, nil
}

func (f *fakeRegistry) PersistRun(_ context.Context, from, to time.Time, status string) error {
	f.runs = append(f.runs, persistedRun{from: from, to: to, status: status})
	return nil
}

func newRunnerForTest(registry *fakeRegistry) *Runner {
	sd := &fakePayroll{}
	store := newFakeStore()
	reconciler := newReconcilerForTest(sd, store, defaultConfig())
	runner := NewRunner(reconciler, registry, logging.ConsoleLogger(logrus.ErrorLevel))
	runner.now = func() time.Time { return validity.Date(2024, time.June, 3) }
	return runner
}

func TestRunRefusesWhilePreviousRunIncomplete(t *testing.T) {
	registry := &fakeRegistry{runs: []persistedRun{{
		from:   validity.Date(2024, time.June, 1),
		to:     validity.Date(2024, time.June, 2),
		status: RunStatusRunning,
	}}}
	runner := newRunnerForTest(registry)

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPreviousRunNotCompleted))
}

func TestRunProcessesEveryDayWindow(t *testing.T) {
	registry := &fakeRegistry{runs: []persistedRun{{
		from:   validity.Date(2024, time.June, 1),
		to:     validity.Date(2024, time.June, 1),
		status: RunStatusCompleted,
	}}}
	runner := newRunnerForTest(registry)

	err := runner.Run(context.Background())
	require.NoError(t, err)

	// Two day windows between June 1 and June 3, each persisted as
	// running and then completed.
	persisted := registry.runs[1:]
	require.Len(t, persisted, 4)
	assert.Equal(t, RunStatusRunning, persisted[0].status)
	assert.Equal(t, RunStatusCompleted, persisted[1].status)
	assert.Equal(t, persisted[0].from, persisted[1].from)
	assert.Equal(t, RunStatusRunning, persisted[2].status)
	assert.Equal(t, RunStatusCompleted, persisted[3].status)
	assert.Equal(t, validity.Date(2024, time.June, 1), persisted[0].from)
	assert.Equal(t, validity.Date(2024, time.June, 2), persisted[2].from)
}

func TestInitSeedsTheRegistryOnce(t *testing.T) {
	registry := &fakeRegistry{}
	runner := newRunnerForTest(registry)
	goLive := validity.Date(2022, time.January, 1)

	require.NoError(t, runner.Init(context.Background(), goLive))
	require.Len(t, registry.runs, 1)
	assert.Equal(t, RunStatusCompleted, registry.runs[0].status)
	assert.Equal(t, goLive, registry.runs[0].to)

	err := runner.Init(context.Background(), goLive)
	require.Error(t, err)
}
