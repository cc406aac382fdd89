// Package metrics exposes the reconciliation run gauges scraped by the
// surrounding job scheduling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Run states exported through the state gauge. "ok" rather than "completed"
// is what the surrounding job runner matches on.
const (
	StateRunning = "running"
	StateOK      = "ok"
	StateUnknown = "unknown"
)

var states = []string{StateRunning, StateOK, StateUnknown}

var (
	changedAtState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sd_changed_at_state",
		Help: "State of the last SD-changed-at run",
	}, []string{"sd_changed_at_state"})

	lastSuccessTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dipex_last_success_timestamp",
		Help: "Unix timestamp of the last successful reconciliation run",
	})
)

func init() {
	prometheus.MustRegister(changedAtState, lastSuccessTimestamp)
}

// SetState marks exactly one run state as current.
func SetState(state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1.0
		}
		changedAtState.WithLabelValues(s).Set(v)
	}
}

// MarkSuccess records the wall-clock time of a completed run.
func MarkSuccess() {
	lastSuccessTimestamp.SetToCurrentTime()
}
