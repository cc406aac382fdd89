// Package server exposes the trigger surface: a status endpoint, endpoints
// kicking off reconciliation runs and unit fixes, and run database recovery.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	services "github.com/magenta-aps/sdlon/modules/engagement/services"
)

// Trigger starts a reconciliation run up to now.
type Trigger interface {
	Run(ctx context.Context) error
}

// UnitFixer repairs a single organization unit and its engagements.
type UnitFixer interface {
	FixUnit(ctx context.Context, unit uuid.UUID) error
}

// RunStore is the slice of the run database the server needs.
type RunStore interface {
	LastRun(ctx context.Context) (string, time.Time, error)
	DeleteLastRun(ctx context.Context) error
}

type TriggerController struct {
	trigger Trigger
	fixer   UnitFixer
	runs    RunStore
	log     *logrus.Logger
}

func NewTriggerController(trigger Trigger, fixer UnitFixer, runs RunStore, log *logrus.Logger) *TriggerController {
	return &TriggerController{
		trigger: trigger,
		fixer:   fixer,
		runs:    runs,
		log:     log,
	}
}

func (c *TriggerController) Key() string {
	return "/trigger"
}

func (c *TriggerController) Register(r *mux.Router) {
	r.HandleFunc("/", c.status).Methods(http.MethodGet)
	r.HandleFunc("/trigger", c.run).Methods(http.MethodPost)
	r.HandleFunc("/trigger/apply-ny-logic/{ou}", c.applyNYLogic).Methods(http.MethodPost)
	r.HandleFunc("/rundb/delete-last-run", c.deleteLastRun).Methods(http.MethodPost)
}

func (c *TriggerController) status(w http.ResponseWriter, r *http.Request) {
	status, to, err := c.runs.LastRun(r.Context())
	if errors.Is(err, services.ErrNoRuns) {
		writeJSON(w, http.StatusOK, map[string]any{"msg": "no runs"})
		return
	}
	if err != nil {
		c.log.WithError(err).Error("reading run status")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "run database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"to":     to.Format(time.RFC3339),
	})
}

// run launches the reconciliation in the background; a run can take hours
// and the scheduler only needs to know it started.
func (c *TriggerController) run(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := c.trigger.Run(context.Background()); err != nil {
			c.log.WithError(err).Error("triggered run failed")
		}
	}()
	writeJSON(w, http.StatusOK, map[string]any{"msg": "reconciliation started in background"})
}

func (c *TriggerController) applyNYLogic(w http.ResponseWriter, r *http.Request) {
	unit, err := uuid.Parse(mux.Vars(r)["ou"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "invalid organization unit uuid"})
		return
	}
	if err := c.fixer.FixUnit(r.Context(), unit); err != nil {
		c.log.WithError(err).WithField("unit", unit).Error("fixing unit")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "unit fixed", "unit": unit.String()})
}

func (c *TriggerController) deleteLastRun(w http.ResponseWriter, r *http.Request) {
	if err := c.runs.DeleteLastRun(r.Context()); err != nil {
		c.log.WithError(err).Error("deleting last run")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "last run deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
