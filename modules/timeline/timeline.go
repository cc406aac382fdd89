// Package timeline merges the current and future employment segments from
// payroll into one contiguous per-employment timeline.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// ErrInvalidTimeline is returned when there is nothing to merge.
var ErrInvalidTimeline = errors.New("no current or future employment segments")

// GapError reports a hole between two adjacent segments. A gap means the
// payroll data itself is inconsistent, so processing of the employment is
// aborted rather than patched over.
type GapError struct {
	Key              types.EmploymentKey
	Kind             string
	PrevDeactivation string
	NextActivation   string
}

func (e *GapError) Error() string {
	return fmt.Sprintf(
		"timeline gap in %s segments for cpr=%s employment=%s: %s is not followed by %s",
		e.Kind, types.AnonymizeCPR(e.Key.CPR), e.Key.EmploymentID, e.PrevDeactivation, e.NextActivation,
	)
}

// Timeline is the merged view of one employment. Segments are ordered by
// activation date and contiguous. It is recomputed on every run, never stored.
type Timeline struct {
	Key          types.EmploymentKey
	Statuses     []types.EmploymentStatus
	Departments  []types.EmploymentDepartment
	Professions  []types.Profession
	WorkingTimes []types.WorkingTime
}

// LastEmployedDay returns the deactivation date of the last employed status
// segment, or false when the timeline holds no employed segment at all.
func (t Timeline) LastEmployedDay() (time.Time, bool) {
	var last time.Time
	found := false
	for _, s := range t.Statuses {
		if s.Code.IsEmployed() && (!found || s.Deactivation.After(last)) {
			last = s.Deactivation
			found = true
		}
	}
	return last, found
}

// Options controls the merge.
type Options struct {
	// EmployedOnly drops future status segments whose code is not in the
	// employed category. Used by the terminated-engagement repair path,
	// which only acts on segments it can re-open.
	EmployedOnly bool
}

// Merge combines the current employment record with the future changed
// record for the same employment. Either may be nil, but not both. The
// result is validated for contiguity; any hole fails the merge.
func Merge(key types.EmploymentKey, current, future *types.Employment, opts Options) (Timeline, error) {
	if current == nil && future == nil {
		return Timeline{}, errors.Wrapf(ErrInvalidTimeline, "cpr=%s employment=%s", types.AnonymizeCPR(key.CPR), key.EmploymentID)
	}

	t := Timeline{Key: key}
	if current != nil {
		t.Statuses = append(t.Statuses, current.Statuses...)
		t.Departments = append(t.Departments, current.Departments...)
		t.Professions = append(t.Professions, current.Professions...)
		t.WorkingTimes = append(t.WorkingTimes, current.WorkingTimes...)
	}
	if future != nil {
		futureStatuses := future.Statuses
		if opts.EmployedOnly {
			futureStatuses = employedOnly(futureStatuses)
		}
		t.Statuses = append(t.Statuses, futureStatuses...)
		t.Departments = append(t.Departments, future.Departments...)
		t.Professions = append(t.Professions, future.Professions...)
		t.WorkingTimes = append(t.WorkingTimes, future.WorkingTimes...)
	}

	sortStatuses(t.Statuses)
	sortDepartments(t.Departments)

	if err := validateStatuses(key, t.Statuses); err != nil {
		return Timeline{}, err
	}
	if err := validateDepartments(key, t.Departments); err != nil {
		return Timeline{}, err
	}
	return t, nil
}

func employedOnly(statuses []types.EmploymentStatus) []types.EmploymentStatus {
	kept := make([]types.EmploymentStatus, 0, len(statuses))
	for _, s := range statuses {
		if s.Code.IsEmployed() {
			kept = append(kept, s)
		}
	}
	return kept
}

func sortStatuses(statuses []types.EmploymentStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Activation.Before(statuses[j].Activation)
	})
}

func sortDepartments(departments []types.EmploymentDepartment) {
	sort.SliceStable(departments, func(i, j int) bool {
		return departments[i].Activation.Before(departments[j].Activation)
	})
}

func validateStatuses(key types.EmploymentKey, statuses []types.EmploymentStatus) error {
	for i := 1; i < len(statuses); i++ {
		prev, next := statuses[i-1], statuses[i]
		if !validity.NextDay(prev.Deactivation).Equal(next.Activation) {
			return &GapError{
				Key:              key,
				Kind:             "status",
				PrevDeactivation: validity.FormatSDDate(prev.Deactivation),
				NextActivation:   validity.FormatSDDate(next.Activation),
			}
		}
	}
	return nil
}

func validateDepartments(key types.EmploymentKey, departments []types.EmploymentDepartment) error {
	for i := 1; i < len(departments); i++ {
		prev, next := departments[i-1], departments[i]
		if !validity.NextDay(prev.Deactivation).Equal(next.Activation) {
			return &GapError{
				Key:              key,
				Kind:             "department",
				PrevDeactivation: validity.FormatSDDate(prev.Deactivation),
				NextActivation:   validity.FormatSDDate(next.Activation),
			}
		}
	}
	return nil
}

// IndexEmployments keys each employment in the persons list by
// (cpr, employment id). At most one record per key is expected from SD; a
// duplicate key keeps the last record seen.
func IndexEmployments(persons []types.Person) map[types.EmploymentKey]*types.Employment {
	index := make(map[types.EmploymentKey]*types.Employment)
	for _, p := range persons {
		for i := range p.Employments {
			emp := p.Employments[i]
			index[types.EmploymentKey{CPR: p.CPR, EmploymentID: emp.Identifier}] = &emp
		}
	}
	return index
}
