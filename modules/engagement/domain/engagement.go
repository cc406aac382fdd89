// Package domain holds the payroll-to-engagement mapping rules that need no
// external calls: engagement type selection, the no-salary consistency rule
// and the compensation for attribute edits re-opening closed engagements.
package domain

import (
	"strconv"
	"time"

	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Engagement type class names used for internal employees. External
// employees get a type named after their job position identifier instead.
const (
	EngagementTypeMonthly = "månedsløn"
	EngagementTypeHourly  = "timeløn"
)

// DetermineEngagementType maps an employment to its engagement type class
// name. Numeric employment identifiers below the monthly/hourly divide are
// monthly paid, the rest hourly. Non-numeric identifiers are external
// no-salary employees typed by job position; those are refused (false) when
// the job position is below the configured minimum. A minimum of zero
// disables the refusal.
func DetermineEngagementType(employmentID, jobPosition string, monthlyHourlyDivide, noSalaryMinimum int) (string, bool) {
	number := sdtypes.EmploymentNumber(employmentID)
	if number < monthlyHourlyDivide {
		return EngagementTypeMonthly, true
	}
	if number < 999999 {
		return EngagementTypeHourly, true
	}

	if noSalaryMinimum > 0 {
		if jobPos, err := strconv.Atoi(jobPosition); err == nil && jobPos < noSalaryMinimum {
			return "", false
		}
	}
	return jobPosition, true
}

// IsNoSalaryMinimumConsistent checks that the employment identifier and the
// job positions agree with the configured no-salary minimum: external
// employments must only carry job positions at or above the minimum, internal
// ones only below it. Without a configured minimum, or without professions,
// everything is consistent.
func IsNoSalaryMinimumConsistent(emp sdtypes.Employment, noSalaryMinimum int) bool {
	if noSalaryMinimum <= 0 || len(emp.Professions) == 0 {
		return true
	}
	external := sdtypes.IsExternal(emp.Identifier)
	for _, p := range emp.Professions {
		jobPos, err := strconv.Atoi(p.JobPositionIdentifier)
		if err != nil {
			continue
		}
		if external && jobPos < noSalaryMinimum {
			return false
		}
		if !external && jobPos >= noSalaryMinimum {
			return false
		}
	}
	return true
}

// ReterminationPoint decides whether an attribute edit needs a compensating
// termination. Editing an attribute applies its validity without regard to
// the engagement's recorded end date, so an edit reaching past that end
// silently re-opens a terminated engagement.
//
// recordedEnd is the engagement end observed before the edit and editEnd the
// deactivation of the edited attribute segment. When the edit reaches past
// the recorded end while payroll's last active day is earlier than the
// re-opened end, the engagement must be closed again: at the later of the
// recorded end and the last active day when any status segment is known, at
// the recorded end alone otherwise. Open-ended ends never produce a
// termination, since both systems then agree on "forever".
func ReterminationPoint(statuses []sdtypes.EmploymentStatus, recordedEnd, editEnd time.Time) (time.Time, bool) {
	if !editEnd.After(recordedEnd) {
		return time.Time{}, false
	}

	lastActive, known := sdtypes.LastDayOfWork(statuses)
	if !known {
		if validity.IsInfinite(recordedEnd) {
			return time.Time{}, false
		}
		return recordedEnd, true
	}

	if !lastActive.Before(editEnd) {
		return time.Time{}, false
	}
	point := recordedEnd
	if lastActive.After(point) {
		point = lastActive
	}
	if validity.IsInfinite(point) {
		return time.Time{}, false
	}
	return point, true
}
