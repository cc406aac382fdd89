package types

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

// EmploymentStatus is one status segment of an employment, valid over the
// closed [Activation, Deactivation] range.
type EmploymentStatus struct {
	Activation   time.Time
	Deactivation time.Time
	Code         StatusCode
}

func (s EmploymentStatus) Validity() validity.Interval {
	return validity.Interval{From: s.Activation, To: s.Deactivation}
}

// EmploymentDepartment is one organizational-placement segment.
type EmploymentDepartment struct {
	Activation   time.Time
	Deactivation time.Time
	Identifier   string
	UnitUUID     uuid.UUID
}

func (d EmploymentDepartment) Validity() validity.Interval {
	return validity.Interval{From: d.Activation, To: d.Deactivation}
}

// Profession is one job-attribute segment.
type Profession struct {
	Activation            time.Time
	Deactivation          time.Time
	JobPositionIdentifier string
	EmploymentName        string
	AppointmentCode       string
}

func (p Profession) Validity() validity.Interval {
	return validity.Interval{From: p.Activation, To: p.Deactivation}
}

// WorkingTime is one worktime segment. OccupationRate is the fraction of full
// time, e.g. 0.8000.
type WorkingTime struct {
	Activation     time.Time
	Deactivation   time.Time
	OccupationRate decimal.Decimal
}

func (w WorkingTime) Validity() validity.Interval {
	return validity.Interval{From: w.Activation, To: w.Deactivation}
}

// Employment is one SD employment for a person, with every one-or-many wire
// field normalized to a slice. Segment slices are ordered chronologically as
// delivered by SD.
type Employment struct {
	Identifier      string
	EmploymentDate  time.Time
	AnniversaryDate time.Time
	Statuses        []EmploymentStatus
	Departments     []EmploymentDepartment
	Professions     []Profession
	WorkingTimes    []WorkingTime
}

// Person is one SD person with its employments.
type Person struct {
	CPR         string
	GivenName   string
	Surname     string
	Employments []Employment
}

// EmploymentKey identifies an employment across both systems.
type EmploymentKey struct {
	CPR          string
	EmploymentID string
}

// AnonymizeCPR masks the last four digits of a CPR number. CPRs must never
// reach logs or error messages unmasked.
func AnonymizeCPR(cpr string) string {
	if len(cpr) < 6 {
		return "xxxxxx-xxxx"
	}
	return cpr[:6] + "-xxxx"
}

// EmploymentNumber parses the employment identifier as a number. Identifiers
// containing letters belong to external employees and map to the out-of-band
// value 999999.
func EmploymentNumber(employmentID string) int {
	n, err := strconv.Atoi(employmentID)
	if err != nil {
		return 999999
	}
	return n
}

// IsExternal reports whether the employment identifier belongs to an external
// employee, which (at least in some municipalities) is signalled by letters in
// the identifier.
func IsExternal(employmentID string) bool {
	for _, r := range employmentID {
		if r < '0' || r > '9' {
			return true
		}
	}
	return employmentID == ""
}

// EngagementUserKey derives the MO engagement user key from the SD employment
// identifier: numeric identifiers are zero-padded to five digits, and the
// institution identifier is optionally prefixed.
func EngagementUserKey(employmentID, institutionID string, prefixWithInstID bool) string {
	userKey := employmentID
	if n, err := strconv.Atoi(employmentID); err == nil {
		userKey = zeroPad(n, 5)
	}
	if !prefixWithInstID {
		return userKey
	}
	return strings.ToUpper(institutionID) + "-" + userKey
}

func zeroPad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// FilterProfessions removes professions whose JobPositionIdentifier is in the
// configured skip list.
func (e Employment) FilterProfessions(skip []string) Employment {
	if len(skip) == 0 || len(e.Professions) == 0 {
		return e
	}
	kept := make([]Profession, 0, len(e.Professions))
	for _, p := range e.Professions {
		if !contains(skip, p.JobPositionIdentifier) {
			kept = append(kept, p)
		}
	}
	e.Professions = kept
	return e
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// LastDayOfWork computes the last day the employment represents actual work:
// the deactivation date of the last employed segment, or the day before the
// sole inactive segment begins, or zero when the status list is empty. Mixed
// sequences of more than one inactive segment without any active ones are not
// expected from SD.
func LastDayOfWork(statuses []EmploymentStatus) (time.Time, bool) {
	var active, inactive []EmploymentStatus
	for _, s := range statuses {
		if s.Code.IsEmployed() {
			active = append(active, s)
		} else {
			inactive = append(inactive, s)
		}
	}
	if len(active) > 0 {
		return active[len(active)-1].Deactivation, true
	}
	if len(inactive) == 1 {
		return validity.PrevDay(inactive[0].Activation), true
	}
	return time.Time{}, false
}

// FromToDates derives the effective validity of an SD employment payload. The
// "from" date is the maximum of all component activation dates (SD dates any
// retroactive correction at its own activation); let-go employments instead
// span employment date to the day before the let-go status begins.
func (e Employment) FromToDates() (time.Time, time.Time) {
	if len(e.Statuses) > 0 && e.Statuses[0].Code.IsLetGo() {
		return e.EmploymentDate, validity.PrevDay(e.Statuses[0].Activation)
	}

	from := e.EmploymentDate
	var to time.Time
	if len(e.Statuses) > 0 {
		to = e.Statuses[0].Deactivation
	}
	maxDate := func(d time.Time) {
		if d.After(from) {
			from = d
		}
	}
	for _, s := range e.Statuses {
		maxDate(s.Activation)
	}
	for _, d := range e.Departments {
		maxDate(d.Activation)
	}
	for _, p := range e.Professions {
		maxDate(p.Activation)
	}
	for _, w := range e.WorkingTimes {
		maxDate(w.Activation)
	}
	return from, to
}

// BestEffortLookupDate picks the SD lookup date for re-reading a missing
// engagement: the earliest component activation, floored at today. There is no
// guarantee this retrieves the full picture, but it is the best available at
// the point where a missing engagement is discovered mid-edit.
func (e Employment) BestEffortLookupDate(today time.Time) time.Time {
	min := validity.Infinity
	earliest := func(d time.Time) {
		if d.Before(min) {
			min = d
		}
	}
	for _, s := range e.Statuses {
		earliest(s.Activation)
	}
	for _, d := range e.Departments {
		earliest(d.Activation)
	}
	for _, p := range e.Professions {
		earliest(p.Activation)
	}
	for _, w := range e.WorkingTimes {
		earliest(w.Activation)
	}
	if min.Before(today) {
		return today
	}
	return min
}
