// Package types holds the record-store view of persons, engagements and
// organizational units. All open-ended validities from the wire are
// normalized to the shared infinity sentinel before reaching this package.
package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

// EngagementSegment is one validity segment of an engagement as stored in
// MO. Segments of one engagement are ordered and non-overlapping.
type EngagementSegment struct {
	EngagementUUID     uuid.UUID
	UserKey            string
	PersonUUID         uuid.UUID
	OrgUnitUUID        uuid.UUID
	JobFunctionUUID    uuid.UUID
	EngagementTypeUUID uuid.UUID
	Fraction           int64
	Validity           validity.Interval
}

// Engagement groups the stored segments of one engagement.
type Engagement struct {
	UUID     uuid.UUID
	UserKey  string
	Segments []EngagementSegment
}

// EndDate returns the deactivation of the last segment, or false for an
// engagement without segments.
func (e Engagement) EndDate() (time.Time, bool) {
	if len(e.Segments) == 0 {
		return time.Time{}, false
	}
	last := e.Segments[0].Validity.To
	for _, s := range e.Segments[1:] {
		if s.Validity.To.After(last) {
			last = s.Validity.To
		}
	}
	return last, true
}

// OrgUnit is one organizational unit registration.
type OrgUnit struct {
	UUID       uuid.UUID
	UserKey    string
	Name       string
	ParentUUID uuid.UUID // uuid.Nil for a root unit
	LevelUUID  uuid.UUID
	TypeUUID   uuid.UUID
	Validity   validity.Interval
}

// Class is one classification value under a facet, e.g. an engagement type
// or an org-unit level.
type Class struct {
	UUID    uuid.UUID
	UserKey string
	Name    string
}

// Person is the slim person record the reconciler needs.
type Person struct {
	UUID      uuid.UUID
	CPR       string
	GivenName string
	Surname   string
}

// Association attaches a person to a unit independently of any engagement.
// Written when an engagement is elevated away from its raw department so the
// original placement stays visible.
type Association struct {
	UUID        uuid.UUID
	UserKey     string
	OrgUnitUUID uuid.UUID
	Validity    validity.Interval
}

// Leave is a leave record attached to an engagement.
type Leave struct {
	UUID           uuid.UUID
	PersonUUID     uuid.UUID
	EngagementUUID uuid.UUID
	LeaveTypeUUID  uuid.UUID
	Validity       validity.Interval
}
