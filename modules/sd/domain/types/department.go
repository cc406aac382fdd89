package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Department is one SD department registration. A unit may have several
// registrations overlapping a query window, and SD shortnames are not
// guaranteed unique, so queries legitimately return more than one row.
type Department struct {
	Activation      time.Time
	Deactivation    time.Time
	Identifier      string
	LevelIdentifier string
	Name            string
	UnitUUID        uuid.UUID
}

func (d Department) Validity() validity.Interval {
	return validity.Interval{From: d.Activation, To: d.Deactivation}
}

// Institution is the SD institution record; the institution UUID marks the
// root of the organizational tree (a parent lookup resolving to it means the
// unit is a root unit).
type Institution struct {
	Identifier string
	UnitUUID   uuid.UUID
}
