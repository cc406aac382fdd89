package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/engagement/domain"
	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// EngagementStore is the slice of the MO service the NY-logic fixer writes
// through.
type EngagementStore interface {
	EngagementsForCPR(ctx context.Context, cpr string) ([]motypes.Engagement, error)
	UpdateEngagement(ctx context.Context, in moclient.EngagementUpdateInput) error
	TerminateEngagement(ctx context.Context, engagement uuid.UUID, to time.Time) error
}

// NYLogicFixer moves engagements whose MO placement disagrees with the
// NY-logic elevation of their SD department. Mainly relevant when a
// department gets a new NY-level parent; must run after the department tree
// has been fixed so the elevation happens against a consistent tree.
type NYLogicFixer struct {
	sd       SDReader
	mo       EngagementStore
	resolver *Resolver
	fixer    *TreeFixer

	institutionID  string
	moRoot         uuid.UUID
	tooDeep        []string
	prefixUserKeys bool
	log            *logrus.Logger
	now            func() time.Time
}

func NewNYLogicFixer(
	sd SDReader,
	mo EngagementStore,
	resolver *Resolver,
	fixer *TreeFixer,
	institutionID string,
	moRoot uuid.UUID,
	tooDeep []string,
	prefixUserKeys bool,
	log *logrus.Logger,
) *NYLogicFixer {
	return &NYLogicFixer{
		sd:             sd,
		mo:             mo,
		resolver:       resolver,
		fixer:          fixer,
		institutionID:  institutionID,
		moRoot:         moRoot,
		tooDeep:        tooDeep,
		prefixUserKeys: prefixUserKeys,
		log:            log,
		now:            time.Now,
	}
}

// FixUnit is the trigger entry point: fix the department tree for the unit,
// then correct the placement of its engagements, both as of today. The
// configured root is refused since fixing it would walk the entire tree.
func (n *NYLogicFixer) FixUnit(ctx context.Context, unit uuid.UUID) error {
	if unit == n.moRoot {
		return errors.Errorf("refusing to fix the root unit %s", unit)
	}
	asOf := today(n.now)
	if err := n.fixer.FixDepartment(ctx, unit, asOf); err != nil {
		return err
	}
	return n.FixNYLogic(ctx, unit, asOf, "")
}

// FixNYLogic reads all engagements in a unit from SD and moves the MO rows
// that are not in the unit NY-logic elevates to. Engagements already placed
// correctly are left alone. Pass onlyUserKey to restrict the run to a single
// engagement.
func (n *NYLogicFixer) FixNYLogic(ctx context.Context, unit uuid.UUID, asOf time.Time, onlyUserKey string) error {
	n.log.WithFields(logrus.Fields{
		"unit":  unit,
		"as_of": validity.FormatSDDate(asOf),
	}).Info("fix NY logic")

	// Far enough ahead to see the registration every current and future
	// engagement hangs off.
	fixDate := asOf.AddDate(0, 0, 7*80)
	departments, err := n.sd.DepartmentsByUUID(ctx, unit, fixDate, fixDate)
	if err != nil {
		return err
	}
	department := departments[0]
	if !levelTooDeep(n.tooDeep, department.LevelIdentifier) {
		n.log.WithField("unit", unit).Info("unit is not a department-level unit")
		return nil
	}

	people, order, err := n.departmentPeople(ctx, department, asOf)
	if err != nil {
		return err
	}

	for _, cpr := range order {
		person := people[cpr]
		for _, emp := range person.Employments {
			if err := n.fixEmployment(ctx, unit, asOf, cpr, emp, onlyUserKey); err != nil {
				return err
			}
		}
	}
	return nil
}

// departmentPeople collects the current and future people of a department.
// The employment query has no time-range variant, so three points in time
// are sampled to cover all known future.
func (n *NYLogicFixer) departmentPeople(ctx context.Context, department sdtypes.Department, asOf time.Time) (map[string]sdtypes.Person, []string, error) {
	people := make(map[string]sdtypes.Person)
	var order []string
	for _, delta := range []int{0, 90, 365} {
		persons, err := n.sd.Employments(ctx, asOf.AddDate(0, 0, delta), sdservices.EmploymentFilter{
			Department:      department.Identifier,
			DepartmentLevel: department.LevelIdentifier,
		})
		if err != nil {
			return nil, nil, err
		}
		for _, p := range persons {
			if _, seen := people[p.CPR]; seen {
				continue
			}
			people[p.CPR] = p
			order = append(order, p.CPR)
		}
	}
	return people, order, nil
}

func (n *NYLogicFixer) fixEmployment(ctx context.Context, unit uuid.UUID, asOf time.Time, cpr string, emp sdtypes.Employment, onlyUserKey string) error {
	userKey := sdtypes.EngagementUserKey(emp.Identifier, n.institutionID, n.prefixUserKeys)
	if onlyUserKey != "" && userKey != onlyUserKey {
		return nil
	}
	log := n.log.WithFields(logrus.Fields{
		"cpr":      sdtypes.AnonymizeCPR(cpr),
		"user_key": userKey,
	})

	if len(emp.Departments) == 0 || emp.Departments[0].UnitUUID != unit {
		// Inherited from a lower level; happens when the fixer is
		// started above the department level.
		return nil
	}

	engagements, err := n.mo.EngagementsForCPR(ctx, cpr)
	if err != nil {
		return err
	}
	engagement := findEngagement(engagements, userKey)
	if engagement == nil {
		log.Warn("no MO engagement for employment")
		return nil
	}

	// The recorded end before any edit, needed to close the engagement
	// again if an edit re-opens it.
	recordedEnd, _ := engagement.EndDate()
	lastIdx := lastSegmentIndex(engagement.Segments)

	lastEdited := false
	for i, segment := range engagement.Segments {
		sdUnit, sdEnd, ok, err := n.employmentDepartment(ctx, cpr, emp.Identifier, segment.Validity.From)
		if err != nil {
			return err
		}
		if !ok {
			log.WithField("from", validity.FormatSDDate(segment.Validity.From)).Warn("no SD department for engagement row")
			continue
		}

		destination, err := n.resolver.Resolve(ctx, sdUnit, segment.Validity.From)
		if err != nil {
			return err
		}
		if segment.OrgUnitUUID == destination {
			log.Debug("engagement row already in the correct unit")
			continue
		}

		from := segment.Validity.From
		if from.Before(asOf) {
			from = asOf
		}
		err = n.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
			UUID:        engagement.UUID,
			From:        from,
			To:          sdEnd,
			OrgUnitUUID: &destination,
		})
		if err != nil {
			return err
		}
		if i == lastIdx {
			lastEdited = true
		}
	}

	if lastEdited {
		point, ok := domain.ReterminationPoint(emp.Statuses, recordedEnd, emp.Departments[0].Deactivation)
		if ok {
			return n.mo.TerminateEngagement(ctx, engagement.UUID, point)
		}
	}
	return nil
}

// employmentDepartment reads the SD department for one employment at the
// given date, floored at today since ancestry and placements cannot be read
// retroactively.
func (n *NYLogicFixer) employmentDepartment(ctx context.Context, cpr, employmentID string, at time.Time) (uuid.UUID, time.Time, bool, error) {
	persons, err := n.sd.Employments(ctx, laterDate(at, today(n.now)), sdservices.EmploymentFilter{
		CPR:                  cpr,
		EmploymentIdentifier: employmentID,
	})
	if err != nil {
		return uuid.Nil, time.Time{}, false, err
	}
	for _, person := range persons {
		for _, emp := range person.Employments {
			if emp.Identifier == employmentID && len(emp.Departments) > 0 {
				return emp.Departments[0].UnitUUID, emp.Departments[0].Deactivation, true, nil
			}
		}
	}
	return uuid.Nil, time.Time{}, false, nil
}

func findEngagement(engagements []motypes.Engagement, userKey string) *motypes.Engagement {
	for i := range engagements {
		if engagements[i].UserKey == userKey {
			return &engagements[i]
		}
	}
	return nil
}

func lastSegmentIndex(segments []motypes.EngagementSegment) int {
	idx := -1
	var last time.Time
	for i, s := range segments {
		if idx == -1 || !s.Validity.To.Before(last) {
			last = s.Validity.To
			idx = i
		}
	}
	return idx
}
