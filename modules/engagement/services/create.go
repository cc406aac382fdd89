package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/engagement/domain"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	moservices "github.com/magenta-aps/sdlon/modules/mo/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
)

// createNewEngagement builds an engagement from the first segment of every
// employment attribute. When an attribute carries more than one segment the
// remaining ones are applied through a follow-up edit, so the created
// engagement never flattens a future change away.
func (r *Reconciler) createNewEngagement(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment) error {
	log := r.log.WithFields(logrus.Fields{
		"cpr":        sdtypes.AnonymizeCPR(person.CPR),
		"employment": emp.Identifier,
	})
	if len(emp.Statuses) > 0 && emp.Statuses[0].Code.IsLetGo() {
		log.Info("not creating engagement for an employment that starts let go")
		return nil
	}
	if len(emp.Departments) == 0 || len(emp.Professions) == 0 {
		log.Warn("employment lacks department or profession, cannot create engagement")
		return nil
	}

	profession := emp.Professions[0]
	typeName, ok := domain.DetermineEngagementType(emp.Identifier, profession.JobPositionIdentifier, r.cfg.MonthlyHourlyDivide, r.cfg.NoSalaryMinimum)
	if !ok {
		log.Info("refusing engagement for external below the no-salary minimum")
		return nil
	}

	from, to := emp.FromToDates()
	userKey := r.userKey(emp.Identifier)

	personUUID, err := r.mo.EnsurePerson(ctx, person.CPR, person.GivenName, person.Surname)
	if err != nil {
		return err
	}
	unit, err := r.applyNYLogic(ctx, personUUID, userKey, emp.Departments[0].UnitUUID, from, to)
	if err != nil {
		return err
	}
	engagementType, err := r.mo.EnsureClass(ctx, moservices.FacetEngagementType, typeName)
	if err != nil {
		return err
	}
	jobFunction, err := r.mo.EnsureClass(ctx, moservices.FacetJobFunction, r.jobFunctionName(profession))
	if err != nil {
		return err
	}

	var fraction int64
	if len(emp.WorkingTimes) > 0 {
		fraction = emp.WorkingTimes[0].OccupationRate.Mul(fractionScale).IntPart()
	}

	_, err = r.mo.CreateEngagement(ctx, moclient.EngagementCreateInput{
		PersonUUID:         personUUID,
		OrgUnitUUID:        unit,
		JobFunctionUUID:    jobFunction,
		EngagementTypeUUID: engagementType,
		UserKey:            userKey,
		Fraction:           fraction,
		From:               from,
		To:                 to,
	})
	if err != nil {
		return err
	}
	log.Info("created engagement")

	if len(emp.Departments) > 1 || len(emp.Professions) > 1 || len(emp.WorkingTimes) > 1 {
		engagement, err := r.findEngagementForCPR(ctx, person.CPR, userKey)
		if err != nil {
			return err
		}
		if engagement == nil {
			// Dry-run; the remaining segments would be applied on a
			// real run.
			return nil
		}
		return r.updateExistingEngagement(ctx, person, emp, engagement)
	}
	return nil
}

// applyNYLogic decides the unit an engagement row lands in. The raw payroll
// unit is used as-is unless its level is in the too-deep list, in which case
// the row is elevated to the nearest allowed ancestor and the raw placement
// is preserved as an association. A unit unknown to the record store is
// fixed into existence first.
func (r *Reconciler) applyNYLogic(ctx context.Context, personUUID uuid.UUID, userKey string, unit uuid.UUID, from, to time.Time) (uuid.UUID, error) {
	effective := laterDate(from, r.today())

	existing, err := r.mo.OrgUnitAt(ctx, unit, effective)
	if err != nil {
		return uuid.Nil, err
	}
	if existing == nil {
		if err := r.fixer.FixDepartment(ctx, unit, effective); err != nil {
			return uuid.Nil, err
		}
	}

	departments, err := r.sd.DepartmentsByUUID(ctx, unit, effective, effective)
	if err != nil {
		return uuid.Nil, err
	}
	if !r.levelTooDeep(departments[0].LevelIdentifier) {
		return unit, nil
	}

	associationType, err := r.mo.EnsureClass(ctx, moservices.FacetAssociation, associationTypeName)
	if err != nil {
		return uuid.Nil, err
	}
	err = r.mo.EnsureAssociation(ctx, moclient.AssociationCreateInput{
		PersonUUID:          personUUID,
		OrgUnitUUID:         unit,
		AssociationTypeUUID: associationType,
		UserKey:             userKey,
		From:                from,
		To:                  to,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return r.resolver.Resolve(ctx, unit, from)
}

func (r *Reconciler) levelTooDeep(level string) bool {
	for _, l := range r.cfg.TooDeep {
		if l == level {
			return true
		}
	}
	return false
}
