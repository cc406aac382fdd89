package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/engagement/domain"
	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	moservices "github.com/magenta-aps/sdlon/modules/mo/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/configuration"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// fractionScale converts an occupation rate to the integer fraction stored
// in MO, e.g. 0.8 becomes 800000.
var fractionScale = decimal.NewFromInt(1_000_000)

// editEngagement pushes the attribute segments of a changed employment onto
// the engagement. A missing engagement is re-read from payroll at the best
// available date and recreated; attribute changes for an employment that was
// never allowed in stay dropped.
func (r *Reconciler) editEngagement(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, engagement *motypes.Engagement) error {
	if engagement != nil {
		return r.updateExistingEngagement(ctx, person, emp, engagement)
	}

	lookup := emp.BestEffortLookupDate(r.today())
	persons, err := r.sd.Employments(ctx, lookup, sdservices.EmploymentFilter{
		CPR:                  person.CPR,
		EmploymentIdentifier: emp.Identifier,
		IncludePassive:       true,
	})
	if err != nil {
		return err
	}
	for _, p := range persons {
		for _, full := range p.Employments {
			if full.Identifier != emp.Identifier {
				continue
			}
			if !domain.IsNoSalaryMinimumConsistent(full, r.cfg.NoSalaryMinimum) {
				r.log.WithFields(logrus.Fields{
					"cpr":        sdtypes.AnonymizeCPR(person.CPR),
					"employment": emp.Identifier,
				}).Info("refusing to recreate engagement below the no-salary minimum")
				return nil
			}
			return r.createNewEngagement(ctx, person, full)
		}
	}
	r.log.WithFields(logrus.Fields{
		"cpr":        sdtypes.AnonymizeCPR(person.CPR),
		"employment": emp.Identifier,
	}).Warn("employment not found in payroll, nothing to edit")
	return nil
}

// updateExistingEngagement applies the changed attribute segments in a fixed
// order. Every edit that can push the end past the recorded one is followed
// by a re-termination check, so a historic termination is never silently
// undone.
func (r *Reconciler) updateExistingEngagement(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, engagement *motypes.Engagement) error {
	recordedEnd, hasEnd := engagement.EndDate()
	if !hasEnd {
		recordedEnd = validity.Infinity
	}

	if err := r.editEngagementDepartments(ctx, person, emp, engagement, recordedEnd); err != nil {
		return err
	}
	if r.cfg.OverwriteExistingNames {
		if err := r.editEngagementProfessions(ctx, emp, engagement, recordedEnd); err != nil {
			return err
		}
	}
	if err := r.editEngagementTypes(ctx, emp, engagement, recordedEnd); err != nil {
		return err
	}
	return r.editEngagementWorktimes(ctx, emp, engagement, recordedEnd)
}

func (r *Reconciler) editEngagementDepartments(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, engagement *motypes.Engagement, recordedEnd time.Time) error {
	for _, department := range emp.Departments {
		personUUID, err := r.mo.EnsurePerson(ctx, person.CPR, person.GivenName, person.Surname)
		if err != nil {
			return err
		}
		unit, err := r.applyNYLogic(ctx, personUUID, engagement.UserKey, department.UnitUUID, department.Activation, department.Deactivation)
		if err != nil {
			return err
		}
		if segmentsAlreadyHave(engagement, department.Activation, department.Deactivation, func(s motypes.EngagementSegment) bool {
			return s.OrgUnitUUID == unit
		}) {
			continue
		}
		err = r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
			UUID:        engagement.UUID,
			From:        department.Activation,
			To:          department.Deactivation,
			OrgUnitUUID: &unit,
		})
		if err != nil {
			return err
		}
		if err := r.reterminate(ctx, engagement.UUID, emp.Statuses, recordedEnd, department.Deactivation); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) editEngagementProfessions(ctx context.Context, emp sdtypes.Employment, engagement *motypes.Engagement, recordedEnd time.Time) error {
	for _, profession := range emp.Professions {
		single := emp
		single.Professions = []sdtypes.Profession{profession}
		if !domain.IsNoSalaryMinimumConsistent(single, r.cfg.NoSalaryMinimum) {
			// The employment moved below the no-salary minimum;
			// instead of renaming, it stops here.
			if err := r.mo.TerminateEngagement(ctx, engagement.UUID, validity.PrevDay(profession.Activation)); err != nil {
				return err
			}
			continue
		}

		jobFunction, err := r.mo.EnsureClass(ctx, moservices.FacetJobFunction, r.jobFunctionName(profession))
		if err != nil {
			return err
		}
		if segmentsAlreadyHave(engagement, profession.Activation, profession.Deactivation, func(s motypes.EngagementSegment) bool {
			return s.JobFunctionUUID == jobFunction
		}) {
			continue
		}
		err = r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
			UUID:            engagement.UUID,
			From:            profession.Activation,
			To:              profession.Deactivation,
			JobFunctionUUID: &jobFunction,
		})
		if err != nil {
			return err
		}
		if err := r.reterminate(ctx, engagement.UUID, emp.Statuses, recordedEnd, profession.Deactivation); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) editEngagementTypes(ctx context.Context, emp sdtypes.Employment, engagement *motypes.Engagement, recordedEnd time.Time) error {
	for _, profession := range emp.Professions {
		typeName, ok := domain.DetermineEngagementType(emp.Identifier, profession.JobPositionIdentifier, r.cfg.MonthlyHourlyDivide, r.cfg.NoSalaryMinimum)
		if !ok {
			r.log.WithField("employment", emp.Identifier).Info("engagement type refused for external below minimum")
			continue
		}
		engagementType, err := r.mo.EnsureClass(ctx, moservices.FacetEngagementType, typeName)
		if err != nil {
			return err
		}
		if segmentsAlreadyHave(engagement, profession.Activation, profession.Deactivation, func(s motypes.EngagementSegment) bool {
			return s.EngagementTypeUUID == engagementType
		}) {
			continue
		}
		err = r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
			UUID:               engagement.UUID,
			From:               profession.Activation,
			To:                 profession.Deactivation,
			EngagementTypeUUID: &engagementType,
		})
		if err != nil {
			return err
		}
		if err := r.reterminate(ctx, engagement.UUID, emp.Statuses, recordedEnd, profession.Deactivation); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) editEngagementWorktimes(ctx context.Context, emp sdtypes.Employment, engagement *motypes.Engagement, recordedEnd time.Time) error {
	for _, worktime := range emp.WorkingTimes {
		fraction := worktime.OccupationRate.Mul(fractionScale).IntPart()
		if segmentsAlreadyHave(engagement, worktime.Activation, worktime.Deactivation, func(s motypes.EngagementSegment) bool {
			return s.Fraction == fraction
		}) {
			continue
		}
		err := r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
			UUID:     engagement.UUID,
			From:     worktime.Activation,
			To:       worktime.Deactivation,
			Fraction: &fraction,
		})
		if err != nil {
			return err
		}
		if err := r.reterminate(ctx, engagement.UUID, emp.Statuses, recordedEnd, worktime.Deactivation); err != nil {
			return err
		}
	}
	return nil
}

// segmentsAlreadyHave reports whether every stored segment overlapping the
// edit window already satisfies match. Such edits are dropped: re-running a
// window must converge to zero mutations, not re-write identical rows.
func segmentsAlreadyHave(engagement *motypes.Engagement, from, to time.Time, match func(motypes.EngagementSegment) bool) bool {
	window := validity.Interval{From: from, To: to}
	covered := false
	for _, s := range engagement.Segments {
		if !s.Validity.Overlaps(window) {
			continue
		}
		if !match(s) {
			return false
		}
		covered = true
	}
	return covered
}

func (r *Reconciler) reterminate(ctx context.Context, engagement uuid.UUID, statuses []sdtypes.EmploymentStatus, recordedEnd, editEnd time.Time) error {
	point, ok := domain.ReterminationPoint(statuses, recordedEnd, editEnd)
	if !ok {
		return nil
	}
	return r.mo.TerminateEngagement(ctx, engagement, point)
}

// jobFunctionName picks the payroll field the municipality maps to MO job
// functions. The free text name can be empty, in which case the position
// code is used regardless of configuration.
func (r *Reconciler) jobFunctionName(profession sdtypes.Profession) string {
	if r.cfg.JobFunction == configuration.JobFunctionEmploymentName && profession.EmploymentName != "" {
		return profession.EmploymentName
	}
	return profession.JobPositionIdentifier
}
