package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/modules/timeline"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// FixTerminatedEngagements reconciles engagement end dates against the full
// current-plus-future payroll picture. Engagements the store keeps open
// longer than payroll are terminated; engagements payroll extended after a
// termination are re-opened. A timeline gap aborts that employment only.
func (r *Reconciler) FixTerminatedEngagements(ctx context.Context) error {
	now := r.today()
	current, err := r.sd.Employments(ctx, now, sdservices.EmploymentFilter{IncludePassive: true})
	if err != nil {
		return err
	}
	future, err := r.sd.EmploymentsChanged(ctx, validity.NextDay(now), validity.Infinity, sdservices.EmploymentFilter{})
	if err != nil {
		return err
	}

	currentIdx := timeline.IndexEmployments(current)
	futureIdx := timeline.IndexEmployments(future)
	keys := make(map[sdtypes.EmploymentKey]struct{}, len(currentIdx)+len(futureIdx))
	for key := range currentIdx {
		keys[key] = struct{}{}
	}
	for key := range futureIdx {
		keys[key] = struct{}{}
	}

	for key := range keys {
		if err := r.fixTerminated(ctx, key, currentIdx[key], futureIdx[key]); err != nil {
			r.log.WithFields(logrus.Fields{
				"cpr":        sdtypes.AnonymizeCPR(key.CPR),
				"employment": key.EmploymentID,
				"error":      err.Error(),
			}).Error("end-date repair failed")
		}
	}
	return nil
}

func (r *Reconciler) fixTerminated(ctx context.Context, key sdtypes.EmploymentKey, current, future *sdtypes.Employment) error {
	tl, err := timeline.Merge(key, current, future, timeline.Options{EmployedOnly: true})
	if err != nil {
		r.log.Warn(err.Error())
		return nil
	}
	sdEnd, ok := tl.LastEmployedDay()
	if !ok {
		return nil
	}

	engagement, err := r.findEngagementForCPR(ctx, key.CPR, r.userKey(key.EmploymentID))
	if err != nil {
		return err
	}
	if engagement == nil {
		return nil
	}
	moEnd, has := engagement.EndDate()
	if !has || sdEnd.Equal(moEnd) {
		return nil
	}

	if sdEnd.Before(moEnd) {
		return r.mo.TerminateEngagement(ctx, engagement.UUID, sdEnd)
	}
	userKey := engagement.UserKey
	return r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
		UUID:    engagement.UUID,
		From:    earliestFrom(engagement),
		To:      sdEnd,
		UserKey: &userKey,
	})
}

func earliestFrom(engagement *motypes.Engagement) time.Time {
	first := engagement.Segments[0].Validity.From
	for _, s := range engagement.Segments[1:] {
		if s.Validity.From.Before(first) {
			first = s.Validity.From
		}
	}
	return first
}

// UnapplyNYLogic rewrites every engagement placement back to the raw payroll
// department, issuing the minimal set of updates: each stored row is clipped
// against the overlapping payroll department segments and only rows placed
// in a different unit are touched. History older than the changed-at window
// is backfilled by walking payroll lookups backward from the earliest known
// segment; sub-ranges payroll still has no department for are reported and
// left alone.
func (r *Reconciler) UnapplyNYLogic(ctx context.Context) error {
	engagements, err := r.mo.AllEngagements(ctx)
	if err != nil {
		return err
	}
	for i := range engagements {
		if err := r.unapplyEngagement(ctx, &engagements[i]); err != nil {
			r.log.WithFields(logrus.Fields{
				"engagement": engagements[i].UUID,
				"error":      err.Error(),
			}).Error("placement rollback failed")
		}
	}
	return nil
}

func (r *Reconciler) unapplyEngagement(ctx context.Context, engagement *motypes.Engagement) error {
	if len(engagement.Segments) == 0 {
		return nil
	}
	cpr, err := r.mo.CPRForPerson(ctx, engagement.Segments[0].PersonUUID)
	if err != nil {
		return err
	}
	if cpr == "" {
		r.log.WithField("engagement", engagement.UUID).Warn("engagement person has no CPR, skipping")
		return nil
	}

	departments, err := r.departmentTimeline(ctx, cpr, r.employmentID(engagement.UserKey), earliestFrom(engagement))
	if err != nil {
		return err
	}
	if len(departments) == 0 {
		return nil
	}
	for _, segment := range engagement.Segments {
		if err := r.unapplySegment(ctx, engagement, segment, departments); err != nil {
			return err
		}
	}
	return nil
}

// departmentTimeline merges the current and future department segments of
// one employment, then extends the history backward until it reaches
// targetFrom. A gap is logged and treated as no data, so the engagement is
// left untouched rather than partially rewritten.
func (r *Reconciler) departmentTimeline(ctx context.Context, cpr, employmentID string, targetFrom time.Time) ([]sdtypes.EmploymentDepartment, error) {
	now := r.today()
	filter := sdservices.EmploymentFilter{CPR: cpr, EmploymentIdentifier: employmentID, IncludePassive: true}
	current, err := r.sd.Employments(ctx, now, filter)
	if err != nil {
		return nil, err
	}
	future, err := r.sd.EmploymentsChanged(ctx, validity.NextDay(now), validity.Infinity, filter)
	if err != nil {
		return nil, err
	}

	key := sdtypes.EmploymentKey{CPR: cpr, EmploymentID: employmentID}
	tl, err := timeline.Merge(key, timeline.IndexEmployments(current)[key], timeline.IndexEmployments(future)[key], timeline.Options{})
	if err != nil {
		if errors.Is(err, timeline.ErrInvalidTimeline) {
			return nil, nil
		}
		r.log.Warn(err.Error())
		return nil, nil
	}
	return r.backfillDepartments(ctx, key, filter, tl.Departments, targetFrom)
}

// backfillDepartments walks payroll backward from the earliest known
// department segment: each step reads the registration valid on the day
// before that segment starts and prepends it, clipped so segments stay
// non-overlapping. Payroll keeps no index of past registrations, so the walk
// stops when a lookup returns nothing or fails to move further back.
func (r *Reconciler) backfillDepartments(ctx context.Context, key sdtypes.EmploymentKey, filter sdservices.EmploymentFilter, departments []sdtypes.EmploymentDepartment, targetFrom time.Time) ([]sdtypes.EmploymentDepartment, error) {
	for len(departments) > 0 && departments[0].Activation.After(targetFrom) {
		lookup := validity.PrevDay(departments[0].Activation)
		persons, err := r.sd.Employments(ctx, lookup, filter)
		if err != nil {
			return nil, err
		}
		emp := timeline.IndexEmployments(persons)[key]
		if emp == nil || len(emp.Departments) == 0 {
			break
		}
		segment := emp.Departments[len(emp.Departments)-1]
		if !segment.Activation.Before(departments[0].Activation) {
			break
		}
		if segment.Deactivation.After(lookup) {
			segment.Deactivation = lookup
		}
		departments = append([]sdtypes.EmploymentDepartment{segment}, departments...)
	}
	return departments, nil
}

func (r *Reconciler) unapplySegment(ctx context.Context, engagement *motypes.Engagement, segment motypes.EngagementSegment, departments []sdtypes.EmploymentDepartment) error {
	next := segment.Validity.From
	for _, department := range departments {
		if department.Deactivation.Before(segment.Validity.From) || department.Activation.After(segment.Validity.To) {
			continue
		}
		from := laterDate(segment.Validity.From, department.Activation)
		to := earlierDate(segment.Validity.To, department.Deactivation)
		if from.After(next) {
			r.reportUncovered(engagement, next, validity.PrevDay(from))
		}
		if department.UnitUUID != segment.OrgUnitUUID {
			err := r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
				UUID:        engagement.UUID,
				From:        from,
				To:          to,
				OrgUnitUUID: &department.UnitUUID,
			})
			if err != nil {
				return err
			}
		}
		next = validity.NextDay(to)
	}
	if !next.After(segment.Validity.To) {
		r.reportUncovered(engagement, next, segment.Validity.To)
	}
	return nil
}

func (r *Reconciler) reportUncovered(engagement *motypes.Engagement, from, to time.Time) {
	r.log.WithFields(logrus.Fields{
		"engagement": engagement.UUID,
		"from":       validity.FormatSDDate(from),
		"to":         validity.FormatSDDate(to),
	}).Warn("no payroll department covers this range, placement kept")
}

// employmentID recovers the payroll employment identifier from an engagement
// user key, undoing zero padding and the optional institution prefix.
func (r *Reconciler) employmentID(userKey string) string {
	if r.cfg.PrefixUserKeys {
		userKey = strings.TrimPrefix(userKey, strings.ToUpper(r.cfg.InstitutionID)+"-")
	}
	if n, err := strconv.Atoi(userKey); err == nil {
		return strconv.Itoa(n)
	}
	return userKey
}

func earlierDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
