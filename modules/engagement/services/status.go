package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/engagement/domain"
	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	moservices "github.com/magenta-aps/sdlon/modules/mo/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// handleStatusChanges dispatches on the status segments of a changed
// employment. The returned skip tells the caller the employment is fully
// handled and the attribute edits must not run on top.
func (r *Reconciler) handleStatusChanges(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, engagement *motypes.Engagement) (bool, error) {
	skip := false
	log := r.log.WithFields(logrus.Fields{
		"cpr":        sdtypes.AnonymizeCPR(person.CPR),
		"employment": emp.Identifier,
	})

	for _, status := range emp.Statuses {
		switch {
		case status.Code == sdtypes.StatusNotYetEmployed || status.Code == sdtypes.StatusEmployedWithPay:
			if engagement != nil {
				if err := r.editEngagementStatus(ctx, emp, engagement); err != nil {
					return false, err
				}
				if err := r.updateExistingEngagement(ctx, person, emp, engagement); err != nil {
					return false, err
				}
			} else {
				if !domain.IsNoSalaryMinimumConsistent(emp, r.cfg.NoSalaryMinimum) {
					log.Info("refusing engagement below the no-salary minimum")
				} else if err := r.createNewEngagement(ctx, person, emp); err != nil {
					return false, err
				}
			}
			skip = true

		case status.Code == sdtypes.StatusOnLeave:
			if err := r.handleLeave(ctx, person, emp, status, engagement); err != nil {
				return false, err
			}

		case status.Code.IsLetGo():
			if engagement == nil {
				log.WithField("status", string(status.Code)).Info("no engagement to terminate")
				return true, nil
			}
			if err := r.mo.TerminateEngagement(ctx, engagement.UUID, validity.PrevDay(status.Activation)); err != nil {
				return false, err
			}
			skip = true

		case status.Code.IsDeleted():
			if err := r.terminateAllForUserKey(ctx, emp, status); err != nil {
				return false, err
			}
			skip = true

		default:
			log.WithField("status", string(status.Code)).Warn("unknown employment status code")
		}
	}
	return skip, nil
}

func (r *Reconciler) handleLeave(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, status sdtypes.EmploymentStatus, engagement *motypes.Engagement) error {
	if engagement == nil {
		if r.cfg.SkipLeaveCreationIfNoEngagement {
			r.log.WithField("cpr", sdtypes.AnonymizeCPR(person.CPR)).Info("leave without engagement skipped")
			return nil
		}
		if !domain.IsNoSalaryMinimumConsistent(emp, r.cfg.NoSalaryMinimum) {
			return nil
		}
		if err := r.createNewEngagement(ctx, person, emp); err != nil {
			return err
		}
		var err error
		engagement, err = r.findEngagementForCPR(ctx, person.CPR, r.userKey(emp.Identifier))
		if err != nil {
			return err
		}
		if engagement == nil {
			// Dry-run or creation refused; nothing to attach the
			// leave to.
			return nil
		}
	}

	personUUID, err := r.mo.EnsurePerson(ctx, person.CPR, person.GivenName, person.Surname)
	if err != nil {
		return err
	}
	leaveType, err := r.mo.EnsureClass(ctx, moservices.FacetLeaveType, leaveTypeName)
	if err != nil {
		return err
	}
	_, err = r.mo.CreateLeave(ctx, moclient.LeaveCreateInput{
		PersonUUID:     personUUID,
		EngagementUUID: engagement.UUID,
		LeaveTypeUUID:  leaveType,
		From:           status.Activation,
		To:             status.Deactivation,
	})
	return err
}

// terminateAllForUserKey handles the deleted status: every engagement ever
// keyed by this employment is cut off the day before the deletion takes
// effect, historic ones included. The day-before cut mirrors the let-go
// handling, where the status activation itself is the first day the person
// is no longer employed.
func (r *Reconciler) terminateAllForUserKey(ctx context.Context, emp sdtypes.Employment, status sdtypes.EmploymentStatus) error {
	engagements, err := r.mo.EngagementsByUserKey(ctx, r.userKey(emp.Identifier))
	if err != nil {
		return err
	}
	for _, engagement := range engagements {
		if err := r.mo.TerminateEngagement(ctx, engagement.UUID, validity.PrevDay(status.Activation)); err != nil {
			return err
		}
	}
	return nil
}

// editEngagementStatus extends the recorded end of an engagement when
// payroll now knows a later employed end. The end is only ever pushed
// forward here; shortening happens through termination.
func (r *Reconciler) editEngagementStatus(ctx context.Context, emp sdtypes.Employment, engagement *motypes.Engagement) error {
	sdEnd, ok := latestEmployedEnd(emp.Statuses)
	if !ok {
		return nil
	}
	moEnd, has := engagement.EndDate()
	if !has || validity.IsInfinite(moEnd) || !sdEnd.After(moEnd) {
		return nil
	}
	userKey := engagement.UserKey
	return r.mo.UpdateEngagement(ctx, moclient.EngagementUpdateInput{
		UUID:    engagement.UUID,
		From:    validity.NextDay(moEnd),
		To:      sdEnd,
		UserKey: &userKey,
	})
}

func latestEmployedEnd(statuses []sdtypes.EmploymentStatus) (time.Time, bool) {
	var last time.Time
	found := false
	for _, s := range statuses {
		if s.Code.IsEmployed() && (!found || s.Deactivation.After(last)) {
			last = s.Deactivation
			found = true
		}
	}
	return last, found
}
