// Package services reconciles changed payroll employments into the record
// store. The reconciler is driven by day windows and is safe to re-run over
// a window it already processed.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	orgsync "github.com/magenta-aps/sdlon/modules/orgsync/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Class names for records the reconciler creates as a side effect.
const (
	associationTypeName = "SD-medarbejder"
	leaveTypeName       = "Orlov"
)

// SDSource is the payroll query surface the reconciler consumes.
type SDSource interface {
	Employments(ctx context.Context, effectiveDate time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error)
	EmploymentsChanged(ctx context.Context, activation, deactivation time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error)
	DepartmentsByUUID(ctx context.Context, unit uuid.UUID, from, to time.Time) ([]sdtypes.Department, error)
}

// MOStore is the record-store surface the reconciler writes through. All
// writes go via the service layer so dry-run gating and mutation events
// apply uniformly.
type MOStore interface {
	EngagementsForCPR(ctx context.Context, cpr string) ([]motypes.Engagement, error)
	EngagementsByUserKey(ctx context.Context, userKey string) ([]motypes.Engagement, error)
	AllEngagements(ctx context.Context) ([]motypes.Engagement, error)
	CreateEngagement(ctx context.Context, in moclient.EngagementCreateInput) (uuid.UUID, error)
	UpdateEngagement(ctx context.Context, in moclient.EngagementUpdateInput) error
	TerminateEngagement(ctx context.Context, engagement uuid.UUID, to time.Time) error
	CreateLeave(ctx context.Context, in moclient.LeaveCreateInput) (uuid.UUID, error)
	EnsureClass(ctx context.Context, facetUserKey, name string) (uuid.UUID, error)
	EnsurePerson(ctx context.Context, cpr, givenName, surname string) (uuid.UUID, error)
	EnsureAssociation(ctx context.Context, in moclient.AssociationCreateInput) error
	OrgUnitAt(ctx context.Context, unit uuid.UUID, at time.Time) (*motypes.OrgUnit, error)
	PersonByCPR(ctx context.Context, cpr string) (*motypes.Person, error)
	CPRForPerson(ctx context.Context, person uuid.UUID) (string, error)
}

// Config carries the payroll-side tuning the reconciler needs. The fields
// mirror the SD_* environment options.
type Config struct {
	InstitutionID       string
	MonthlyHourlyDivide int
	NoSalaryMinimum     int
	JobFunction         string
	TooDeep             []string

	OverwriteExistingNames          bool
	SkipLeaveCreationIfNoEngagement bool
	SkipEmploymentTypes             []string
	CPRs                            []string
	ExcludeCPRsMode                 bool
	PrefixUserKeys                  bool
}

type Reconciler struct {
	sd       SDSource
	mo       MOStore
	resolver *orgsync.Resolver
	fixer    *orgsync.TreeFixer
	cfg      Config
	log      *logrus.Logger
	now      func() time.Time
}

func NewReconciler(
	sd SDSource,
	mo MOStore,
	resolver *orgsync.Resolver,
	fixer *orgsync.TreeFixer,
	cfg Config,
	log *logrus.Logger,
) *Reconciler {
	return &Reconciler{
		sd:       sd,
		mo:       mo,
		resolver: resolver,
		fixer:    fixer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (r *Reconciler) today() time.Time {
	return validity.ToMidnight(r.now().UTC())
}

// UpdateChangedPersons pushes name changes from payroll into the record
// store for the window. Persons unknown to the store are created here so the
// employment pass can attach engagements to them.
func (r *Reconciler) UpdateChangedPersons(ctx context.Context, from, to time.Time, onlyCPR string) error {
	persons, err := r.sd.EmploymentsChanged(ctx, from, to, sdservices.EmploymentFilter{CPR: onlyCPR})
	if err != nil {
		return err
	}
	for _, person := range persons {
		if !r.includePerson(person.CPR) {
			continue
		}
		if person.GivenName == "" && person.Surname == "" {
			continue
		}
		if _, err := r.mo.EnsurePerson(ctx, person.CPR, person.GivenName, person.Surname); err != nil {
			r.log.WithFields(logrus.Fields{
				"cpr":   sdtypes.AnonymizeCPR(person.CPR),
				"error": err.Error(),
			}).Error("person update failed")
		}
	}
	return nil
}

// UpdateEmployments reconciles every employment changed in the window. A
// failure on one employment is logged and the run continues; the next window
// will see the change again. Pass onlyCPR to restrict the run to one person.
func (r *Reconciler) UpdateEmployments(ctx context.Context, from, to time.Time, onlyCPR string) error {
	persons, err := r.sd.EmploymentsChanged(ctx, from, to, sdservices.EmploymentFilter{CPR: onlyCPR})
	if err != nil {
		return err
	}
	for _, person := range persons {
		if !r.includePerson(person.CPR) {
			continue
		}
		if err := r.updatePerson(ctx, person); err != nil {
			r.log.WithFields(logrus.Fields{
				"cpr":   sdtypes.AnonymizeCPR(person.CPR),
				"error": err.Error(),
			}).Error("person reconciliation failed")
		}
	}
	return nil
}

func (r *Reconciler) updatePerson(ctx context.Context, person sdtypes.Person) error {
	moPerson, err := r.mo.PersonByCPR(ctx, person.CPR)
	if err != nil {
		return err
	}
	if moPerson == nil {
		// The person pass ran over the same window, so this only
		// happens for persons whose names were withheld.
		if _, err := r.mo.EnsurePerson(ctx, person.CPR, person.GivenName, person.Surname); err != nil {
			return err
		}
	}

	engagements, err := r.mo.EngagementsForCPR(ctx, person.CPR)
	if err != nil {
		return err
	}
	for _, emp := range person.Employments {
		emp = emp.FilterProfessions(r.cfg.SkipEmploymentTypes)
		if err := r.processEmployment(ctx, person, emp, engagements); err != nil {
			r.log.WithFields(logrus.Fields{
				"cpr":        sdtypes.AnonymizeCPR(person.CPR),
				"employment": emp.Identifier,
				"error":      err.Error(),
			}).Error("employment reconciliation failed")
		}
	}
	return nil
}

func (r *Reconciler) processEmployment(ctx context.Context, person sdtypes.Person, emp sdtypes.Employment, engagements []motypes.Engagement) error {
	userKey := r.userKey(emp.Identifier)
	engagement := findEngagement(engagements, userKey)

	if len(emp.Statuses) > 0 {
		skip, err := r.handleStatusChanges(ctx, person, emp, engagement)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		// The status handling may have created the engagement.
		engagement, err = r.findEngagementForCPR(ctx, person.CPR, userKey)
		if err != nil {
			return err
		}
	}
	return r.editEngagement(ctx, person, emp, engagement)
}

func (r *Reconciler) userKey(employmentID string) string {
	return sdtypes.EngagementUserKey(employmentID, r.cfg.InstitutionID, r.cfg.PrefixUserKeys)
}

// includePerson applies the fictional-CPR guard and the configured CPR
// include/exclude list.
func (r *Reconciler) includePerson(cpr string) bool {
	if FictionalCPR(cpr) {
		r.log.WithField("cpr", sdtypes.AnonymizeCPR(cpr)).Debug("skipping fictional person")
		return false
	}
	if len(r.cfg.CPRs) == 0 {
		return true
	}
	listed := false
	for _, c := range r.cfg.CPRs {
		if c == cpr {
			listed = true
			break
		}
	}
	if r.cfg.ExcludeCPRsMode {
		return !listed
	}
	return listed
}

// FictionalCPR reports whether the CPR belongs to a fictional person, used
// by payroll for test records. The first six digits of a real CPR are a
// valid ddmmyy birth date.
func FictionalCPR(cpr string) bool {
	if len(cpr) < 6 {
		return true
	}
	_, err := time.Parse("020106", cpr[:6])
	return err != nil
}

func (r *Reconciler) findEngagementForCPR(ctx context.Context, cpr, userKey string) (*motypes.Engagement, error) {
	engagements, err := r.mo.EngagementsForCPR(ctx, cpr)
	if err != nil {
		return nil, err
	}
	return findEngagement(engagements, userKey), nil
}

func findEngagement(engagements []motypes.Engagement, userKey string) *motypes.Engagement {
	for i := range engagements {
		if engagements[i].UserKey == userKey {
			return &engagements[i]
		}
	}
	return nil
}

func laterDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
