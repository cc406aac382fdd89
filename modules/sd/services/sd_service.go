// Package services exposes the SD Løn queries the reconciliation core
// consumes, bound to a single institution.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/modules/sd/infrastructure/sdclient"
)

// ErrNoCurrentValidity is returned when SD has no registration for the
// requested unit and date. Whether a lookup succeeds depends on internal SD
// start dates that cannot be read from the API, so callers must be prepared
// to handle this and fall back to a configured default.
var ErrNoCurrentValidity = errors.New("no current validity in SD")

// ErrAncestorLookup is returned when a parent lookup fails while the chain is
// still incomplete. It is propagated, never retried here.
var ErrAncestorLookup = errors.New("SD ancestor lookup failed")

// Client is the part of the SD wire client the service consumes.
type Client interface {
	GetEmployment(ctx context.Context, req sdclient.GetEmploymentRequest) ([]types.Person, error)
	GetEmploymentChanged(ctx context.Context, req sdclient.GetEmploymentChangedRequest) ([]types.Person, error)
	GetDepartment(ctx context.Context, req sdclient.GetDepartmentRequest) ([]types.Department, error)
	GetDepartmentParent(ctx context.Context, req sdclient.GetDepartmentParentRequest) (uuid.UUID, bool, error)
	GetInstitution(ctx context.Context, req sdclient.GetInstitutionRequest) (types.Institution, error)
}

type SDService struct {
	client        Client
	institutionID string
}

func NewSDService(client Client, institutionID string) *SDService {
	return &SDService{client: client, institutionID: institutionID}
}

func (s *SDService) InstitutionID() string {
	return s.institutionID
}

// EmploymentFilter narrows an Employments query. The department filter needs
// both the shortname and the level.
type EmploymentFilter struct {
	CPR                  string
	EmploymentIdentifier string
	Department           string
	DepartmentLevel      string
	IncludePassive       bool
}

// Employments returns the current employments as of effectiveDate.
func (s *SDService) Employments(ctx context.Context, effectiveDate time.Time, filter EmploymentFilter) ([]types.Person, error) {
	return s.client.GetEmployment(ctx, sdclient.GetEmploymentRequest{
		InstitutionIdentifier:     s.institutionID,
		EffectiveDate:             effectiveDate,
		CPR:                       filter.CPR,
		EmploymentIdentifier:      filter.EmploymentIdentifier,
		DepartmentIdentifier:      filter.Department,
		DepartmentLevelIdentifier: filter.DepartmentLevel,
		StatusActiveIndicator:     true,
		StatusPassiveIndicator:    filter.IncludePassive,
	})
}

// EmploymentsChanged returns the employment segments changed between
// activation and deactivation. Pass a zero deactivation to read all future
// segments.
func (s *SDService) EmploymentsChanged(ctx context.Context, activation, deactivation time.Time, filter EmploymentFilter) ([]types.Person, error) {
	return s.client.GetEmploymentChanged(ctx, sdclient.GetEmploymentChangedRequest{
		InstitutionIdentifier: s.institutionID,
		ActivationDate:        activation,
		DeactivationDate:      deactivation,
		CPR:                   filter.CPR,
		EmploymentIdentifier:  filter.EmploymentIdentifier,
	})
}

// DepartmentsByUUID returns the registrations for a unit overlapping
// [from, to]. An empty result maps to ErrNoCurrentValidity.
func (s *SDService) DepartmentsByUUID(ctx context.Context, unit uuid.UUID, from, to time.Time) ([]types.Department, error) {
	departments, err := s.client.GetDepartment(ctx, sdclient.GetDepartmentRequest{
		InstitutionIdentifier:    s.institutionID,
		ActivationDate:           from,
		DeactivationDate:         to,
		DepartmentUUIDIdentifier: unit,
	})
	if err != nil {
		return nil, err
	}
	if len(departments) == 0 {
		return nil, errors.Wrapf(ErrNoCurrentValidity, "unit %s at %s", unit, from.Format("2006-01-02"))
	}
	return departments, nil
}

// DepartmentsByShortname is the shortname variant of DepartmentsByUUID.
// Shortnames are not unique in SD, so more than one unit may be returned.
func (s *SDService) DepartmentsByShortname(ctx context.Context, shortname string, from, to time.Time) ([]types.Department, error) {
	departments, err := s.client.GetDepartment(ctx, sdclient.GetDepartmentRequest{
		InstitutionIdentifier: s.institutionID,
		ActivationDate:        from,
		DeactivationDate:      to,
		DepartmentIdentifier:  shortname,
	})
	if err != nil {
		return nil, err
	}
	if len(departments) == 0 {
		return nil, errors.Wrapf(ErrNoCurrentValidity, "shortname %q at %s", shortname, from.Format("2006-01-02"))
	}
	return departments, nil
}

// Parent returns the parent of a unit at effectiveDate. The institution root
// itself maps to (uuid.Nil, false): reaching it means the unit is a root
// unit. A response without any parent is an ancestor-lookup failure.
func (s *SDService) Parent(ctx context.Context, unit uuid.UUID, effectiveDate time.Time, institutionRoot uuid.UUID) (uuid.UUID, bool, error) {
	parent, ok, err := s.client.GetDepartmentParent(ctx, sdclient.GetDepartmentParentRequest{
		EffectiveDate:            effectiveDate,
		DepartmentUUIDIdentifier: unit,
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	if !ok {
		return uuid.Nil, false, errors.Wrapf(ErrAncestorLookup, "no parent for unit %s at %s", unit, effectiveDate.Format("2006-01-02"))
	}
	if parent == institutionRoot {
		return uuid.Nil, false, nil
	}
	return parent, true, nil
}

// Institution resolves the institution record for the bound identifier.
func (s *SDService) Institution(ctx context.Context) (types.Institution, error) {
	return s.client.GetInstitution(ctx, sdclient.GetInstitutionRequest{
		InstitutionIdentifier: s.institutionID,
	})
}
