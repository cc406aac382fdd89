// Package services wraps the MO client with dry-run handling, mutation
// events and per-run class caching. The reconciler only talks to this layer.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/cache"
	"github.com/magenta-aps/sdlon/pkg/eventbus"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Facet user keys for the classes payroll data is mapped onto.
const (
	FacetEngagementType = "engagement_type"
	FacetJobFunction    = "engagement_job_function"
	FacetOrgUnitLevel   = "org_unit_level"
	FacetOrgUnitType    = "org_unit_type"
	FacetLeaveType      = "leave_type"
	FacetAssociation    = "association_type"
)

// Client is the part of the MO wire client the service consumes.
type Client interface {
	EngagementsByUserKey(ctx context.Context, userKey string) ([]types.Engagement, error)
	EngagementsForCPR(ctx context.Context, cpr string) ([]types.Engagement, error)
	AllEngagements(ctx context.Context) ([]types.Engagement, error)
	AssociationsForPerson(ctx context.Context, person uuid.UUID) ([]types.Association, error)
	CreateAssociation(ctx context.Context, in moclient.AssociationCreateInput) (uuid.UUID, error)
	CreateEngagement(ctx context.Context, in moclient.EngagementCreateInput) (uuid.UUID, error)
	UpdateEngagement(ctx context.Context, in moclient.EngagementUpdateInput) error
	TerminateEngagement(ctx context.Context, engagement uuid.UUID, to time.Time) error
	CreateLeave(ctx context.Context, in moclient.LeaveCreateInput) (uuid.UUID, error)
	OrgUnitAt(ctx context.Context, unit uuid.UUID, at time.Time) (*types.OrgUnit, error)
	CreateOrgUnit(ctx context.Context, in moclient.OrgUnitCreateInput) (uuid.UUID, error)
	UpdateOrgUnit(ctx context.Context, in moclient.OrgUnitUpdateInput) error
	PersonByCPR(ctx context.Context, cpr string) (*types.Person, error)
	CPRForPerson(ctx context.Context, person uuid.UUID) (string, error)
	CreatePerson(ctx context.Context, cpr, givenName, surname string) (uuid.UUID, error)
	UpdatePersonName(ctx context.Context, person uuid.UUID, givenName, surname string) error
	ClassesByFacet(ctx context.Context, facetUserKey string) ([]types.Class, error)
	FacetUUID(ctx context.Context, userKey string) (uuid.UUID, error)
	CreateClass(ctx context.Context, facetUUID uuid.UUID, name string) (uuid.UUID, error)
}

type MOService struct {
	client Client
	bus    eventbus.EventBus
	log    *logrus.Logger
	dryRun bool

	// classes maps facet user key to name->uuid, read through once per run.
	classes *cache.TTL[string, map[string]uuid.UUID]
	facets  *cache.TTL[string, uuid.UUID]
}

func NewMOService(client Client, bus eventbus.EventBus, log *logrus.Logger, dryRun bool) *MOService {
	return &MOService{
		client:  client,
		bus:     bus,
		log:     log,
		dryRun:  dryRun,
		classes: cache.NewTTL[string, map[string]uuid.UUID](30 * time.Minute),
		facets:  cache.NewTTL[string, uuid.UUID](30 * time.Minute),
	}
}

func (s *MOService) DryRun() bool {
	return s.dryRun
}

// ClearCaches drops the per-run lookup caches. Called between independent
// runs so class changes made out-of-band are picked up.
func (s *MOService) ClearCaches() {
	s.classes.Clear()
	s.facets.Clear()
}

func (s *MOService) EngagementsByUserKey(ctx context.Context, userKey string) ([]types.Engagement, error) {
	return s.client.EngagementsByUserKey(ctx, userKey)
}

func (s *MOService) EngagementsForCPR(ctx context.Context, cpr string) ([]types.Engagement, error) {
	return s.client.EngagementsForCPR(ctx, cpr)
}

func (s *MOService) AllEngagements(ctx context.Context) ([]types.Engagement, error) {
	return s.client.AllEngagements(ctx)
}

func (s *MOService) AssociationsForPerson(ctx context.Context, person uuid.UUID) ([]types.Association, error) {
	return s.client.AssociationsForPerson(ctx, person)
}

func (s *MOService) PersonByCPR(ctx context.Context, cpr string) (*types.Person, error) {
	return s.client.PersonByCPR(ctx, cpr)
}

func (s *MOService) CPRForPerson(ctx context.Context, person uuid.UUID) (string, error) {
	return s.client.CPRForPerson(ctx, person)
}

func (s *MOService) OrgUnitAt(ctx context.Context, unit uuid.UUID, at time.Time) (*types.OrgUnit, error) {
	return s.client.OrgUnitAt(ctx, unit, at)
}

// EnsureClass returns the uuid of the class with the given name under the
// facet, creating it when absent. In dry-run the created class gets a fresh
// uuid so downstream derivation still works.
func (s *MOService) EnsureClass(ctx context.Context, facetUserKey, name string) (uuid.UUID, error) {
	byName, err := s.classes.GetOrLoad(facetUserKey, func() (map[string]uuid.UUID, error) {
		classes, err := s.client.ClassesByFacet(ctx, facetUserKey)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]uuid.UUID, len(classes))
		for _, class := range classes {
			byName[class.Name] = class.UUID
		}
		return byName, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if classUUID, ok := byName[name]; ok {
		return classUUID, nil
	}

	s.bus.Publish(eventbus.Event{
		Kind:   eventbus.KindCreateClass,
		DryRun: s.dryRun,
		Detail: map[string]string{"facet": facetUserKey, "name": name},
	})
	if s.dryRun {
		classUUID := uuid.New()
		byName[name] = classUUID
		return classUUID, nil
	}

	facetUUID, err := s.facets.GetOrLoad(facetUserKey, func() (uuid.UUID, error) {
		return s.client.FacetUUID(ctx, facetUserKey)
	})
	if err != nil {
		return uuid.Nil, err
	}
	classUUID, err := s.client.CreateClass(ctx, facetUUID, name)
	if err != nil {
		return uuid.Nil, err
	}
	byName[name] = classUUID
	return classUUID, nil
}

// EnsurePerson returns the uuid of the person with the given CPR, importing
// the person from payroll data when MO does not know them yet.
func (s *MOService) EnsurePerson(ctx context.Context, cpr, givenName, surname string) (uuid.UUID, error) {
	person, err := s.client.PersonByCPR(ctx, cpr)
	if err != nil {
		return uuid.Nil, err
	}
	if person != nil {
		if givenName != "" && (person.GivenName != givenName || person.Surname != surname) {
			if s.dryRun {
				s.log.WithField("cpr", sdtypes.AnonymizeCPR(cpr)).Info("dry-run: would rename person")
			} else if err := s.client.UpdatePersonName(ctx, person.UUID, givenName, surname); err != nil {
				return uuid.Nil, err
			}
		}
		return person.UUID, nil
	}

	if s.dryRun {
		s.log.WithField("cpr", sdtypes.AnonymizeCPR(cpr)).Info("dry-run: would create person")
		return uuid.New(), nil
	}
	return s.client.CreatePerson(ctx, cpr, givenName, surname)
}

func (s *MOService) CreateEngagement(ctx context.Context, in moclient.EngagementCreateInput) (uuid.UUID, error) {
	s.bus.Publish(eventbus.Event{
		Kind:    eventbus.KindCreateEngagement,
		UserKey: in.UserKey,
		From:    validity.FormatSDDate(in.From),
		To:      moDateString(in.To),
		DryRun:  s.dryRun,
		Detail:  map[string]string{"org_unit": in.OrgUnitUUID.String()},
	})
	if s.dryRun {
		return uuid.New(), nil
	}
	return s.client.CreateEngagement(ctx, in)
}

func (s *MOService) UpdateEngagement(ctx context.Context, in moclient.EngagementUpdateInput) error {
	detail := map[string]string{}
	if in.OrgUnitUUID != nil {
		detail["org_unit"] = in.OrgUnitUUID.String()
	}
	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindEditEngagement,
		ObjectUUID: in.UUID.String(),
		From:       validity.FormatSDDate(in.From),
		To:         moDateString(in.To),
		DryRun:     s.dryRun,
		Detail:     detail,
	})
	if s.dryRun {
		return nil
	}
	return s.client.UpdateEngagement(ctx, in)
}

func (s *MOService) TerminateEngagement(ctx context.Context, engagement uuid.UUID, to time.Time) error {
	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindTerminateEngagement,
		ObjectUUID: engagement.String(),
		To:         validity.FormatSDDate(to),
		DryRun:     s.dryRun,
	})
	if s.dryRun {
		return nil
	}
	return s.client.TerminateEngagement(ctx, engagement, to)
}

func (s *MOService) CreateLeave(ctx context.Context, in moclient.LeaveCreateInput) (uuid.UUID, error) {
	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindCreateLeave,
		ObjectUUID: in.EngagementUUID.String(),
		From:       validity.FormatSDDate(in.From),
		To:         moDateString(in.To),
		DryRun:     s.dryRun,
	})
	if s.dryRun {
		return uuid.New(), nil
	}
	return s.client.CreateLeave(ctx, in)
}

// EnsureAssociation creates an association unless an identical one already
// exists for the person, unit and validity.
func (s *MOService) EnsureAssociation(ctx context.Context, in moclient.AssociationCreateInput) error {
	existing, err := s.client.AssociationsForPerson(ctx, in.PersonUUID)
	if err != nil {
		return err
	}
	want := validity.Interval{From: in.From, To: in.To}
	for _, a := range existing {
		if a.OrgUnitUUID == in.OrgUnitUUID && a.Validity.Equal(want) {
			return nil
		}
	}

	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindCreateAssociation,
		UserKey:    in.UserKey,
		ObjectUUID: in.OrgUnitUUID.String(),
		From:       validity.FormatSDDate(in.From),
		To:         moDateString(in.To),
		DryRun:     s.dryRun,
	})
	if s.dryRun {
		return nil
	}
	_, err = s.client.CreateAssociation(ctx, in)
	return err
}

func (s *MOService) CreateOrgUnit(ctx context.Context, in moclient.OrgUnitCreateInput) (uuid.UUID, error) {
	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindCreateOrgUnit,
		ObjectUUID: in.UUID.String(),
		UserKey:    in.UserKey,
		From:       validity.FormatSDDate(in.From),
		To:         moDateString(in.To),
		DryRun:     s.dryRun,
		Detail:     map[string]string{"name": in.Name},
	})
	if s.dryRun {
		return in.UUID, nil
	}
	return s.client.CreateOrgUnit(ctx, in)
}

func (s *MOService) UpdateOrgUnit(ctx context.Context, in moclient.OrgUnitUpdateInput) error {
	s.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindUpdateOrgUnit,
		ObjectUUID: in.UUID.String(),
		From:       validity.FormatSDDate(in.From),
		To:         moDateString(in.To),
		DryRun:     s.dryRun,
	})
	if s.dryRun {
		return nil
	}
	return s.client.UpdateOrgUnit(ctx, in)
}

func moDateString(to time.Time) string {
	if validity.IsInfinite(to) {
		return "infinity"
	}
	return validity.FormatSDDate(to)
}
