package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	motypes "github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	orgsync "github.com/magenta-aps/sdlon/modules/orgsync/services"
	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/configuration"
	"github.com/magenta-aps/sdlon/pkg/logging"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

type terminatedCall struct {
	engagement uuid.UUID
	to         time.Time
}

type fakeStore struct {
	persons      map[string]uuid.UUID
	cprByPerson  map[uuid.UUID]string
	engagements  map[string][]motypes.Engagement
	orgUnits     map[uuid.UUID]bool
	created      []moclient.EngagementCreateInput
	updates      []moclient.EngagementUpdateInput
	terminated   []terminatedCall
	leaves       []moclient.LeaveCreateInput
	associations []moclient.AssociationCreateInput
	unitsCreated []moclient.OrgUnitCreateInput
	unitsUpdated []moclient.OrgUnitUpdateInput
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons:     make(map[string]uuid.UUID),
		cprByPerson: make(map[uuid.UUID]string),
		engagements: make(map[string][]motypes.Engagement),
		orgUnits:    make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) EngagementsForCPR(_ context.Context, cpr string) ([]motypes.Engagement, error) {
	return f.engagements[cpr], nil
}

func (f *fakeStore) EngagementsByUserKey(_ context.Context, userKey string) ([]motypes.Engagement, error) {
	var out []motypes.Engagement
	for _, engagements := range f.engagements {
		for _, e := range engagements {
			if e.UserKey == userKey {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) AllEngagements(_ context.Context) ([]motypes.Engagement, error) {
	var out []motypes.Engagement
	for _, engagements := range f.engagements {
		out = append(out, engagements...)
	}
	return out, nil
}

func (f *fakeStore) CreateEngagement(_ context.Context, in moclient.EngagementCreateInput) (uuid.UUID, error) {
	f.created = append(f.created, in)
	return uuid.New(), nil
}

func (f *fakeStore) UpdateEngagement(_ context.Context, in moclient.EngagementUpdateInput) error {
	f.updates = append(f.updates, in)
	return nil
}

func (f *fakeStore) TerminateEngagement(_ context.Context, engagement uuid.UUID, to time.Time) error {
	f.terminated = append(f.terminated, terminatedCall{engagement: engagement, to: to})
	return nil
}

func (f *fakeStore) CreateLeave(_ context.Context, in moclient.LeaveCreateInput) (uuid.UUID, error) {
	f.leaves = append(f.leaves, in)
	return uuid.New(), nil
}

func (f *fakeStore) EnsureClass(_ context.Context, facetUserKey, name string) (uuid.UUID, error) {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(facetUserKey+"/"+name)), nil
}

func (f *fakeStore) EnsurePerson(_ context.Context, cpr, _, _ string) (uuid.UUID, error) {
	if existing, ok := f.persons[cpr]; ok {
		return existing, nil
	}
	personUUID := uuid.New()
	f.persons[cpr] = personUUID
	f.cprByPerson[personUUID] = cpr
	return personUUID, nil
}

func (f *fakeStore) EnsureAssociation(_ context.Context, in moclient.AssociationCreateInput) error {
	f.associations = append(f.associations, in)
	return nil
}

func (f *fakeStore) OrgUnitAt(_ context.Context, unit uuid.UUID, _ time.Time) (*motypes.OrgUnit, error) {
	if !f.orgUnits[unit] {
		return nil, nil
	}
	return &motypes.OrgUnit{UUID: unit}, nil
}

func (f *fakeStore) CreateOrgUnit(_ context.Context, in moclient.OrgUnitCreateInput) (uuid.UUID, error) {
	f.unitsCreated = append(f.unitsCreated, in)
	f.orgUnits[in.UUID] = true
	return in.UUID, nil
}

func (f *fakeStore) UpdateOrgUnit(_ context.Context, in moclient.OrgUnitUpdateInput) error {
	f.unitsUpdated = append(f.unitsUpdated, in)
	return nil
}

func (f *fakeStore) PersonByCPR(_ context.Context, cpr string) (*motypes.Person, error) {
	if personUUID, ok := f.persons[cpr]; ok {
		return &motypes.Person{UUID: personUUID, CPR: cpr}, nil
	}
	return nil, nil
}

func (f *fakeStore) CPRForPerson(_ context.Context, person uuid.UUID) (string, error) {
	return f.cprByPerson[person], nil
}

// fakePayroll serves both the reconciler and the orgsync fixers.
type fakePayroll struct {
	institution uuid.UUID
	current     []sdtypes.Person
	changed     []sdtypes.Person
	// atDate overrides the current snapshot for specific effective dates,
	// for tests exercising historic lookups.
	atDate  map[string][]sdtypes.Person
	levels  map[uuid.UUID]string
	parents map[uuid.UUID]uuid.UUID
}

func (f *fakePayroll) Employments(_ context.Context, effectiveDate time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error) {
	if persons, ok := f.atDate[validity.FormatSDDate(effectiveDate)]; ok {
		return filterPersons(persons, filter), nil
	}
	return filterPersons(f.current, filter), nil
}

func (f *fakePayroll) EmploymentsChanged(_ context.Context, _, _ time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error) {
	return filterPersons(f.changed, filter), nil
}

func (f *fakePayroll) DepartmentsByUUID(_ context.Context, unit uuid.UUID, from, _ time.Time) ([]sdtypes.Department, error) {
	level, ok := f.levels[unit]
	if !ok {
		return nil, errors.Wrapf(sdservices.ErrNoCurrentValidity, "unit %s", unit)
	}
	return []sdtypes.Department{{
		Activation:      validity.Date(2000, time.January, 1),
		Deactivation:    validity.Infinity,
		Identifier:      "dep_" + unit.String()[:4],
		LevelIdentifier: level,
		UnitUUID:        unit,
	}}, nil
}

func (f *fakePayroll) Parent(_ context.Context, unit uuid.UUID, _ time.Time, institutionRoot uuid.UUID) (uuid.UUID, bool, error) {
	parent, ok := f.parents[unit]
	if !ok {
		return uuid.Nil, false, errors.Wrapf(sdservices.ErrAncestorLookup, "no parent for unit %s", unit)
	}
	if parent == institutionRoot {
		return uuid.Nil, false, nil
	}
	return parent, true, nil
}

func filterPersons(persons []sdtypes.Person, filter sdservices.EmploymentFilter) []sdtypes.Person {
	var out []sdtypes.Person
	for _, p := range persons {
		if filter.CPR != "" && p.CPR != filter.CPR {
			continue
		}
		if filter.EmploymentIdentifier == "" {
			out = append(out, p)
			continue
		}
		kept := p
		kept.Employments = nil
		for _, e := range p.Employments {
			if e.Identifier == filter.EmploymentIdentifier {
				kept.Employments = append(kept.Employments, e)
			}
		}
		if len(kept.Employments) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func newReconcilerForTest(sd *fakePayroll, store *fakeStore, cfg Config) *Reconciler {
	log := logging.ConsoleLogger(logrus.ErrorLevel)
	resolver := orgsync.NewResolver(sd, sd.institution, cfg.TooDeep, log)
	fixer := orgsync.NewTreeFixer(sd, store, sd.institution, uuid.New(), log)
	r := NewReconciler(sd, store, resolver, fixer, cfg, log)
	r.now = func() time.Time { return validity.Date(2024, time.June, 1) }
	return r
}

func defaultConfig() Config {
	return Config{
		InstitutionID:          "XY",
		MonthlyHourlyDivide:    80000,
		NoSalaryMinimum:        9000,
		JobFunction:            configuration.JobFunctionEmploymentName,
		TooDeep:                []string{"Afdelings-niveau"},
		OverwriteExistingNames: true,
		ExcludeCPRsMode:        true,
	}
}

const testCPR = "0101901234"

func employedStatus(from, to time.Time) sdtypes.EmploymentStatus {
	return sdtypes.EmploymentStatus{Activation: from, Deactivation: to, Code: sdtypes.StatusEmployedWithPay}
}

func fullEmployment(unit uuid.UUID, from, to time.Time) sdtypes.Employment {
	return sdtypes.Employment{
		Identifier:     "12345",
		EmploymentDate: from,
		Statuses:       []sdtypes.EmploymentStatus{employedStatus(from, to)},
		Departments: []sdtypes.EmploymentDepartment{
			{Activation: from, Deactivation: to, UnitUUID: unit},
		},
		Professions: []sdtypes.Profession{
			{Activation: from, Deactivation: to, JobPositionIdentifier: "1234", EmploymentName: "Lærer"},
		},
		WorkingTimes: []sdtypes.WorkingTime{
			{Activation: from, Deactivation: to, OccupationRate: decimal.RequireFromString("0.8")},
		},
	}
}

func TestUpdateEmploymentsCreatesEngagement(t *testing.T) {
	unit := uuid.New()
	from := validity.Date(2024, time.July, 1)
	emp := fullEmployment(unit, from, validity.Infinity)
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, GivenName: "Anna", Surname: "Larsen", Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.orgUnits[unit] = true
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), from, validity.NextDay(from), "")
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, "12345", created.UserKey)
	assert.Equal(t, unit, created.OrgUnitUUID)
	assert.Equal(t, int64(800_000), created.Fraction)
	assert.Equal(t, from, created.From)
	assert.True(t, validity.IsInfinite(created.To))
	// 12345 is below the monthly/hourly divide.
	monthly, _ := store.EnsureClass(context.Background(), "engagement_type", "månedsløn")
	assert.Equal(t, monthly, created.EngagementTypeUUID)
	assert.Empty(t, store.associations)
}

func TestCreateElevatesTooDeepUnitAndKeepsAssociation(t *testing.T) {
	unit, parent := uuid.New(), uuid.New()
	from := validity.Date(2024, time.July, 1)
	emp := fullEmployment(unit, from, validity.Infinity)
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels: map[uuid.UUID]string{
			unit:   "Afdelings-niveau",
			parent: "NY1-niveau",
		},
		parents: map[uuid.UUID]uuid.UUID{unit: parent},
	}
	store := newFakeStore()
	store.orgUnits[unit] = true
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), from, validity.NextDay(from), "")
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, parent, store.created[0].OrgUnitUUID)
	require.Len(t, store.associations, 1)
	assert.Equal(t, unit, store.associations[0].OrgUnitUUID)
	assert.Equal(t, "12345", store.associations[0].UserKey)
}

func TestCreateFixesUnknownUnitFirst(t *testing.T) {
	institution := uuid.New()
	unit := uuid.New()
	from := validity.Date(2024, time.July, 1)
	emp := fullEmployment(unit, from, validity.Infinity)
	sd := &fakePayroll{
		institution: institution,
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
		parents:     map[uuid.UUID]uuid.UUID{unit: institution},
	}
	store := newFakeStore()
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), from, validity.NextDay(from), "")
	require.NoError(t, err)

	require.Len(t, store.unitsCreated, 1)
	assert.Equal(t, unit, store.unitsCreated[0].UUID)
	require.Len(t, store.created, 1)
}

func TestRefusesExternalBelowNoSalaryMinimum(t *testing.T) {
	unit := uuid.New()
	from := validity.Date(2024, time.July, 1)
	emp := fullEmployment(unit, from, validity.Infinity)
	emp.Identifier = "ABC"
	emp.Professions[0].JobPositionIdentifier = "5000"
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.orgUnits[unit] = true
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), from, validity.NextDay(from), "")
	require.NoError(t, err)
	assert.Empty(t, store.created)
}

func TestLetGoStatusTerminatesEngagement(t *testing.T) {
	unit := uuid.New()
	engUUID := uuid.New()
	letGo := validity.Date(2025, time.January, 1)
	emp := sdtypes.Employment{
		Identifier: "12345",
		Statuses: []sdtypes.EmploymentStatus{
			{Activation: letGo, Deactivation: validity.Infinity, Code: sdtypes.StatusResigned},
		},
	}
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.engagements[testCPR] = []motypes.Engagement{{
		UUID:    engUUID,
		UserKey: "12345",
		Segments: []motypes.EngagementSegment{{
			EngagementUUID: engUUID,
			OrgUnitUUID:    unit,
			Validity:       validity.Interval{From: validity.Date(2024, time.January, 1), To: validity.Infinity},
		}},
	}}
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), letGo, validity.NextDay(letGo), "")
	require.NoError(t, err)

	require.Len(t, store.terminated, 1)
	assert.Equal(t, engUUID, store.terminated[0].engagement)
	assert.Equal(t, validity.Date(2024, time.December, 31), store.terminated[0].to)
	assert.Empty(t, store.updates)
}

func TestDeletedStatusTerminatesEveryMatchingEngagement(t *testing.T) {
	engA, engB := uuid.New(), uuid.New()
	deleted := validity.Date(2025, time.March, 1)
	emp := sdtypes.Employment{
		Identifier: "12345",
		Statuses: []sdtypes.EmploymentStatus{
			{Activation: deleted, Deactivation: validity.Infinity, Code: sdtypes.StatusDeleted},
		},
	}
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
	}
	store := newFakeStore()
	store.engagements[testCPR] = []motypes.Engagement{
		{UUID: engA, UserKey: "12345"},
		{UUID: engB, UserKey: "12345"},
	}
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), deleted, validity.NextDay(deleted), "")
	require.NoError(t, err)

	require.Len(t, store.terminated, 2)
	for _, call := range store.terminated {
		assert.Equal(t, validity.PrevDay(deleted), call.to)
	}
}

func TestStatusExtensionPushesEndForwardOnly(t *testing.T) {
	unit := uuid.New()
	engUUID := uuid.New()
	moEnd := validity.Date(2024, time.December, 31)
	sdEnd := validity.Date(2025, time.June, 30)
	emp := fullEmployment(unit, validity.Date(2024, time.January, 1), sdEnd)
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.orgUnits[unit] = true
	store.persons[testCPR] = uuid.New()
	store.engagements[testCPR] = []motypes.Engagement{{
		UUID:    engUUID,
		UserKey: "12345",
		Segments: []motypes.EngagementSegment{{
			EngagementUUID: engUUID,
			OrgUnitUUID:    unit,
			Validity:       validity.Interval{From: validity.Date(2024, time.January, 1), To: moEnd},
		}},
	}}
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), validity.Date(2024, time.June, 1), validity.Date(2024, time.June, 2), "")
	require.NoError(t, err)

	require.NotEmpty(t, store.updates)
	extension := store.updates[0]
	assert.Equal(t, engUUID, extension.UUID)
	assert.Equal(t, validity.NextDay(moEnd), extension.From)
	assert.Equal(t, sdEnd, extension.To)
	require.NotNil(t, extension.UserKey)
	// The payroll end matches the last employed status, so the edits must
	// not re-terminate.
	assert.Empty(t, store.terminated)
}

func TestLeaveStatusCreatesLeave(t *testing.T) {
	unit := uuid.New()
	engUUID := uuid.New()
	from := validity.Date(2024, time.August, 1)
	to := validity.Date(2024, time.October, 31)
	emp := sdtypes.Employment{
		Identifier: "12345",
		Statuses: []sdtypes.EmploymentStatus{
			{Activation: from, Deactivation: to, Code: sdtypes.StatusOnLeave},
		},
	}
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.persons[testCPR] = uuid.New()
	store.engagements[testCPR] = []motypes.Engagement{{
		UUID:    engUUID,
		UserKey: "12345",
		Segments: []motypes.EngagementSegment{{
			EngagementUUID: engUUID,
			OrgUnitUUID:    unit,
			Validity:       validity.Interval{From: validity.Date(2024, time.January, 1), To: validity.Infinity},
		}},
	}}
	r := newReconcilerForTest(sd, store, defaultConfig())

	err := r.UpdateEmployments(context.Background(), from, validity.NextDay(from), "")
	require.NoError(t, err)

	require.Len(t, store.leaves, 1)
	leave := store.leaves[0]
	assert.Equal(t, engUUID, leave.EngagementUUID)
	assert.Equal(t, from, leave.From)
	assert.Equal(t, to, leave.To)
}

// replayEngagementWrites applies the recorded creates to the stored
// engagements and clears the write log, simulating the store state after a
// completed run.
func replayEngagementWrites(store *fakeStore) {
	for _, in := range store.created {
		engUUID := uuid.New()
		cpr := store.cprByPerson[in.PersonUUID]
		store.engagements[cpr] = append(store.engagements[cpr], motypes.Engagement{
			UUID:    engUUID,
			UserKey: in.UserKey,
			Segments: []motypes.EngagementSegment{{
				EngagementUUID:     engUUID,
				UserKey:            in.UserKey,
				PersonUUID:         in.PersonUUID,
				OrgUnitUUID:        in.OrgUnitUUID,
				JobFunctionUUID:    in.JobFunctionUUID,
				EngagementTypeUUID: in.EngagementTypeUUID,
				Fraction:           in.Fraction,
				Validity:           validity.Interval{From: in.From, To: in.To},
			}},
		})
	}
	store.created = nil
	store.updates = nil
	store.terminated = nil
	store.leaves = nil
	store.associations = nil
}

func TestSecondRunOverSameDataIsConvergent(t *testing.T) {
	unit := uuid.New()
	from := validity.Date(2024, time.July, 1)
	emp := fullEmployment(unit, from, validity.Infinity)
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{{CPR: testCPR, GivenName: "Anna", Surname: "Larsen", Employments: []sdtypes.Employment{emp}}},
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	store := newFakeStore()
	store.orgUnits[unit] = true
	r := newReconcilerForTest(sd, store, defaultConfig())

	require.NoError(t, r.UpdateEmployments(context.Background(), from, validity.NextDay(from), ""))
	require.Len(t, store.created, 1)
	replayEngagementWrites(store)

	// The same window over unchanged payroll data must be a fixed point.
	require.NoError(t, r.UpdateEmployments(context.Background(), from, validity.NextDay(from), ""))
	assert.Empty(t, store.created)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.terminated)
	assert.Empty(t, store.leaves)
	assert.Empty(t, store.associations)
}

func TestFictionalAndExcludedPersonsAreSkipped(t *testing.T) {
	fictional := sdtypes.Person{CPR: "9999999999", Employments: []sdtypes.Employment{{Identifier: "11111"}}}
	excluded := sdtypes.Person{CPR: testCPR, Employments: []sdtypes.Employment{{Identifier: "22222"}}}
	sd := &fakePayroll{
		institution: uuid.New(),
		changed:     []sdtypes.Person{fictional, excluded},
	}
	store := newFakeStore()
	cfg := defaultConfig()
	cfg.CPRs = []string{testCPR}
	cfg.ExcludeCPRsMode = true
	r := newReconcilerForTest(sd, store, cfg)

	err := r.UpdateEmployments(context.Background(), validity.Date(2024, time.June, 1), validity.Date(2024, time.June, 2), "")
	require.NoError(t, err)

	assert.Empty(t, store.created)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.persons)
}
