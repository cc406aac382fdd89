package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/logging"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

type fakeSD struct {
	institution uuid.UUID
	levels      map[uuid.UUID]string
	parents     map[uuid.UUID]uuid.UUID
	names       map[uuid.UUID]string
	activations map[uuid.UUID]time.Time

	// employments keyed by the filter dimension the test exercises
	byDepartment map[string][]sdtypes.Person
	byCPR        map[string][]sdtypes.Person

	departmentCalls int
	lastEffective   time.Time
}

func (f *fakeSD) Employments(_ context.Context, effectiveDate time.Time, filter sdservices.EmploymentFilter) ([]sdtypes.Person, error) {
	f.lastEffective = effectiveDate
	if filter.CPR != "" {
		return f.byCPR[filter.CPR], nil
	}
	return f.byDepartment[filter.Department], nil
}

func (f *fakeSD) DepartmentsByUUID(_ context.Context, unit uuid.UUID, from, _ time.Time) ([]sdtypes.Department, error) {
	f.departmentCalls++
	level, ok := f.levels[unit]
	if !ok {
		return nil, errors.Wrapf(sdservices.ErrNoCurrentValidity, "unit %s", unit)
	}
	activation := validity.Date(2000, time.January, 1)
	if at, ok := f.activations[unit]; ok {
		activation = at
	}
	return []sdtypes.Department{{
		Activation:      activation,
		Deactivation:    validity.Infinity,
		Identifier:      "dep_" + unit.String()[:4],
		LevelIdentifier: level,
		Name:            f.names[unit],
		UnitUUID:        unit,
	}}, nil
}

func (f *fakeSD) Parent(_ context.Context, unit uuid.UUID, _ time.Time, institutionRoot uuid.UUID) (uuid.UUID, bool, error) {
	parent, ok := f.parents[unit]
	if !ok {
		return uuid.Nil, false, errors.Wrapf(sdservices.ErrAncestorLookup, "no parent for unit %s", unit)
	}
	if parent == institutionRoot {
		return uuid.Nil, false, nil
	}
	return parent, true, nil
}

func newResolverForTest(sd *fakeSD, tooDeep []string) *Resolver {
	r := NewResolver(sd, sd.institution, tooDeep, logging.ConsoleLogger(logrus.ErrorLevel))
	r.now = func() time.Time { return validity.Date(2024, time.June, 1) }
	return r
}

func TestResolveElevatesPastTooDeepLevel(t *testing.T) {
	unit, parent := uuid.New(), uuid.New()
	sd := &fakeSD{
		institution: uuid.New(),
		levels: map[uuid.UUID]string{
			unit:   "Afdelings-niveau",
			parent: "NY1-niveau",
		},
		parents: map[uuid.UUID]uuid.UUID{unit: parent},
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau"})

	got, err := resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, parent, got)
}

func TestResolveKeepsAllowedLevel(t *testing.T) {
	unit := uuid.New()
	sd := &fakeSD{
		institution: uuid.New(),
		levels:      map[uuid.UUID]string{unit: "NY2-niveau"},
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau", "NY1-niveau"})

	got, err := resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, unit, got)
}

func TestResolveReturnsRootEvenIfStillTooDeep(t *testing.T) {
	institution := uuid.New()
	root := uuid.New()
	sd := &fakeSD{
		institution: institution,
		levels:      map[uuid.UUID]string{root: "Afdelings-niveau"},
		parents:     map[uuid.UUID]uuid.UUID{root: institution},
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau"})

	got, err := resolver.Resolve(context.Background(), root, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestResolveKeepsUnitWhenAncestorLookupFindsNoParent(t *testing.T) {
	unit := uuid.New()
	sd := &fakeSD{
		institution: uuid.New(),
		levels:      map[uuid.UUID]string{unit: "Afdelings-niveau"},
		// no parents entry: the lookup reports no parent at all
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau"})

	got, err := resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, unit, got)
}

func TestResolveCachesPerUnitAndDate(t *testing.T) {
	unit := uuid.New()
	sd := &fakeSD{
		institution: uuid.New(),
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau"})

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sd.departmentCalls)

	resolver.ClearCache()
	_, err := resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, sd.departmentCalls)
}

func TestResolveFloorsPastDatesAtToday(t *testing.T) {
	unit := uuid.New()
	sd := &fakeSD{
		institution: uuid.New(),
		levels:      map[uuid.UUID]string{unit: "NY1-niveau"},
	}
	resolver := newResolverForTest(sd, []string{"Afdelings-niveau"})

	// A lookup far in the past and one at today must share a cache entry,
	// since both are answered as of today.
	_, err := resolver.Resolve(context.Background(), unit, validity.Date(2019, time.March, 1))
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), unit, validity.Date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, sd.departmentCalls)
}
