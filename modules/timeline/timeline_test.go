package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func status(from, to time.Time, code types.StatusCode) types.EmploymentStatus {
	return types.EmploymentStatus{Activation: from, Deactivation: to, Code: code}
}

var key = types.EmploymentKey{CPR: "0101011234", EmploymentID: "12345"}

func TestMergeContiguousStatuses(t *testing.T) {
	current := &types.Employment{
		Identifier: "12345",
		Statuses:   []types.EmploymentStatus{status(date(2000, 1, 1), date(2000, 12, 31), types.StatusEmployedWithPay)},
	}
	future := &types.Employment{
		Identifier: "12345",
		Statuses: []types.EmploymentStatus{
			status(date(2001, 1, 1), date(2001, 12, 31), types.StatusOnLeave),
			status(date(2002, 1, 1), validity.Infinity, types.StatusEmployedWithPay),
		},
	}

	merged, err := Merge(key, current, future, Options{})
	require.NoError(t, err)
	require.Len(t, merged.Statuses, 3)
	assert.Equal(t, types.StatusOnLeave, merged.Statuses[1].Code)
	assert.True(t, validity.IsInfinite(merged.Statuses[2].Deactivation))
}

func TestMergeGapFails(t *testing.T) {
	current := &types.Employment{
		Identifier: "12345",
		Statuses:   []types.EmploymentStatus{status(date(2000, 1, 1), date(2000, 12, 31), types.StatusEmployedWithPay)},
	}
	future := &types.Employment{
		Identifier: "12345",
		Statuses:   []types.EmploymentStatus{status(date(2001, 1, 2), validity.Infinity, types.StatusEmployedWithPay)},
	}

	_, err := Merge(key, current, future, Options{})
	var gap *GapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "status", gap.Kind)
	assert.Equal(t, "2000-12-31", gap.PrevDeactivation)
	assert.Equal(t, "2001-01-02", gap.NextActivation)
	assert.NotContains(t, err.Error(), "0101011234")
}

func TestMergeNothingToMerge(t *testing.T) {
	_, err := Merge(key, nil, nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidTimeline)
}

func TestMergeEmployedOnlyDropsLetGoFutures(t *testing.T) {
	current := &types.Employment{
		Identifier: "12345",
		Statuses:   []types.EmploymentStatus{status(date(2024, 1, 1), date(2024, 6, 30), types.StatusEmployedWithPay)},
	}
	future := &types.Employment{
		Identifier: "12345",
		Statuses: []types.EmploymentStatus{
			status(date(2024, 7, 1), date(2024, 7, 31), types.StatusEmployedWithPay),
			status(date(2024, 8, 1), validity.Infinity, types.StatusResigned),
		},
	}

	merged, err := Merge(key, current, future, Options{EmployedOnly: true})
	require.NoError(t, err)
	require.Len(t, merged.Statuses, 2)
	assert.Equal(t, date(2024, 7, 31), merged.Statuses[1].Deactivation)
}

func TestMergeDepartmentGapFails(t *testing.T) {
	current := &types.Employment{
		Identifier: "12345",
		Statuses:   []types.EmploymentStatus{status(date(2024, 1, 1), validity.Infinity, types.StatusEmployedWithPay)},
		Departments: []types.EmploymentDepartment{
			{Activation: date(2024, 1, 1), Deactivation: date(2024, 3, 31), Identifier: "ABCD"},
		},
	}
	future := &types.Employment{
		Identifier: "12345",
		Departments: []types.EmploymentDepartment{
			{Activation: date(2024, 4, 2), Deactivation: validity.Infinity, Identifier: "EFGH"},
		},
	}

	_, err := Merge(key, current, future, Options{})
	var gap *GapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "department", gap.Kind)
}

func TestLastEmployedDay(t *testing.T) {
	merged := Timeline{
		Key: key,
		Statuses: []types.EmploymentStatus{
			status(date(2024, 1, 1), date(2024, 6, 30), types.StatusEmployedWithPay),
			status(date(2024, 7, 1), validity.Infinity, types.StatusResigned),
		},
	}
	last, ok := merged.LastEmployedDay()
	require.True(t, ok)
	assert.Equal(t, date(2024, 6, 30), last)

	none := Timeline{Key: key, Statuses: []types.EmploymentStatus{
		status(date(2024, 7, 1), validity.Infinity, types.StatusResigned),
	}}
	_, ok = none.LastEmployedDay()
	assert.False(t, ok)
}

func TestIndexEmployments(t *testing.T) {
	persons := []types.Person{
		{CPR: "0101011234", Employments: []types.Employment{{Identifier: "12345"}, {Identifier: "54321"}}},
		{CPR: "0202021234", Employments: []types.Employment{{Identifier: "12345"}}},
	}
	index := IndexEmployments(persons)
	require.Len(t, index, 3)
	assert.NotNil(t, index[types.EmploymentKey{CPR: "0202021234", EmploymentID: "12345"}])
}
