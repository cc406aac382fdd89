package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

func date(y int, m time.Month, d int) time.Time {
	return validity.Date(y, m, d)
}

func TestStatusCategories(t *testing.T) {
	tests := []struct {
		code      StatusCode
		employed  bool
		letGo     bool
		onPayroll bool
	}{
		{StatusNotYetEmployed, true, false, false},
		{StatusEmployedWithPay, true, false, true},
		{StatusOnLeave, true, false, true},
		{StatusMigrated, false, true, false},
		{StatusResigned, false, true, false},
		{StatusDeceased, false, true, false},
		{StatusDeleted, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.employed, tt.code.IsEmployed())
			assert.Equal(t, tt.letGo, tt.code.IsLetGo())
			assert.Equal(t, tt.onPayroll, tt.code.IsOnPayroll())
			assert.True(t, tt.code.Known())
		})
	}
	assert.True(t, StatusDeleted.IsDeleted())
	assert.False(t, StatusCode("X").Known())
}

func TestEngagementUserKey(t *testing.T) {
	assert.Equal(t, "00123", EngagementUserKey("123", "xy", false))
	assert.Equal(t, "12345", EngagementUserKey("12345", "xy", false))
	assert.Equal(t, "XY-00123", EngagementUserKey("123", "xy", true))
	// Non-numeric identifiers keep their shape.
	assert.Equal(t, "AB123", EngagementUserKey("AB123", "xy", false))
}

func TestEmploymentNumber(t *testing.T) {
	assert.Equal(t, 123, EmploymentNumber("00123"))
	assert.Equal(t, 999999, EmploymentNumber("AB123"))
}

func TestIsExternal(t *testing.T) {
	assert.False(t, IsExternal("12345"))
	assert.True(t, IsExternal("AB123"))
	assert.True(t, IsExternal(""))
}

func TestAnonymizeCPR(t *testing.T) {
	assert.Equal(t, "010190-xxxx", AnonymizeCPR("0101901234"))
	assert.Equal(t, "xxxxxx-xxxx", AnonymizeCPR("123"))
}

func TestFilterProfessions(t *testing.T) {
	emp := Employment{Professions: []Profession{
		{JobPositionIdentifier: "1234"},
		{JobPositionIdentifier: "8888"},
	}}
	filtered := emp.FilterProfessions([]string{"8888"})
	require.Len(t, filtered.Professions, 1)
	assert.Equal(t, "1234", filtered.Professions[0].JobPositionIdentifier)
	// Original is untouched.
	assert.Len(t, emp.Professions, 2)
}

func TestLastDayOfWork(t *testing.T) {
	t.Run("last employed segment wins", func(t *testing.T) {
		last, ok := LastDayOfWork([]EmploymentStatus{
			{Code: StatusEmployedWithPay, Deactivation: date(2024, 6, 30)},
			{Code: StatusOnLeave, Deactivation: date(2024, 12, 31)},
			{Code: StatusResigned, Activation: date(2025, 1, 1)},
		})
		require.True(t, ok)
		assert.Equal(t, date(2024, 12, 31), last)
	})

	t.Run("sole inactive segment", func(t *testing.T) {
		last, ok := LastDayOfWork([]EmploymentStatus{
			{Code: StatusResigned, Activation: date(2025, 1, 1)},
		})
		require.True(t, ok)
		assert.Equal(t, date(2024, 12, 31), last)
	})

	t.Run("empty status list", func(t *testing.T) {
		_, ok := LastDayOfWork(nil)
		assert.False(t, ok)
	})
}

func TestFromToDates(t *testing.T) {
	t.Run("from is the latest component activation", func(t *testing.T) {
		emp := Employment{
			EmploymentDate: date(2020, 1, 1),
			Statuses: []EmploymentStatus{
				{Code: StatusEmployedWithPay, Activation: date(2024, 1, 1), Deactivation: validity.Infinity},
			},
			Departments: []EmploymentDepartment{
				{Activation: date(2024, 3, 1)},
			},
		}
		from, to := emp.FromToDates()
		assert.Equal(t, date(2024, 3, 1), from)
		assert.True(t, validity.IsInfinite(to))
	})

	t.Run("let-go employment spans until the day before letting go", func(t *testing.T) {
		emp := Employment{
			EmploymentDate: date(2020, 1, 1),
			Statuses: []EmploymentStatus{
				{Code: StatusResigned, Activation: date(2024, 7, 1), Deactivation: validity.Infinity},
			},
		}
		from, to := emp.FromToDates()
		assert.Equal(t, date(2020, 1, 1), from)
		assert.Equal(t, date(2024, 6, 30), to)
	})
}

func TestBestEffortLookupDate(t *testing.T) {
	today := date(2024, 6, 1)
	emp := Employment{
		Statuses: []EmploymentStatus{
			{Activation: date(2024, 3, 1)},
		},
		Professions: []Profession{
			{Activation: date(2024, 2, 1)},
		},
	}
	// Past activations are floored at today.
	assert.Equal(t, today, emp.BestEffortLookupDate(today))

	future := Employment{
		Statuses: []EmploymentStatus{{Activation: date(2024, 9, 1)}},
	}
	assert.Equal(t, date(2024, 9, 1), future.BestEffortLookupDate(today))
}
