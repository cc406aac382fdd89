package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdtypes "github.com/magenta-aps/sdlon/modules/sd/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

func date(y int, m time.Month, d int) time.Time {
	return validity.Date(y, m, d)
}

func TestDetermineEngagementType(t *testing.T) {
	tests := []struct {
		name         string
		employmentID string
		jobPosition  string
		wantType     string
		wantOK       bool
	}{
		{"monthly below divide", "12345", "1", EngagementTypeMonthly, true},
		{"hourly above divide", "87654", "1", EngagementTypeHourly, true},
		{"external typed by job position", "ABC", "9500", "9500", true},
		{"external below minimum refused", "ABC", "8000", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			name, ok := DetermineEngagementType(tc.employmentID, tc.jobPosition, 80000, 9000)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantType, name)
		})
	}
}

func TestDetermineEngagementTypeWithoutMinimum(t *testing.T) {
	name, ok := DetermineEngagementType("ABC", "8000", 80000, 0)
	require.True(t, ok)
	assert.Equal(t, "8000", name)
}

func TestNoSalaryMinimumConsistency(t *testing.T) {
	profession := func(jobPos string) sdtypes.Profession {
		return sdtypes.Profession{JobPositionIdentifier: jobPos}
	}

	external := sdtypes.Employment{Identifier: "AB1", Professions: []sdtypes.Profession{profession("9500")}}
	assert.True(t, IsNoSalaryMinimumConsistent(external, 9000))

	externalLow := sdtypes.Employment{Identifier: "AB1", Professions: []sdtypes.Profession{profession("100")}}
	assert.False(t, IsNoSalaryMinimumConsistent(externalLow, 9000))

	internal := sdtypes.Employment{Identifier: "12345", Professions: []sdtypes.Profession{profession("100")}}
	assert.True(t, IsNoSalaryMinimumConsistent(internal, 9000))

	internalHigh := sdtypes.Employment{Identifier: "12345", Professions: []sdtypes.Profession{profession("9500")}}
	assert.False(t, IsNoSalaryMinimumConsistent(internalHigh, 9000))

	assert.True(t, IsNoSalaryMinimumConsistent(internalHigh, 0), "disabled minimum accepts everything")
	assert.True(t, IsNoSalaryMinimumConsistent(sdtypes.Employment{Identifier: "AB1"}, 9000), "no professions")
}

func TestReterminationPointClosesReopenedEngagement(t *testing.T) {
	statuses := []sdtypes.EmploymentStatus{
		{Activation: date(2022, 1, 1), Deactivation: date(2022, 6, 30), Code: sdtypes.StatusEmployedWithPay},
		{Activation: date(2022, 7, 1), Deactivation: validity.Infinity, Code: sdtypes.StatusResigned},
	}

	// The edit reaches past the recorded end while payroll says the
	// employment ended; close again at the later of the two.
	point, ok := ReterminationPoint(statuses, date(2022, 5, 31), date(2022, 12, 31))
	require.True(t, ok)
	assert.Equal(t, date(2022, 6, 30), point)
}

func TestReterminationPointEditWithinRecordedEnd(t *testing.T) {
	_, ok := ReterminationPoint(nil, date(2022, 12, 31), date(2022, 6, 30))
	assert.False(t, ok)
}

func TestReterminationPointWithoutStatusesReusesRecordedEnd(t *testing.T) {
	point, ok := ReterminationPoint(nil, date(2022, 5, 31), date(2022, 12, 31))
	require.True(t, ok)
	assert.Equal(t, date(2022, 5, 31), point)
}

func TestReterminationPointOpenEndedNeverTerminates(t *testing.T) {
	statuses := []sdtypes.EmploymentStatus{
		{Activation: date(2022, 1, 1), Deactivation: validity.Infinity, Code: sdtypes.StatusEmployedWithPay},
	}
	_, ok := ReterminationPoint(statuses, validity.Infinity, validity.Infinity)
	assert.False(t, ok)
}

func TestReterminationPointSourceStillActive(t *testing.T) {
	statuses := []sdtypes.EmploymentStatus{
		{Activation: date(2022, 1, 1), Deactivation: date(2023, 12, 31), Code: sdtypes.StatusEmployedWithPay},
	}
	// Payroll extends at least as far as the edit; nothing to close.
	_, ok := ReterminationPoint(statuses, date(2022, 5, 31), date(2022, 12, 31))
	assert.False(t, ok)
}
