package sdclient

import (
	"time"

	"github.com/google/uuid"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

// GetEmploymentRequest queries current employments as of a single date.
// Department filters restrict the result to employments placed in a given
// department; SD requires the level alongside the shortname.
type GetEmploymentRequest struct {
	InstitutionIdentifier     string
	EffectiveDate             time.Time
	CPR                       string
	EmploymentIdentifier      string
	DepartmentIdentifier      string
	DepartmentLevelIdentifier string
	StatusActiveIndicator     bool
	StatusPassiveIndicator    bool
}

func (r GetEmploymentRequest) params() map[string]string {
	p := map[string]string{
		"InstitutionIdentifier":     r.InstitutionIdentifier,
		"EffectiveDate":             validity.FormatSDParamDate(r.EffectiveDate),
		"StatusActiveIndicator":     boolParam(r.StatusActiveIndicator),
		"StatusPassiveIndicator":    boolParam(r.StatusPassiveIndicator),
		"DepartmentIndicator":       "true",
		"EmploymentStatusIndicator": "true",
		"ProfessionIndicator":       "true",
		"WorkingTimeIndicator":      "true",
		"UUIDIndicator":             "true",
		"SalaryAgreementIndicator":  "false",
		"SalaryCodeGroupIndicator":  "false",
	}
	if r.CPR != "" {
		p["PersonCivilRegistrationIdentifier"] = r.CPR
	}
	if r.EmploymentIdentifier != "" {
		p["EmploymentIdentifier"] = r.EmploymentIdentifier
	}
	if r.DepartmentIdentifier != "" {
		p["DepartmentIdentifier"] = r.DepartmentIdentifier
	}
	if r.DepartmentLevelIdentifier != "" {
		p["DepartmentLevelIdentifier"] = r.DepartmentLevelIdentifier
	}
	return p
}

// GetEmploymentChangedRequest queries employment segments changed between two
// points in time. A zero DeactivationDate means the open-ended variant of the
// service is used.
type GetEmploymentChangedRequest struct {
	InstitutionIdentifier string
	ActivationDate        time.Time
	DeactivationDate      time.Time
	CPR                   string
	EmploymentIdentifier  string
}

func (r GetEmploymentChangedRequest) open() bool {
	return r.DeactivationDate.IsZero()
}

func (r GetEmploymentChangedRequest) params() map[string]string {
	p := map[string]string{
		"InstitutionIdentifier":     r.InstitutionIdentifier,
		"ActivationDate":            validity.FormatSDParamDate(r.ActivationDate),
		"ActivationTime":            r.ActivationDate.Format("15:04"),
		"DepartmentIndicator":       "true",
		"EmploymentStatusIndicator": "true",
		"ProfessionIndicator":       "true",
		"WorkingTimeIndicator":      "true",
		"UUIDIndicator":             "true",
		"StatusActiveIndicator":     "true",
		"StatusPassiveIndicator":    "true",
		"SalaryAgreementIndicator":  "false",
		"SalaryCodeGroupIndicator":  "false",
	}
	if r.open() {
		p["DeactivationDate"] = "31.12.9999"
	} else {
		p["DeactivationDate"] = validity.FormatSDParamDate(r.DeactivationDate)
		p["DeactivationTime"] = r.DeactivationDate.Format("15:04")
		p["FutureInformationIndicator"] = "true"
	}
	if r.CPR != "" {
		p["PersonCivilRegistrationIdentifier"] = r.CPR
	}
	if r.EmploymentIdentifier != "" {
		p["EmploymentIdentifier"] = r.EmploymentIdentifier
	}
	return p
}

// GetDepartmentRequest queries department registrations over a date range.
type GetDepartmentRequest struct {
	InstitutionIdentifier    string
	ActivationDate           time.Time
	DeactivationDate         time.Time
	DepartmentUUIDIdentifier uuid.UUID
	DepartmentIdentifier     string
}

func (r GetDepartmentRequest) params() map[string]string {
	p := map[string]string{
		"InstitutionIdentifier":         r.InstitutionIdentifier,
		"ActivationDate":                validity.FormatSDParamDate(r.ActivationDate),
		"DeactivationDate":              validity.FormatSDParamDate(r.DeactivationDate),
		"ContactInformationIndicator":   "true",
		"DepartmentNameIndicator":       "true",
		"PostalAddressIndicator":        "false",
		"ProductionUnitIndicator":       "false",
		"UUIDIndicator":                 "true",
		"EmploymentDepartmentIndicator": "false",
	}
	if r.DepartmentUUIDIdentifier != uuid.Nil {
		p["DepartmentUUIDIdentifier"] = r.DepartmentUUIDIdentifier.String()
	}
	if r.DepartmentIdentifier != "" {
		p["DepartmentIdentifier"] = r.DepartmentIdentifier
	}
	return p
}

// GetDepartmentParentRequest queries a department's parent at a single
// effective date. Ancestry-with-validity cannot be queried retroactively;
// callers are expected to floor the date at today.
type GetDepartmentParentRequest struct {
	EffectiveDate            time.Time
	DepartmentUUIDIdentifier uuid.UUID
}

func (r GetDepartmentParentRequest) params() map[string]string {
	return map[string]string{
		"EffectiveDate":            validity.FormatSDParamDate(r.EffectiveDate),
		"DepartmentUUIDIdentifier": r.DepartmentUUIDIdentifier.String(),
	}
}

// GetInstitutionRequest resolves the institution record for an institution
// identifier.
type GetInstitutionRequest struct {
	InstitutionIdentifier string
}

func (r GetInstitutionRequest) params() map[string]string {
	return map[string]string{
		"InstitutionIdentifier": r.InstitutionIdentifier,
		"UUIDIndicator":         "true",
	}
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
