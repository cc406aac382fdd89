package sdclient

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/magenta-aps/sdlon/modules/sd/domain/types"
)

func toDomainPersons(persons []personXML) ([]types.Person, error) {
	out := make([]types.Person, 0, len(persons))
	for _, p := range persons {
		person, err := toDomainPerson(p)
		if err != nil {
			return nil, err
		}
		out = append(out, person)
	}
	return out, nil
}

func toDomainPerson(p personXML) (types.Person, error) {
	employments := make([]types.Employment, 0, len(p.Employment))
	for _, e := range p.Employment {
		employment, err := toDomainEmployment(e)
		if err != nil {
			return types.Person{}, errors.Wrapf(err, "person %s", p.PersonCivilRegistrationIdentifier)
		}
		employments = append(employments, employment)
	}
	return types.Person{
		CPR:         p.PersonCivilRegistrationIdentifier,
		GivenName:   p.PersonGivenName,
		Surname:     p.PersonSurnameName,
		Employments: employments,
	}, nil
}

func toDomainEmployment(e employmentXML) (types.Employment, error) {
	emp := types.Employment{
		Identifier:      e.EmploymentIdentifier,
		EmploymentDate:  e.EmploymentDate.Time,
		AnniversaryDate: e.AnniversaryDate.Time,
	}
	for _, s := range e.EmploymentStatus {
		emp.Statuses = append(emp.Statuses, types.EmploymentStatus{
			Activation:   s.ActivationDate.Time,
			Deactivation: s.DeactivationDate.Time,
			Code:         types.StatusCode(s.EmploymentStatusCode),
		})
	}
	for _, d := range e.EmploymentDepartment {
		var unitUUID uuid.UUID
		if d.DepartmentUUIDIdentifier != "" {
			parsed, err := uuid.Parse(d.DepartmentUUIDIdentifier)
			if err != nil {
				return types.Employment{}, errors.Wrapf(err, "employment %s department uuid", e.EmploymentIdentifier)
			}
			unitUUID = parsed
		}
		emp.Departments = append(emp.Departments, types.EmploymentDepartment{
			Activation:   d.ActivationDate.Time,
			Deactivation: d.DeactivationDate.Time,
			Identifier:   d.DepartmentIdentifier,
			UnitUUID:     unitUUID,
		})
	}
	for _, p := range e.Profession {
		emp.Professions = append(emp.Professions, types.Profession{
			Activation:            p.ActivationDate.Time,
			Deactivation:          p.DeactivationDate.Time,
			JobPositionIdentifier: p.JobPositionIdentifier,
			EmploymentName:        p.EmploymentName,
			AppointmentCode:       p.AppointmentCode,
		})
	}
	for _, w := range e.WorkingTime {
		rate, err := decimal.NewFromString(w.OccupationRate)
		if err != nil {
			return types.Employment{}, errors.Wrapf(err, "employment %s occupation rate", e.EmploymentIdentifier)
		}
		emp.WorkingTimes = append(emp.WorkingTimes, types.WorkingTime{
			Activation:     w.ActivationDate.Time,
			Deactivation:   w.DeactivationDate.Time,
			OccupationRate: rate,
		})
	}
	return emp, nil
}

func toDomainDepartments(departments []departmentXML) ([]types.Department, error) {
	out := make([]types.Department, 0, len(departments))
	for _, d := range departments {
		unitUUID, err := uuid.Parse(d.DepartmentUUIDIdentifier)
		if err != nil {
			return nil, errors.Wrapf(err, "department %s uuid", d.DepartmentIdentifier)
		}
		out = append(out, types.Department{
			Activation:      d.ActivationDate.Time,
			Deactivation:    d.DeactivationDate.Time,
			Identifier:      d.DepartmentIdentifier,
			LevelIdentifier: d.DepartmentLevelIdentifier,
			Name:            d.DepartmentName,
			UnitUUID:        unitUUID,
		})
	}
	return out, nil
}
