package moclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
)

const personQuery = `
query Person($cprNumbers: [CPR!]) {
  employees(filter: { cpr_numbers: $cprNumbers, from_date: null, to_date: null }) {
    objects {
      uuid
      validities(start: null, end: null) {
        cpr_number
        given_name
        surname
      }
    }
  }
}`

const personCreateMutation = `
mutation CreatePerson($input: EmployeeCreateInput!) {
  employee_create(input: $input) { uuid }
}`

const personUpdateMutation = `
mutation UpdatePerson($input: EmployeeUpdateInput!) {
  employee_update(input: $input) { uuid }
}`

// PersonByCPR finds the person with the given CPR number, or nil when
// unknown to the record store.
func (c *Client) PersonByCPR(ctx context.Context, cpr string) (*types.Person, error) {
	var page struct {
		Employees struct {
			Objects []struct {
				UUID       string `json:"uuid"`
				Validities []struct {
					CPRNumber string `json:"cpr_number"`
					GivenName string `json:"given_name"`
					Surname   string `json:"surname"`
				} `json:"validities"`
			} `json:"objects"`
		} `json:"employees"`
	}
	err := c.execute(ctx, personQuery, map[string]any{"cprNumbers": []string{cpr}}, &page)
	if err != nil {
		return nil, err
	}
	for _, obj := range page.Employees.Objects {
		personUUID, err := uuid.Parse(obj.UUID)
		if err != nil {
			return nil, errors.Wrap(err, "parsing person uuid")
		}
		person := &types.Person{UUID: personUUID, CPR: cpr}
		if len(obj.Validities) > 0 {
			latest := obj.Validities[len(obj.Validities)-1]
			person.GivenName = latest.GivenName
			person.Surname = latest.Surname
		}
		return person, nil
	}
	return nil, nil
}

const personCPRQuery = `
query PersonCPR($uuids: [UUID!]) {
  employees(filter: { uuids: $uuids, from_date: null, to_date: null }) {
    objects {
      validities(start: null, end: null) {
        cpr_number
      }
    }
  }
}`

// CPRForPerson returns the CPR number registered for a person uuid, or the
// empty string when the person carries none.
func (c *Client) CPRForPerson(ctx context.Context, person uuid.UUID) (string, error) {
	var page struct {
		Employees struct {
			Objects []struct {
				Validities []struct {
					CPRNumber string `json:"cpr_number"`
				} `json:"validities"`
			} `json:"objects"`
		} `json:"employees"`
	}
	err := c.execute(ctx, personCPRQuery, map[string]any{"uuids": []string{person.String()}}, &page)
	if err != nil {
		return "", err
	}
	for _, obj := range page.Employees.Objects {
		for _, v := range obj.Validities {
			if v.CPRNumber != "" {
				return v.CPRNumber, nil
			}
		}
	}
	return "", nil
}

// CreatePerson registers a new person.
func (c *Client) CreatePerson(ctx context.Context, cpr, givenName, surname string) (uuid.UUID, error) {
	var resp struct {
		Created uuidPayloadJSON `json:"employee_create"`
	}
	err := c.execute(ctx, personCreateMutation, map[string]any{
		"input": map[string]any{
			"cpr_number": cpr,
			"given_name": givenName,
			"surname":    surname,
		},
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}

// UpdatePersonName renames an existing person. Payroll is authoritative for
// names, so a changed name is pushed on every run that sees it.
func (c *Client) UpdatePersonName(ctx context.Context, person uuid.UUID, givenName, surname string) error {
	return c.execute(ctx, personUpdateMutation, map[string]any{
		"input": map[string]any{
			"uuid":       person.String(),
			"given_name": givenName,
			"surname":    surname,
			"validity":   map[string]any{"from": "1930-01-01", "to": nil},
		},
	}, nil)
}
