package moclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

const orgUnitQuery = `
query OrgUnit($uuids: [UUID!], $fromDate: DateTime) {
  org_units(filter: { uuids: $uuids, from_date: $fromDate }) {
    objects {
      current(at: $fromDate) {
        uuid
        user_key
        name
        parent_uuid
        org_unit_level_uuid
        unit_type_uuid
        validity { from to }
      }
    }
  }
}`

type orgUnitJSON struct {
	UUID         string       `json:"uuid"`
	UserKey      string       `json:"user_key"`
	Name         string       `json:"name"`
	ParentUUID   *string      `json:"parent_uuid"`
	LevelUUID    *string      `json:"org_unit_level_uuid"`
	UnitTypeUUID *string      `json:"unit_type_uuid"`
	Validity     validityJSON `json:"validity"`
}

type orgUnitsPageJSON struct {
	OrgUnits struct {
		Objects []struct {
			Current *orgUnitJSON `json:"current"`
		} `json:"objects"`
	} `json:"org_units"`
}

// OrgUnitAt reads one unit as of the given date. Returns nil when the unit
// does not exist at that date.
func (c *Client) OrgUnitAt(ctx context.Context, unit uuid.UUID, at time.Time) (*types.OrgUnit, error) {
	var page orgUnitsPageJSON
	err := c.execute(ctx, orgUnitQuery, map[string]any{
		"uuids":    []string{unit.String()},
		"fromDate": validity.FormatSDDate(at),
	}, &page)
	if err != nil {
		return nil, err
	}
	for _, obj := range page.OrgUnits.Objects {
		if obj.Current == nil {
			continue
		}
		domain, err := toDomainOrgUnit(*obj.Current)
		if err != nil {
			return nil, err
		}
		return &domain, nil
	}
	return nil, nil
}

func toDomainOrgUnit(o orgUnitJSON) (types.OrgUnit, error) {
	unitUUID, err := uuid.Parse(o.UUID)
	if err != nil {
		return types.OrgUnit{}, errors.Wrap(err, "parsing org unit uuid")
	}
	from, err := validity.ParseMODate(o.Validity.From)
	if err != nil {
		return types.OrgUnit{}, errors.Wrap(err, "parsing org unit validity from")
	}
	to, err := validity.ParseMODate(o.Validity.To)
	if err != nil {
		return types.OrgUnit{}, errors.Wrap(err, "parsing org unit validity to")
	}

	unit := types.OrgUnit{
		UUID:     unitUUID,
		UserKey:  o.UserKey,
		Name:     o.Name,
		Validity: validity.Interval{From: from, To: to},
	}
	for _, field := range []struct {
		raw  *string
		dest *uuid.UUID
		name string
	}{
		{o.ParentUUID, &unit.ParentUUID, "parent"},
		{o.LevelUUID, &unit.LevelUUID, "level"},
		{o.UnitTypeUUID, &unit.TypeUUID, "unit type"},
	} {
		if field.raw == nil || *field.raw == "" {
			continue
		}
		parsed, err := uuid.Parse(*field.raw)
		if err != nil {
			return types.OrgUnit{}, errors.Wrapf(err, "parsing org unit %s uuid", field.name)
		}
		*field.dest = parsed
	}
	return unit, nil
}

const orgUnitCreateMutation = `
mutation CreateOrgUnit($input: OrganisationUnitCreateInput!) {
  org_unit_create(input: $input) { uuid }
}`

const orgUnitUpdateMutation = `
mutation UpdateOrgUnit($input: OrganisationUnitUpdateInput!) {
  org_unit_update(input: $input) { uuid }
}`

// OrgUnitCreateInput creates a unit with a fixed UUID so source and target
// stay aligned on the same identifier.
type OrgUnitCreateInput struct {
	UUID       uuid.UUID
	UserKey    string
	Name       string
	ParentUUID uuid.UUID // uuid.Nil attaches the unit at the root
	LevelUUID  uuid.UUID
	TypeUUID   uuid.UUID
	From       time.Time
	To         time.Time
}

func (c *Client) CreateOrgUnit(ctx context.Context, in OrgUnitCreateInput) (uuid.UUID, error) {
	input := map[string]any{
		"uuid":     in.UUID.String(),
		"user_key": in.UserKey,
		"name":     in.Name,
		"validity": moValidity(in.From, in.To),
	}
	if in.ParentUUID != uuid.Nil {
		input["parent"] = in.ParentUUID.String()
	}
	if in.LevelUUID != uuid.Nil {
		input["org_unit_level"] = in.LevelUUID.String()
	}
	if in.TypeUUID != uuid.Nil {
		input["org_unit_type"] = in.TypeUUID.String()
	}

	var resp struct {
		Created uuidPayloadJSON `json:"org_unit_create"`
	}
	if err := c.execute(ctx, orgUnitCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}

// OrgUnitUpdateInput edits a unit's attributes within a validity window.
// Nil fields are left untouched.
type OrgUnitUpdateInput struct {
	UUID       uuid.UUID
	Name       *string
	UserKey    *string
	ParentUUID *uuid.UUID
	LevelUUID  *uuid.UUID
	TypeUUID   *uuid.UUID
	From       time.Time
	To         time.Time
}

func (c *Client) UpdateOrgUnit(ctx context.Context, in OrgUnitUpdateInput) error {
	input := map[string]any{
		"uuid":     in.UUID.String(),
		"validity": moValidity(in.From, in.To),
	}
	if in.Name != nil {
		input["name"] = *in.Name
	}
	if in.UserKey != nil {
		input["user_key"] = *in.UserKey
	}
	if in.ParentUUID != nil {
		input["parent"] = in.ParentUUID.String()
	}
	if in.LevelUUID != nil {
		input["org_unit_level"] = in.LevelUUID.String()
	}
	if in.TypeUUID != nil {
		input["org_unit_type"] = in.TypeUUID.String()
	}
	return c.execute(ctx, orgUnitUpdateMutation, map[string]any{"input": input}, nil)
}
