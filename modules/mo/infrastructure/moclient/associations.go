package moclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

const associationsQuery = `
query Associations($filter: AssociationFilter, $cursor: Cursor, $limit: int) {
  associations(filter: $filter, cursor: $cursor, limit: $limit) {
    objects {
      uuid
      validities(start: null, end: null) {
        user_key
        org_unit_uuid
        validity { from to }
      }
    }
    page_info { next_cursor }
  }
}`

type associationValidityJSON struct {
	UserKey     string       `json:"user_key"`
	OrgUnitUUID string       `json:"org_unit_uuid"`
	Validity    validityJSON `json:"validity"`
}

type associationsPageJSON struct {
	Associations struct {
		Objects []struct {
			UUID       string                    `json:"uuid"`
			Validities []associationValidityJSON `json:"validities"`
		} `json:"objects"`
		PageInfo struct {
			NextCursor *string `json:"next_cursor"`
		} `json:"page_info"`
	} `json:"associations"`
}

// AssociationsForPerson returns every association of a person, one entry per
// stored validity segment.
func (c *Client) AssociationsForPerson(ctx context.Context, person uuid.UUID) ([]types.Association, error) {
	var all []types.Association
	var cursor *string
	for {
		var page associationsPageJSON
		err := c.execute(ctx, associationsQuery, map[string]any{
			"filter": map[string]any{
				"employee":  map[string]any{"uuids": []string{person.String()}},
				"from_date": nil,
				"to_date":   nil,
			},
			"cursor": cursor,
			"limit":  c.pageSize,
		}, &page)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Associations.Objects {
			associationUUID, err := uuid.Parse(obj.UUID)
			if err != nil {
				return nil, errors.Wrap(err, "parsing association uuid")
			}
			for _, v := range obj.Validities {
				unitUUID, err := uuid.Parse(v.OrgUnitUUID)
				if err != nil {
					return nil, errors.Wrap(err, "parsing association org unit uuid")
				}
				from, err := validity.ParseMODate(v.Validity.From)
				if err != nil {
					return nil, errors.Wrap(err, "parsing association validity from")
				}
				to, err := validity.ParseMODate(v.Validity.To)
				if err != nil {
					return nil, errors.Wrap(err, "parsing association validity to")
				}
				all = append(all, types.Association{
					UUID:        associationUUID,
					UserKey:     v.UserKey,
					OrgUnitUUID: unitUUID,
					Validity:    validity.Interval{From: from, To: to},
				})
			}
		}
		cursor = page.Associations.PageInfo.NextCursor
		if cursor == nil {
			break
		}
	}
	return all, nil
}

const associationCreateMutation = `
mutation CreateAssociation($input: AssociationCreateInput!) {
  association_create(input: $input) { uuid }
}`

// AssociationCreateInput attaches a person to a unit without an engagement.
type AssociationCreateInput struct {
	PersonUUID          uuid.UUID
	OrgUnitUUID         uuid.UUID
	AssociationTypeUUID uuid.UUID
	UserKey             string
	From                time.Time
	To                  time.Time
}

func (c *Client) CreateAssociation(ctx context.Context, in AssociationCreateInput) (uuid.UUID, error) {
	var resp struct {
		Created uuidPayloadJSON `json:"association_create"`
	}
	err := c.execute(ctx, associationCreateMutation, map[string]any{
		"input": map[string]any{
			"person":           in.PersonUUID.String(),
			"org_unit":         in.OrgUnitUUID.String(),
			"association_type": in.AssociationTypeUUID.String(),
			"user_key":         in.UserKey,
			"validity":         moValidity(in.From, in.To),
		},
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}
