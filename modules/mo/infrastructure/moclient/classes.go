package moclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
)

const classesQuery = `
query Classes($facetUserKeys: [String!]) {
  classes(filter: { facet: { user_keys: $facetUserKeys } }) {
    objects {
      current {
        uuid
        user_key
        name
      }
    }
  }
}`

const facetQuery = `
query Facets($userKeys: [String!]) {
  facets(filter: { user_keys: $userKeys }) {
    objects {
      current { uuid }
    }
  }
}`

const classCreateMutation = `
mutation CreateClass($input: ClassCreateInput!) {
  class_create(input: $input) { uuid }
}`

type classJSON struct {
	UUID    string `json:"uuid"`
	UserKey string `json:"user_key"`
	Name    string `json:"name"`
}

// ClassesByFacet lists the classes under a facet, e.g. "engagement_type" or
// "org_unit_level".
func (c *Client) ClassesByFacet(ctx context.Context, facetUserKey string) ([]types.Class, error) {
	var page struct {
		Classes struct {
			Objects []struct {
				Current *classJSON `json:"current"`
			} `json:"objects"`
		} `json:"classes"`
	}
	err := c.execute(ctx, classesQuery, map[string]any{
		"facetUserKeys": []string{facetUserKey},
	}, &page)
	if err != nil {
		return nil, err
	}

	classes := make([]types.Class, 0, len(page.Classes.Objects))
	for _, obj := range page.Classes.Objects {
		if obj.Current == nil {
			continue
		}
		classUUID, err := uuid.Parse(obj.Current.UUID)
		if err != nil {
			return nil, errors.Wrap(err, "parsing class uuid")
		}
		classes = append(classes, types.Class{
			UUID:    classUUID,
			UserKey: obj.Current.UserKey,
			Name:    obj.Current.Name,
		})
	}
	return classes, nil
}

// FacetUUID resolves a facet user key to its uuid.
func (c *Client) FacetUUID(ctx context.Context, userKey string) (uuid.UUID, error) {
	var page struct {
		Facets struct {
			Objects []struct {
				Current *uuidPayloadJSON `json:"current"`
			} `json:"objects"`
		} `json:"facets"`
	}
	err := c.execute(ctx, facetQuery, map[string]any{"userKeys": []string{userKey}}, &page)
	if err != nil {
		return uuid.Nil, err
	}
	for _, obj := range page.Facets.Objects {
		if obj.Current != nil {
			return uuid.Parse(obj.Current.UUID)
		}
	}
	return uuid.Nil, errors.Errorf("facet %q not found", userKey)
}

// CreateClass adds a class under the given facet. Name and user key are set
// to the same value, matching how payroll-derived classes are keyed.
func (c *Client) CreateClass(ctx context.Context, facetUUID uuid.UUID, name string) (uuid.UUID, error) {
	var resp struct {
		Created uuidPayloadJSON `json:"class_create"`
	}
	err := c.execute(ctx, classCreateMutation, map[string]any{
		"input": map[string]any{
			"facet_uuid": facetUUID.String(),
			"name":       name,
			"user_key":   name,
			"validity":   map[string]any{"from": "1930-01-01", "to": nil},
		},
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}
