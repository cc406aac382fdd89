package moclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/magenta-aps/sdlon/modules/mo/domain/types"
	"github.com/magenta-aps/sdlon/pkg/validity"
)

const engagementsQuery = `
query Engagements($filter: EngagementFilter, $cursor: Cursor, $limit: int) {
  engagements(filter: $filter, cursor: $cursor, limit: $limit) {
    objects {
      uuid
      validities(start: null, end: null) {
        user_key
        employee_uuid
        org_unit_uuid
        job_function_uuid
        engagement_type_uuid
        fraction
        validity { from to }
      }
    }
    page_info { next_cursor }
  }
}`

type validityJSON struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

type engagementValidityJSON struct {
	UserKey            string       `json:"user_key"`
	EmployeeUUID       string       `json:"employee_uuid"`
	OrgUnitUUID        string       `json:"org_unit_uuid"`
	JobFunctionUUID    string       `json:"job_function_uuid"`
	EngagementTypeUUID string       `json:"engagement_type_uuid"`
	Fraction           int64        `json:"fraction"`
	Validity           validityJSON `json:"validity"`
}

type engagementJSON struct {
	UUID       string                   `json:"uuid"`
	Validities []engagementValidityJSON `json:"validities"`
}

type engagementsPageJSON struct {
	Engagements struct {
		Objects  []engagementJSON `json:"objects"`
		PageInfo struct {
			NextCursor *string `json:"next_cursor"`
		} `json:"page_info"`
	} `json:"engagements"`
}

// EngagementsByUserKey returns every engagement whose user key matches,
// including historic and future validities.
func (c *Client) EngagementsByUserKey(ctx context.Context, userKey string) ([]types.Engagement, error) {
	return c.fetchEngagements(ctx, map[string]any{
		"user_keys": []string{userKey},
		"from_date": nil,
		"to_date":   nil,
	})
}

// EngagementsForCPR returns every engagement of the person with the given
// CPR number.
func (c *Client) EngagementsForCPR(ctx context.Context, cpr string) ([]types.Engagement, error) {
	return c.fetchEngagements(ctx, map[string]any{
		"employee":  map[string]any{"cpr_numbers": []string{cpr}},
		"from_date": nil,
		"to_date":   nil,
	})
}

// AllEngagements pages through every engagement in MO, including historic
// and future validities. Used by the repair paths that diff the full store.
func (c *Client) AllEngagements(ctx context.Context) ([]types.Engagement, error) {
	return c.fetchEngagements(ctx, map[string]any{
		"from_date": nil,
		"to_date":   nil,
	})
}

func (c *Client) fetchEngagements(ctx context.Context, filter map[string]any) ([]types.Engagement, error) {
	var all []types.Engagement
	var cursor *string
	for {
		var page engagementsPageJSON
		err := c.execute(ctx, engagementsQuery, map[string]any{
			"filter": filter,
			"cursor": cursor,
			"limit":  c.pageSize,
		}, &page)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Engagements.Objects {
			engagement, err := toDomainEngagement(obj)
			if err != nil {
				return nil, err
			}
			all = append(all, engagement)
		}
		cursor = page.Engagements.PageInfo.NextCursor
		if cursor == nil {
			break
		}
	}
	return all, nil
}

func toDomainEngagement(obj engagementJSON) (types.Engagement, error) {
	engagementUUID, err := uuid.Parse(obj.UUID)
	if err != nil {
		return types.Engagement{}, errors.Wrap(err, "parsing engagement uuid")
	}
	engagement := types.Engagement{UUID: engagementUUID}
	for _, v := range obj.Validities {
		segment, err := toDomainSegment(engagementUUID, v)
		if err != nil {
			return types.Engagement{}, err
		}
		engagement.Segments = append(engagement.Segments, segment)
		engagement.UserKey = v.UserKey
	}
	return engagement, nil
}

func toDomainSegment(engagementUUID uuid.UUID, v engagementValidityJSON) (types.EngagementSegment, error) {
	from, err := validity.ParseMODate(v.Validity.From)
	if err != nil {
		return types.EngagementSegment{}, errors.Wrap(err, "parsing validity from")
	}
	to, err := validity.ParseMODate(v.Validity.To)
	if err != nil {
		return types.EngagementSegment{}, errors.Wrap(err, "parsing validity to")
	}

	segment := types.EngagementSegment{
		EngagementUUID: engagementUUID,
		UserKey:        v.UserKey,
		Fraction:       v.Fraction,
		Validity:       validity.Interval{From: from, To: to},
	}
	for _, field := range []struct {
		raw  string
		dest *uuid.UUID
		name string
	}{
		{v.EmployeeUUID, &segment.PersonUUID, "employee"},
		{v.OrgUnitUUID, &segment.OrgUnitUUID, "org unit"},
		{v.JobFunctionUUID, &segment.JobFunctionUUID, "job function"},
		{v.EngagementTypeUUID, &segment.EngagementTypeUUID, "engagement type"},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := uuid.Parse(field.raw)
		if err != nil {
			return types.EngagementSegment{}, errors.Wrapf(err, "parsing %s uuid", field.name)
		}
		*field.dest = parsed
	}
	return segment, nil
}

const engagementCreateMutation = `
mutation CreateEngagement($input: EngagementCreateInput!) {
  engagement_create(input: $input) { uuid }
}`

const engagementUpdateMutation = `
mutation UpdateEngagement($input: EngagementUpdateInput!) {
  engagement_update(input: $input) { uuid }
}`

const engagementTerminateMutation = `
mutation TerminateEngagement($input: EngagementTerminateInput!) {
  engagement_terminate(input: $input) { uuid }
}`

type uuidPayloadJSON struct {
	UUID string `json:"uuid"`
}

// EngagementCreateInput carries all attributes of a new engagement.
type EngagementCreateInput struct {
	PersonUUID         uuid.UUID
	OrgUnitUUID        uuid.UUID
	JobFunctionUUID    uuid.UUID
	EngagementTypeUUID uuid.UUID
	UserKey            string
	Fraction           int64
	From               time.Time
	To                 time.Time
}

func (c *Client) CreateEngagement(ctx context.Context, in EngagementCreateInput) (uuid.UUID, error) {
	var resp struct {
		Created uuidPayloadJSON `json:"engagement_create"`
	}
	err := c.execute(ctx, engagementCreateMutation, map[string]any{
		"input": map[string]any{
			"person":          in.PersonUUID.String(),
			"org_unit":        in.OrgUnitUUID.String(),
			"job_function":    in.JobFunctionUUID.String(),
			"engagement_type": in.EngagementTypeUUID.String(),
			"user_key":        in.UserKey,
			"fraction":        in.Fraction,
			"validity":        moValidity(in.From, in.To),
		},
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}

// EngagementUpdateInput edits an existing engagement within a validity
// window. Nil fields are left untouched.
type EngagementUpdateInput struct {
	UUID               uuid.UUID
	From               time.Time
	To                 time.Time
	OrgUnitUUID        *uuid.UUID
	JobFunctionUUID    *uuid.UUID
	EngagementTypeUUID *uuid.UUID
	Fraction           *int64
	UserKey            *string
}

func (c *Client) UpdateEngagement(ctx context.Context, in EngagementUpdateInput) error {
	input := map[string]any{
		"uuid":     in.UUID.String(),
		"validity": moValidity(in.From, in.To),
	}
	if in.OrgUnitUUID != nil {
		input["org_unit"] = in.OrgUnitUUID.String()
	}
	if in.JobFunctionUUID != nil {
		input["job_function"] = in.JobFunctionUUID.String()
	}
	if in.EngagementTypeUUID != nil {
		input["engagement_type"] = in.EngagementTypeUUID.String()
	}
	if in.Fraction != nil {
		input["fraction"] = *in.Fraction
	}
	if in.UserKey != nil {
		input["user_key"] = *in.UserKey
	}
	return c.execute(ctx, engagementUpdateMutation, map[string]any{"input": input}, nil)
}

// TerminateEngagement closes an engagement so that `to` is its last valid
// day.
func (c *Client) TerminateEngagement(ctx context.Context, engagement uuid.UUID, to time.Time) error {
	return c.execute(ctx, engagementTerminateMutation, map[string]any{
		"input": map[string]any{
			"uuid": engagement.String(),
			"to":   validity.FormatSDDate(to),
		},
	}, nil)
}

func moValidity(from, to time.Time) map[string]any {
	return map[string]any{
		"from": validity.FormatSDDate(from),
		"to":   validity.MODate(to),
	}
}
