package moclient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const leaveCreateMutation = `
mutation CreateLeave($input: LeaveCreateInput!) {
  leave_create(input: $input) { uuid }
}`

// LeaveCreateInput attaches a leave to an engagement.
type LeaveCreateInput struct {
	PersonUUID     uuid.UUID
	EngagementUUID uuid.UUID
	LeaveTypeUUID  uuid.UUID
	From           time.Time
	To             time.Time
}

func (c *Client) CreateLeave(ctx context.Context, in LeaveCreateInput) (uuid.UUID, error) {
	var resp struct {
		Created uuidPayloadJSON `json:"leave_create"`
	}
	err := c.execute(ctx, leaveCreateMutation, map[string]any{
		"input": map[string]any{
			"person":     in.PersonUUID.String(),
			"engagement": in.EngagementUUID.String(),
			"leave_type": in.LeaveTypeUUID.String(),
			"validity":   moValidity(in.From, in.To),
		},
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.Created.UUID)
}
