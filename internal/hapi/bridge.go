package hapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/edbridge/annolti/internal/errorx"
	"github.com/edbridge/annolti/internal/lti"
)

// Bridge runs the provisioning steps a launch needs, in order: upsert the
// user, upsert the course group, add the user to the group. Every step is
// idempotent; replaying a launch produces no duplicate state.
type Bridge struct {
	Client *Client

	// Provider/ProviderUniqueID identify the LTI install in the user's
	// identities list.
	Provider string
}

// Provisioned is what a completed provisioning cycle yields.
type Provisioned struct {
	User    HUser
	GroupID string
}

// Provision runs the full cycle for a launch user. When the course group
// does not exist yet, only an instructor may create it; a learner gets
// errorx.ErrInstructorMustLaunchFirst.
func (b *Bridge) Provision(ctx context.Context, u lti.User, contextID, contextTitle string) (Provisioned, error) {
	hu := NewHUser(b.Client.Authority, u)

	if err := b.Client.UpsertUser(ctx, hu, b.provider(u), u.UserID); err != nil {
		return Provisioned{}, fmt.Errorf("upsert user: %w", err)
	}

	apid := AuthorityProvidedID(u.ToolConsumerInstanceGUID, contextID)
	groupID := GroupID(apid, b.Client.Authority)
	name := GroupName(contextTitle)
	if name == "" {
		name = "Course"
	}

	err := b.Client.UpdateGroup(ctx, groupID, name)
	if errors.Is(err, errorx.ErrHAPINotFound) {
		if !u.IsInstructor() {
			return Provisioned{}, errorx.ErrInstructorMustLaunchFirst
		}
		err = b.Client.CreateGroup(ctx, groupID, name, hu)
	}
	if err != nil {
		return Provisioned{}, fmt.Errorf("upsert group: %w", err)
	}

	if err := b.Client.AddGroupMember(ctx, groupID, hu); err != nil {
		return Provisioned{}, fmt.Errorf("add member: %w", err)
	}
	return Provisioned{User: hu, GroupID: groupID}, nil
}

func (b *Bridge) provider(u lti.User) string {
	if b.Provider != "" {
		return b.Provider
	}
	return u.ToolConsumerInstanceGUID
}
