package handlers

import (
	"context"

	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

// createGroup answers only through the view push the creator receives as a member.
func (r *Router) createGroup(ctx context.Context, s *session.Session, env protocol.Envelope) error {
	var req protocol.CreateGroupRequest
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}

	group, err := r.store.CreateGroup(ctx, s.Identity(), req.GroupName, req.Members)
	if err != nil {
		r.emitAudit(ctx, s, "ERROR", env.Type, "group creation failed: "+err.Error())
		return err
	}

	r.emitAudit(ctx, s, "INFO", env.Type, "Group created "+group.ID)
	return nil
}
