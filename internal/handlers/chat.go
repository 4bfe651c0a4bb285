package handlers

import (
	"context"

	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

// sendChat appends a message. The sender sees it through the same push as
// every other member.
func (r *Router) sendChat(ctx context.Context, s *session.Session, env protocol.Envelope) error {
	var req protocol.SendChatRequest
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}

	if _, err := r.store.AddChatMessage(ctx, s.Identity(), req.GroupID, req.Message); err != nil {
		r.emitAudit(ctx, s, "ERROR", env.Type, "not allowed: "+err.Error())
		return err
	}
	return nil
}
