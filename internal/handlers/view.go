package handlers

import (
	"context"

	"calendar-sync/internal/models"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

// getUserData is the explicit resynchronization pull.
func (r *Router) getUserData(ctx context.Context, s *session.Session, _ protocol.Envelope) error {
	return r.sendView(ctx, s, s.Identity())
}

// sendView queues identity's view on s before any later mutation can push one.
func (r *Router) sendView(ctx context.Context, s *session.Session, identity string) error {
	return r.store.SendView(ctx, identity, func(view models.UserView) {
		s.Send(protocol.KindUserData, view)
	})
}
