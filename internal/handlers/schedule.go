package handlers

import (
	"context"

	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

func (r *Router) addSchedule(ctx context.Context, s *session.Session, env protocol.Envelope) error {
	var req protocol.AddScheduleRequest
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}
	draft, err := req.Draft()
	if err != nil {
		return err
	}

	schedule, err := r.store.AddSchedule(ctx, s.Identity(), draft)
	if err != nil {
		return err
	}

	r.emitAudit(ctx, s, "INFO", env.Type, "Schedule added "+schedule.ID)
	return nil
}
