package handlers

import (
	"context"
	"strings"

	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

// login authenticates the session, binds it in the registry (displacing any
// earlier session of the same identity) and sends the initial view.
func (r *Router) login(ctx context.Context, s *session.Session, env protocol.Envelope) error {
	var req protocol.LoginRequest
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}

	identity, err := r.store.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		r.emitAudit(ctx, s, "WARN", env.Type, "login failed for "+strings.ToLower(req.Username))
		return err
	}

	if prev := s.SetIdentity(identity.Username); prev != "" && prev != identity.Username {
		r.registry.Unbind(prev, s)
	}
	s.Send(protocol.KindLoginSuccess, protocol.Result{Success: true, Message: "Login successful"})

	if displaced := r.registry.Bind(identity.Username, s); displaced != nil {
		s.Logger().Info("session displaced", "identity", identity.Username, "displaced", displaced.ID())
		r.publishSessionEvent(ctx, displaced, "session_displaced", "replaced by "+s.ID())
	}
	r.publishSessionEvent(ctx, s, "session_login", "")
	r.emitAudit(ctx, s, "INFO", env.Type, "login succeeded")

	return r.sendView(ctx, s, identity.Username)
}

// register creates an identity. It does not log the session in.
func (r *Router) register(ctx context.Context, s *session.Session, env protocol.Envelope) error {
	var req protocol.RegisterRequest
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}

	identity, err := r.store.RegisterIdentity(ctx, req.Username, req.Password)
	if err != nil {
		r.emitAudit(ctx, s, "WARN", env.Type, "registration rejected: "+err.Error())
		return err
	}

	r.emitAudit(ctx, s, "INFO", env.Type, "registered "+identity.Username)
	s.Send(protocol.KindRegisterOK, protocol.Result{Success: true, Message: "Registration successful"})
	return nil
}
