package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"calendar-sync/internal/observability"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

type requestIDKey struct{}

func withRequestID(ctx context.Context) (context.Context, string) {
	requestID := uuid.NewString()
	return context.WithValue(ctx, requestIDKey{}, requestID), requestID
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func identityFromSession(s *session.Session) *string {
	if identity := s.Identity(); identity != "" {
		return &identity
	}
	return nil
}

func (r *Router) emitAudit(ctx context.Context, s *session.Session, level string, kind protocol.Kind, text string) {
	r.audit.Emit(ctx, level, string(kind), text, requestIDFromContext(ctx), identityFromSession(s))
}

// Connected records a newly accepted session.
func (r *Router) Connected(ctx context.Context, s *session.Session) {
	r.registry.Track(s)
	observability.IncSessionActive(s.Info().Transport)
	r.publishSessionEvent(ctx, s, "session_connect", "")
	s.Logger().Info("session connected", "remote", s.Info().IP)
}

// Disconnected releases the registry entries held by s.
func (r *Router) Disconnected(s *session.Session) {
	r.registry.Untrack(s)
	observability.DecSessionActive(s.Info().Transport)
	r.publishSessionEvent(context.Background(), s, "session_disconnect", "")
	s.Logger().Info("session disconnected", "identity", s.Identity())
}

func (r *Router) publishSessionEvent(ctx context.Context, s *session.Session, event, reason string) {
	info := s.Info()
	observability.IncSessionEvent(info.Transport, event)

	traceID := info.TraceID
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	_ = observability.PublishEvent(ctx, "session_events."+info.Transport, observability.EventEnvelope{
		EventType: "session_events",
		EventName: event,
		Payload: map[string]interface{}{
			"session": map[string]interface{}{
				"transport":   info.Transport,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
				"request_id":  info.RequestID,
				"trace_id":    traceID,
			},
			"identity": map[string]interface{}{
				"username": s.Identity(),
				"ip":       info.IP,
			},
		},
	})
}
