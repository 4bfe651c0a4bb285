package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"calendar-sync/internal/observability"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/session"
	"calendar-sync/internal/telemetry"
)

// errLoginRequired is reported when a gated kind arrives before login.
var errLoginRequired = errors.New("login required")

type handlerFunc func(ctx context.Context, s *session.Session, env protocol.Envelope) error

type route struct {
	requiresAuth bool
	handle       handlerFunc
}

// Router decodes one envelope at a time, applies the authentication gate and
// dispatches to the handler for its kind. No error closes the connection.
type Router struct {
	store    repositories.StoreRepository
	registry *session.Registry
	audit    *telemetry.AuditEmitter
	tracer   trace.Tracer
	log      *slog.Logger
	routes   map[protocol.Kind]route
}

// NewRouter constructs a Router.
func NewRouter(store repositories.StoreRepository, registry *session.Registry, audit *telemetry.AuditEmitter, log *slog.Logger) *Router {
	r := &Router{
		store:    store,
		registry: registry,
		audit:    audit,
		tracer:   otel.Tracer("calendar-sync/handlers"),
		log:      log,
	}
	r.routes = map[protocol.Kind]route{
		protocol.KindLogin:       {handle: r.login},
		protocol.KindRegister:    {handle: r.register},
		protocol.KindSendChat:    {requiresAuth: true, handle: r.sendChat},
		protocol.KindAddSchedule: {requiresAuth: true, handle: r.addSchedule},
		protocol.KindCreateGroup: {requiresAuth: true, handle: r.createGroup},
		protocol.KindGetUserData: {requiresAuth: true, handle: r.getUserData},
	}
	return r
}

// Handle processes one inbound line for s.
func (r *Router) Handle(ctx context.Context, s *session.Session, line []byte) {
	start := time.Now()
	ctx, requestID := withRequestID(ctx)

	env, err := protocol.Decode(line)
	if err != nil {
		s.Logger().Debug("malformed envelope", "request_id", requestID, "err", err)
		s.Send(protocol.KindError, protocol.ErrorPayload{Message: "malformed message: " + errorText(err)})
		observability.ObserveRequest("malformed", "protocol_error", time.Since(start))
		return
	}

	rt, ok := r.routes[env.Type]
	if !ok {
		s.Send(protocol.KindError, protocol.ErrorPayload{Message: fmt.Sprintf("%v: %s", protocol.ErrUnknownKind, env.Type)})
		observability.ObserveRequest("unknown", "protocol_error", time.Since(start))
		return
	}

	if rt.requiresAuth && !s.Authenticated() {
		r.emitAudit(ctx, s, "WARN", env.Type, "rejected before login")
		s.Send(protocol.KindError, protocol.ErrorPayload{Message: errLoginRequired.Error()})
		observability.ObserveRequest(string(env.Type), "unauthenticated", time.Since(start))
		return
	}

	ctx, span := r.tracer.Start(ctx, "request."+strings.ToLower(string(env.Type)),
		trace.WithAttributes(
			attribute.String("request.kind", string(env.Type)),
			attribute.String("request.id", requestID),
			attribute.String("session.id", s.ID()),
		))
	defer span.End()

	err = rt.handle(ctx, s, env)
	outcome := classify(err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.Logger().Debug("request failed", "kind", env.Type, "identity", s.Identity(), "request_id", requestID, "err", err)
		r.respondError(s, env.Type, err)
	}
	observability.ObserveRequest(string(env.Type), outcome, time.Since(start))
}

// respondError maps a failed request to its single response envelope.
func (r *Router) respondError(s *session.Session, kind protocol.Kind, err error) {
	message := errorText(err)
	switch kind {
	case protocol.KindLogin:
		s.Send(protocol.KindLoginFailed, protocol.Result{Success: false, Message: message})
	case protocol.KindRegister:
		s.Send(protocol.KindRegisterFail, protocol.Result{Success: false, Message: message})
	default:
		s.Send(protocol.KindError, protocol.ErrorPayload{Message: message})
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrInvalidPayload), errors.Is(err, protocol.ErrMalformedEnvelope), errors.Is(err, protocol.ErrUnknownKind):
		return "protocol_error"
	case errors.Is(err, errLoginRequired):
		return "unauthenticated"
	default:
		return "domain_error"
	}
}

// errorText is the human-readable message sent to the client.
func errorText(err error) string {
	switch {
	case errors.Is(err, repositories.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, repositories.ErrAlreadyExists):
		return "Username already exists"
	default:
		return err.Error()
	}
}
