package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Publisher is satisfied by the rabbitmq publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter records who did what through the sync protocol. Records are
// routed as <routingKey>.<kind> so consumers can bind per request kind.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	Identity      *string      `json:"identity,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Kind  string `json:"kind,omitempty"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes one audit record. A nil emitter is a no-op. Publish errors
// are logged and never reach the caller.
func (e *AuditEmitter) Emit(ctx context.Context, level, kind, text, requestID string, identity *string) {
	if e == nil || e.publisher == nil {
		return
	}

	level = strings.ToUpper(level)
	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Identity:      identity,
		Payload:       AuditPayload{Level: level, Kind: kind, Text: text},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	key := e.routingKeyFor(kind)
	e.log.Debug("audit emit", "routing_key", key, "level", level, "request_id", requestID, "text", text)
	if err := e.publisher.Publish(ctx, key, envelope); err != nil {
		e.log.Warn("audit publish failed", "routing_key", key, "err", err)
	}
}

func (e *AuditEmitter) routingKeyFor(kind string) string {
	if kind == "" {
		return e.routingKey
	}
	return e.routingKey + "." + strings.ToLower(kind)
}
