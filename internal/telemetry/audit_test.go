package telemetry_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/mocks"
	"calendar-sync/internal/telemetry"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.calendar", "calendar-sync", "test", logs.GetLoggerFromLevel(slog.LevelDebug))
	identity := "alice"

	publisher.On("Publish", mock.Anything, "audit.calendar.login", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.SchemaVersion == 2 &&
			e.Service == "calendar-sync" &&
			e.RequestID == "req-1" &&
			e.Identity != nil && *e.Identity == "alice" &&
			e.Payload.Kind == "LOGIN" &&
			e.Payload.Level == "INFO"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "info", "LOGIN", "login succeeded", "req-1", &identity)
	publisher.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.calendar", "calendar-sync", "test", logs.GetLoggerFromLevel(slog.LevelDebug))

	publisher.On("Publish", mock.Anything, "audit.calendar", mock.Anything).Return(errors.New("broker down")).Once()

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "WARN", "", "no kind", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestNilAuditEmitterIsNoop(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "LOGIN", "x", "req", nil)
	})
}
