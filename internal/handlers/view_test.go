package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/models"
	"calendar-sync/internal/notify"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/session"
)

// racingStore starts a mutation from inside the view delivery of the next pull.
type racingStore struct {
	*repositories.Store
	mutate    func()
	committed chan struct{}
}

func (s *racingStore) SendView(ctx context.Context, username string, deliver func(models.UserView)) error {
	if s.mutate == nil {
		return s.Store.SendView(ctx, username, deliver)
	}
	mutate := s.mutate
	s.mutate = nil
	return s.Store.SendView(ctx, username, func(view models.UserView) {
		go func() {
			mutate()
			close(s.committed)
		}()
		select {
		case <-s.committed:
		case <-time.After(50 * time.Millisecond):
		}
		deliver(view)
	})
}

func TestPulledViewIsNeverQueuedAfterNewerPush(t *testing.T) {
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := session.NewRegistry()
	store := &racingStore{
		Store:     repositories.NewStore(nil, notify.New(registry, log), log),
		committed: make(chan struct{}),
	}
	_, err := store.RegisterIdentity(ctx, "alice", "pw")
	require.NoError(t, err)

	router := NewRouter(store, registry, nil, log)
	_, transport := connect(t, router)
	transport.Feed(`{"type":"LOGIN","data":{"username":"alice","password":"pw"}}`)
	require.Len(t, transport.WaitFor(2, time.Second), 2)

	store.mutate = func() {
		_, err := store.Store.AddSchedule(ctx, "alice", models.ScheduleDraft{Title: "Standup"})
		assert.NoError(t, err)
	}
	transport.Feed(`{"type":"GET_USER_DATA","data":null}`)

	select {
	case <-store.committed:
	case <-time.After(time.Second):
		t.Fatal("schedule was never committed")
	}
	envs := transport.WaitFor(4, time.Second)
	require.Len(t, envs, 4)

	var pulled, pushed models.UserView
	require.Equal(t, protocol.KindUserData, envs[2].Type)
	require.NoError(t, json.Unmarshal(envs[2].Data, &pulled))
	require.Empty(t, pulled.Schedules)
	require.Equal(t, protocol.KindUserData, envs[3].Type)
	require.NoError(t, json.Unmarshal(envs[3].Data, &pushed))
	require.Len(t, pushed.Schedules, 1)
	require.Equal(t, "Standup", pushed.Schedules[0].Title)
}
