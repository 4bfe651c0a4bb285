package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/mocks"
	"calendar-sync/internal/models"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/session"
	"calendar-sync/internal/session/sessiontest"
)

func setupRouter(t *testing.T) (*Router, *mocks.StoreMock, *session.Registry) {
	t.Helper()
	store := new(mocks.StoreMock)
	registry := session.NewRegistry()
	router := NewRouter(store, registry, nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	return router, store, registry
}

func connect(t *testing.T, router *Router) (*session.Session, *sessiontest.Transport) {
	t.Helper()
	transport := sessiontest.NewTransport()
	s := session.New(transport, session.ConnInfo{ConnectedAt: time.Now()}, 16, logs.GetLoggerFromLevel(slog.LevelDebug))
	router.Connected(context.Background(), s)
	go s.Run(context.Background(), router)
	t.Cleanup(s.Close)
	return s, transport
}

func errorMessage(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload.Message
}

func loginAs(t *testing.T, store *mocks.StoreMock, transport *sessiontest.Transport, name string, already int) {
	t.Helper()
	store.On("Authenticate", mock.Anything, name, "pw").Return(models.Identity{Username: name}, nil).Once()
	store.On("SendView", mock.Anything, name).Return(models.UserView{User: models.User{Username: name}}, nil).Once()
	transport.Feed(`{"type":"LOGIN","data":{"username":"` + name + `","password":"pw"}}`)
	envs := transport.WaitFor(already+2, time.Second)
	require.Len(t, envs, already+2)
	require.Equal(t, protocol.KindLoginSuccess, envs[already].Type)
	require.Equal(t, protocol.KindUserData, envs[already+1].Type)
}

func TestUnauthenticatedRequestIsRejectedAndConnectionStaysUsable(t *testing.T) {
	router, store, registry := setupRouter(t)
	s, transport := connect(t, router)

	transport.Feed(`{"type":"SEND_CHAT","data":{"groupId":"grp_1","message":"hi"}}`)
	envs := transport.WaitFor(1, time.Second)
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindError, envs[0].Type)
	require.Equal(t, "login required", errorMessage(t, envs[0]))
	store.AssertNotCalled(t, "AddChatMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	loginAs(t, store, transport, "alice", 1)
	got, ok := registry.Lookup("alice")
	require.True(t, ok)
	require.Same(t, s, got)
	store.AssertExpectations(t)
}

func TestUnknownKind(t *testing.T) {
	router, _, _ := setupRouter(t)
	_, transport := connect(t, router)

	transport.Feed(`{"type":"DANCE","data":null}`)
	envs := transport.WaitFor(1, time.Second)
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindError, envs[0].Type)
	require.Equal(t, "unknown message type: DANCE", errorMessage(t, envs[0]))
}

func TestMalformedLineKeepsSessionOpen(t *testing.T) {
	router, _, _ := setupRouter(t)
	_, transport := connect(t, router)

	transport.Feed(`{"type":`)
	transport.Feed(`{"type":"LOGIN","data":"nope"}`)
	envs := transport.WaitFor(2, time.Second)
	require.Len(t, envs, 2)
	require.Equal(t, protocol.KindError, envs[0].Type)
	require.Equal(t, protocol.KindLoginFailed, envs[1].Type)
	require.False(t, transport.Closed())
}

func TestLoginFailure(t *testing.T) {
	router, store, registry := setupRouter(t)
	_, transport := connect(t, router)

	store.On("Authenticate", mock.Anything, "alice", "bad").Return(nil, repositories.ErrInvalidCredentials).Once()
	transport.Feed(`{"type":"LOGIN","data":{"username":"alice","password":"bad"}}`)

	envs := transport.WaitFor(1, time.Second)
	require.Len(t, envs, 1)
	require.Equal(t, protocol.KindLoginFailed, envs[0].Type)
	var result protocol.Result
	require.NoError(t, json.Unmarshal(envs[0].Data, &result))
	require.False(t, result.Success)
	require.Equal(t, "Invalid username or password", result.Message)
	require.Equal(t, 0, registry.Online())
	store.AssertExpectations(t)
}

func TestRegisterDuplicate(t *testing.T) {
	router, store, _ := setupRouter(t)
	_, transport := connect(t, router)

	store.On("RegisterIdentity", mock.Anything, "alice", "pw1").Return(models.Identity{Username: "alice"}, nil).Once()
	store.On("RegisterIdentity", mock.Anything, "Alice", "pw2").Return(nil, repositories.ErrAlreadyExists).Once()
	transport.Feed(`{"type":"REGISTER","data":{"username":"alice","password":"pw1"}}`)
	transport.Feed(`{"type":"REGISTER","data":{"username":"Alice","password":"pw2"}}`)

	envs := transport.WaitFor(2, time.Second)
	require.Equal(t, []protocol.Kind{protocol.KindRegisterOK, protocol.KindRegisterFail}, transport.Kinds())
	var result protocol.Result
	require.NoError(t, json.Unmarshal(envs[1].Data, &result))
	require.Equal(t, "Username already exists", result.Message)
	store.AssertExpectations(t)
}

func TestSendChatNotAMember(t *testing.T) {
	router, store, _ := setupRouter(t)
	_, transport := connect(t, router)
	loginAs(t, store, transport, "mallory", 0)

	store.On("AddChatMessage", mock.Anything, "mallory", "grp_1", "hi").Return(nil, repositories.ErrNotAMember).Once()
	transport.Feed(`{"type":"SEND_CHAT","data":{"groupId":"grp_1","message":"hi"}}`)

	envs := transport.WaitFor(3, time.Second)
	require.Len(t, envs, 3)
	require.Equal(t, protocol.KindError, envs[2].Type)
	require.Equal(t, repositories.ErrNotAMember.Error(), errorMessage(t, envs[2]))
	store.AssertExpectations(t)
}

func TestAddScheduleForwardsDraft(t *testing.T) {
	router, store, _ := setupRouter(t)
	_, transport := connect(t, router)
	loginAs(t, store, transport, "alice", 0)

	draft := models.ScheduleDraft{
		Title:     "Dentist",
		StartTime: models.MustParseTimestamp("2024-01-10T09:00:00"),
		EndTime:   models.MustParseTimestamp("2024-01-10T10:00:00"),
	}
	done := make(chan struct{})
	store.On("AddSchedule", mock.Anything, "alice", draft).Return(models.Schedule{ID: "s1"}, nil).Once().
		Run(func(mock.Arguments) { close(done) })
	transport.Feed(`{"type":"ADD_SCHEDULE","data":{"title":"Dentist","description":"","startTime":"2024-01-10T09:00:00","endTime":"2024-01-10T10:00:00","allDay":false,"isPrivate":false}}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AddSchedule not called")
	}
	store.AssertExpectations(t)
}

func TestCreateGroupForwardsMembers(t *testing.T) {
	router, store, _ := setupRouter(t)
	_, transport := connect(t, router)
	loginAs(t, store, transport, "alice", 0)

	done := make(chan struct{})
	store.On("CreateGroup", mock.Anything, "alice", "Eng", []string{"bob"}).Return(models.Group{ID: "grp_1"}, nil).Once().
		Run(func(mock.Arguments) { close(done) })
	transport.Feed(`{"type":"CREATE_GROUP","data":{"groupName":"Eng","members":["bob"]}}`)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CreateGroup not called")
	}
	store.AssertExpectations(t)
}

func TestSecondLoginDisplacesFirstSession(t *testing.T) {
	router, store, registry := setupRouter(t)
	first, firstTransport := connect(t, router)
	second, secondTransport := connect(t, router)

	loginAs(t, store, firstTransport, "alice", 0)
	loginAs(t, store, secondTransport, "alice", 0)

	got, ok := registry.Lookup("alice")
	require.True(t, ok)
	require.Same(t, second, got)
	require.False(t, firstTransport.Closed())

	require.Equal(t, session.Queued, registry.Push("alice", []byte(`{"type":"USER_DATA","data":null}`)))
	secondTransport.WaitFor(3, time.Second)
	require.Len(t, secondTransport.Envelopes(), 3)
	require.Len(t, firstTransport.Envelopes(), 2)

	first.Close()
	require.Eventually(t, func() bool { return len(registry.Sessions()) == 1 }, time.Second, 5*time.Millisecond)
	got, ok = registry.Lookup("alice")
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestGetUserData(t *testing.T) {
	router, store, _ := setupRouter(t)
	_, transport := connect(t, router)
	loginAs(t, store, transport, "alice", 0)

	store.On("SendView", mock.Anything, "alice").Return(models.UserView{
		User:   models.User{Username: "alice"},
		Groups: []models.Group{{ID: "grp_1", Name: "Eng", CreatedBy: "alice", Members: []string{"alice"}}},
	}, nil).Once()
	transport.Feed(`{"type":"GET_USER_DATA","data":null}`)

	envs := transport.WaitFor(3, time.Second)
	require.Len(t, envs, 3)
	require.Equal(t, protocol.KindUserData, envs[2].Type)
	var view models.UserView
	require.NoError(t, json.Unmarshal(envs[2].Data, &view))
	require.Len(t, view.Groups, 1)
}
