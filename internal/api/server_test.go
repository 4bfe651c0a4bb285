package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/mocks"
	"calendar-sync/internal/models"
	"calendar-sync/internal/session"
)

type echoHandler struct {
	connected    chan *session.Session
	disconnected chan struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		connected:    make(chan *session.Session, 1),
		disconnected: make(chan struct{}),
	}
}

func (h *echoHandler) Connected(_ context.Context, s *session.Session) { h.connected <- s }

func (h *echoHandler) Handle(_ context.Context, s *session.Session, line []byte) {
	s.Enqueue(append([]byte("echo:"), line...))
}

func (h *echoHandler) Disconnected(*session.Session) { close(h.disconnected) }

func newTestServer(t *testing.T, store *mocks.StoreMock, handler session.ConnectHandler) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(store, handler, nil, Options{
		ServiceName:  "calendar-sync-test",
		MaxLineBytes: 1024,
		SendBuffer:   8,
		WriteTimeout: time.Second,
		DebugRoutes:  true,
	}, logs.GetLoggerFromLevel(slog.LevelDebug))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, new(mocks.StoreMock), newEchoHandler())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDebugAuditWithoutEmitter(t *testing.T) {
	_, ts := newTestServer(t, new(mocks.StoreMock), newEchoHandler())

	resp, err := http.Get(ts.URL + "/debug/audit-test")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCalendarRequiresCredentials(t *testing.T) {
	_, ts := newTestServer(t, new(mocks.StoreMock), newEchoHandler())

	resp, err := http.Get(ts.URL + "/calendar.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCalendarExportsVisibleSchedules(t *testing.T) {
	store := new(mocks.StoreMock)
	store.On("Authenticate", mock.Anything, "alice", "pw1").
		Return(models.Identity{Username: "alice", Secret: "pw1"}, nil).Once()
	store.On("ViewFor", mock.Anything, "alice").Return(models.UserView{
		User: models.User{Username: "alice"},
		Schedules: []models.Schedule{{
			ID:           "s1",
			Title:        "Dentist",
			StartTime:    models.MustParseTimestamp("2024-06-01T10:00:00"),
			EndTime:      models.MustParseTimestamp("2024-06-01T11:00:00"),
			Participants: []string{"alice"},
			CreatedBy:    "alice",
			IsPrivate:    true,
		}},
	}, nil).Once()

	_, ts := newTestServer(t, store, newEchoHandler())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/calendar.ics", nil)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "pw1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "SUMMARY:Dentist")
	store.AssertExpectations(t)
}

func TestWebSocketRunsSession(t *testing.T) {
	handler := newEchoHandler()
	srv, ts := newTestServer(t, new(mocks.StoreMock), handler)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var sess *session.Session
	select {
	case sess = <-handler.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not connected")
	}
	require.Equal(t, session.TransportWebSocket, sess.Info().Transport)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, `echo:{"type":"PING"}`, string(data))

	require.NoError(t, conn.Close())
	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not disconnect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
