package session

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"calendar-sync/internal/protocol"
)

type echoHandler struct {
	mu           sync.Mutex
	lines        []string
	disconnected chan struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{disconnected: make(chan struct{})}
}

func (h *echoHandler) Handle(_ context.Context, s *Session, line []byte) {
	h.mu.Lock()
	h.lines = append(h.lines, string(line))
	h.mu.Unlock()
	s.Send(protocol.KindError, protocol.ErrorPayload{Message: "echo:" + string(line)})
}

func (h *echoHandler) Disconnected(*Session) { close(h.disconnected) }

func pipeSession(t *testing.T, queue int) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	transport := NewLineTransport(server, 1024, time.Second)
	s := New(transport, ConnInfo{}, queue, logs.GetLoggerFromLevel(slog.LevelDebug))
	t.Cleanup(func() {
		s.Close()
		_ = client.Close()
	})
	return s, client
}

func TestSessionRunRepliesInOrder(t *testing.T) {
	s, client := pipeSession(t, 8)
	handler := newEchoHandler()
	go s.Run(context.Background(), handler)

	reader := bufio.NewReader(client)
	for _, in := range []string{"one", "two"} {
		_, err := client.Write([]byte(in + "\n"))
		require.NoError(t, err)
		out, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Contains(t, out, `"echo:`+in+`"`)
	}

	require.NoError(t, client.Close())
	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not told about the disconnect")
	}
}

func TestSessionRejectsOversizedLine(t *testing.T) {
	s, client := pipeSession(t, 8)
	handler := newEchoHandler()
	go s.Run(context.Background(), handler)

	go func() { _, _ = client.Write([]byte(strings.Repeat("x", 4096) + "\n")) }()

	select {
	case <-handler.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("oversized line did not end the session")
	}
	require.Empty(t, handler.lines)
}

func TestEnqueueOnFullQueueClosesSession(t *testing.T) {
	s, _ := pipeSession(t, 1)

	require.True(t, s.Enqueue([]byte("first")))
	require.False(t, s.Enqueue([]byte("second")))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow session was not closed")
	}
	require.False(t, s.Enqueue([]byte("third")))
}

func TestFlushDeliversQueuedFramesBeforeClosing(t *testing.T) {
	s, client := pipeSession(t, 8)
	go s.writeLoop()

	require.True(t, s.Send(protocol.KindShutdown, protocol.ErrorPayload{Message: "bye"}))
	s.Flush()

	out, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, out, `"SERVER_SHUTDOWN"`)

	select {
	case <-s.Written():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit after flush")
	}
}

func TestSetIdentity(t *testing.T) {
	s, _ := pipeSession(t, 1)
	require.False(t, s.Authenticated())
	require.Equal(t, "", s.SetIdentity("alice"))
	require.Equal(t, "alice", s.SetIdentity("bob"))
	require.Equal(t, "bob", s.Identity())
}

func TestHalfClosedPeerReceivesQueuedReplies(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := newEchoHandler()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := New(NewLineTransport(conn, 1024, time.Second), ConnInfo{}, 8, logs.GetLoggerFromLevel(slog.LevelDebug))
		s.Run(context.Background(), handler)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	require.NoError(t, client.(*net.TCPConn).CloseWrite())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	out, err := io.ReadAll(client)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "echo:one")
	require.Contains(t, lines[1], "echo:two")

	select {
	case <-handler.disconnected:
	case <-time.After(time.Second):
		t.Fatal("handler was not told about the disconnect")
	}
}
