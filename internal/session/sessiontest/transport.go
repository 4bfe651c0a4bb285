// Package sessiontest provides an in-memory Transport for tests.
package sessiontest

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"calendar-sync/internal/protocol"
)

// Transport feeds scripted lines to a session and records what it writes.
type Transport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

// NewTransport returns an open in-memory transport.
func NewTransport() *Transport {
	return &Transport{in: make(chan []byte, 64), closed: make(chan struct{})}
}

// Feed queues a line for the session to read.
func (t *Transport) Feed(line string) {
	t.in <- []byte(line)
}

func (t *Transport) ReadLine() ([]byte, error) {
	select {
	case line := <-t.in:
		return line, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *Transport) WriteLine(line []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, append([]byte(nil), line...))
	return nil
}

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *Transport) RemoteAddr() string { return "memory" }

func (t *Transport) Name() string { return "memory" }

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Envelopes decodes everything written so far.
func (t *Transport) Envelopes() []protocol.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(t.written))
	for _, line := range t.written {
		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Kinds lists the kinds written so far, in order.
func (t *Transport) Kinds() []protocol.Kind {
	envs := t.Envelopes()
	kinds := make([]protocol.Kind, 0, len(envs))
	for _, env := range envs {
		kinds = append(kinds, env.Type)
	}
	return kinds
}

// WaitFor polls until at least n envelopes were written or the timeout passes.
func (t *Transport) WaitFor(n int, timeout time.Duration) []protocol.Envelope {
	deadline := time.Now().Add(timeout)
	for {
		envs := t.Envelopes()
		if len(envs) >= n || time.Now().After(deadline) {
			return envs
		}
		time.Sleep(5 * time.Millisecond)
	}
}
