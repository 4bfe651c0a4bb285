package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"calendar-sync/internal/protocol"
)

// Handler processes inbound lines for a session. Handle is never called
// concurrently for the same session.
type Handler interface {
	Handle(ctx context.Context, s *Session, line []byte)
	Disconnected(s *Session)
}

// ConnectHandler is a Handler that is told about sessions before they run.
type ConnectHandler interface {
	Handler
	Connected(ctx context.Context, s *Session)
}

// Session is one client connection. It starts unauthenticated and owns the
// only outbound path to its client: a bounded queue drained by a dedicated
// writer goroutine.
type Session struct {
	id        string
	transport Transport
	info      ConnInfo
	log       *slog.Logger

	send    chan []byte
	flush   chan struct{}
	done    chan struct{}
	written chan struct{}

	mu       sync.RWMutex
	identity string

	closeOnce sync.Once
	flushOnce sync.Once
}

// New wraps transport in a Session with an outbound queue of queueSize frames.
func New(transport Transport, info ConnInfo, queueSize int, log *slog.Logger) *Session {
	if queueSize <= 0 {
		queueSize = 256
	}
	if info.ConnID == "" {
		info.ConnID = uuid.NewString()
	}
	info.Transport = transport.Name()
	return &Session{
		id:        info.ConnID,
		transport: transport,
		info:      info,
		log:       log.With("session", info.ConnID, "transport", transport.Name()),
		send:      make(chan []byte, queueSize),
		flush:     make(chan struct{}),
		done:      make(chan struct{}),
		written:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Info() ConnInfo { return s.info }

func (s *Session) Logger() *slog.Logger { return s.log }

// Identity returns the authenticated username, or "" before login.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetIdentity marks the session as authenticated and returns the previous identity.
func (s *Session) SetIdentity(identity string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.identity
	s.identity = identity
	return prev
}

// Authenticated reports whether login has succeeded on this session.
func (s *Session) Authenticated() bool {
	return s.Identity() != ""
}

// Enqueue queues an encoded frame without blocking. A full queue means the
// client is not keeping up; the session is closed and the frame dropped.
func (s *Session) Enqueue(line []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- line:
		return true
	default:
		s.log.Warn("outbound queue full, closing slow session", "identity", s.Identity())
		go s.Close()
		return false
	}
}

// Send encodes and enqueues one envelope.
func (s *Session) Send(kind protocol.Kind, payload any) bool {
	line, err := protocol.Encode(kind, payload)
	if err != nil {
		s.log.Error("encode outbound envelope", "kind", kind, "err", err)
		return false
	}
	return s.Enqueue(line)
}

// Run starts the writer and reads until the transport fails or the session is
// closed. On a clean end of input the queue is flushed before teardown. It
// returns after the handler has been told about the disconnect.
func (s *Session) Run(ctx context.Context, handler Handler) {
	go s.writeLoop()

	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			s.logReadError(err)
			if errors.Is(err, io.EOF) {
				// Half-closed peers still receive replies already queued.
				s.Flush()
			} else {
				s.Close()
			}
			break
		}
		handler.Handle(ctx, s, line)
	}

	<-s.written
	handler.Disconnected(s)
}

// Flush asks the writer to deliver whatever is queued and then close.
func (s *Session) Flush() {
	s.flushOnce.Do(func() { close(s.flush) })
}

// Close tears the session down immediately. Queued frames are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.transport.Close()
	})
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Written is closed once the writer goroutine has exited.
func (s *Session) Written() <-chan struct{} { return s.written }

func (s *Session) writeLoop() {
	defer close(s.written)
	for {
		select {
		case line := <-s.send:
			if !s.write(line) {
				return
			}
		case <-s.flush:
			for {
				select {
				case line := <-s.send:
					if !s.write(line) {
						return
					}
				default:
					s.Close()
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) write(line []byte) bool {
	if err := s.transport.WriteLine(line); err != nil {
		s.log.Debug("write failed, closing session", "err", err)
		s.Close()
		return false
	}
	return true
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.log.Debug("peer closed connection")
	case errors.Is(err, ErrLineTooLong):
		s.log.Info("closing session: inbound line too long")
	default:
		select {
		case <-s.done:
			s.log.Debug("session closed")
		default:
			s.log.Debug("read failed", "err", err)
		}
	}
}
