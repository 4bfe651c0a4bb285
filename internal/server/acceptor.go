package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"calendar-sync/internal/observability"
	"calendar-sync/internal/protocol"
	"calendar-sync/internal/session"
)

// ShutdownMessage is sent to every live session before the server exits.
const ShutdownMessage = "Server is shutting down"

type Options struct {
	Addr         string
	MaxLineBytes int
	SendBuffer   int
	WriteTimeout time.Duration
}

// Acceptor owns the TCP listener and spawns one session per connection.
type Acceptor struct {
	handler  session.ConnectHandler
	registry *session.Registry
	opts     Options
	log      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	stopped  chan struct{}
	conns    sync.WaitGroup
}

func NewAcceptor(handler session.ConnectHandler, registry *session.Registry, opts Options, log *slog.Logger) *Acceptor {
	return &Acceptor{
		handler:  handler,
		registry: registry,
		opts:     opts,
		log:      log,
		stopped:  make(chan struct{}),
	}
}

// Listen binds the configured address. It is separate from Serve so callers
// can learn the bound port before accepting.
func (a *Acceptor) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", a.opts.Addr)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until Shutdown. It returns nil on a clean stop.
func (a *Acceptor) Serve(ctx context.Context) error {
	defer close(a.stopped)

	a.mu.Lock()
	ln := a.listener
	a.mu.Unlock()
	if ln == nil {
		return errors.New("acceptor: Serve called before Listen")
	}
	a.log.Info("tcp server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if a.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				a.log.Warn("accept failed, retrying", "err", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		a.conns.Add(1)
		go a.serveConn(ctx, conn)
	}
}

func (a *Acceptor) serveConn(ctx context.Context, conn net.Conn) {
	defer a.conns.Done()

	transport := session.NewLineTransport(conn, a.opts.MaxLineBytes, a.opts.WriteTimeout)
	info := session.ConnInfo{
		IP:          observability.HostOnly(conn.RemoteAddr().String()),
		ConnectedAt: time.Now(),
	}
	s := session.New(transport, info, a.opts.SendBuffer, a.log)
	a.handler.Connected(ctx, s)

	// A connection accepted while shutdown was broadcasting may have missed it.
	if a.isClosing() {
		notifyShutdown(s)
	}
	s.Run(ctx, a.handler)
}

// Shutdown stops accepting, tells every tracked session the server is going
// away, and waits for their workers until ctx expires. Sessions still open at
// that point are closed without flushing.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	ln := a.listener
	a.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
		select {
		case <-a.stopped:
		case <-ctx.Done():
		}
	}

	sessions := a.registry.Sessions()
	a.log.Info("shutting down", "sessions", len(sessions))
	for _, s := range sessions {
		notifyShutdown(s)
	}

	done := make(chan struct{})
	go func() {
		a.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range a.registry.Sessions() {
			s.Close()
		}
		return ctx.Err()
	}
}

func (a *Acceptor) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

func notifyShutdown(s *session.Session) {
	s.Send(protocol.KindShutdown, protocol.ErrorPayload{Message: ShutdownMessage})
	s.Flush()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
