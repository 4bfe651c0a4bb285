package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"calendar-sync/internal/middleware"
	"calendar-sync/internal/observability"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/session"
	"calendar-sync/internal/telemetry"
)

// Options configures the HTTP side of the server.
type Options struct {
	Addr         string
	ServiceName  string
	MaxLineBytes int
	SendBuffer   int
	WriteTimeout time.Duration
	DebugRoutes  bool
}

// Server exposes health, metrics, the calendar feed and a WebSocket carrying
// the same envelopes as the TCP listener.
type Server struct {
	engine   *gin.Engine
	http     *http.Server
	store    repositories.StoreRepository
	handler  session.ConnectHandler
	audit    *telemetry.AuditEmitter
	opts     Options
	log      *slog.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader
	sessions sync.WaitGroup
}

func NewServer(store repositories.StoreRepository, handler session.ConnectHandler, audit *telemetry.AuditEmitter, opts Options, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		store:   store,
		handler: handler,
		audit:   audit,
		opts:    opts,
		log:     log,
		tracer:  otel.Tracer("calendar-sync/api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware(opts.ServiceName))
	s.engine.Use(observability.HTTPMetricsMiddleware())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/calendar.ics", middleware.BasicAuth(store, "calendar-sync"), s.handleCalendar)
	registerDebugRoutes(s.engine, audit, opts.DebugRoutes)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts HTTP connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for WebSocket sessions to end.
// Sessions are notified and flushed by whoever owns the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	s.sessions.Add(1)
	defer s.sessions.Done()

	ctx, span := s.tracer.Start(c.Request.Context(), "ws.handshake")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	info := session.ConnInfo{
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	transport := session.NewWebSocketTransport(conn, s.opts.MaxLineBytes, s.opts.WriteTimeout)
	sess := session.New(transport, info, s.opts.SendBuffer, s.log)

	s.handler.Connected(ctx, sess)
	span.End()

	sess.Run(context.WithoutCancel(ctx), s.handler)
}
