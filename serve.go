package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"calendar-sync/internal/api"
	"calendar-sync/internal/config"
	"calendar-sync/internal/db"
	"calendar-sync/internal/handlers"
	"calendar-sync/internal/jobs"
	"calendar-sync/internal/notify"
	"calendar-sync/internal/observability"
	"calendar-sync/internal/rabbitmq"
	"calendar-sync/internal/repositories"
	"calendar-sync/internal/server"
	"calendar-sync/internal/session"
	"calendar-sync/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logs.GetLoggerFromString(cfg.LogLevel)

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Environment, cfg.Tracing.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event publisher ready",
		"mode", rabbitmq.PublisherMode(publisher),
		"reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.Events.AuditRoutingKey, cfg.Tracing.ServiceName, cfg.Tracing.Environment, log)

	sink, err := db.Open(ctx, sinkOptions(cfg), log)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("close persistence", "err", err)
		}
	}()

	registry := session.NewRegistry()
	store := repositories.NewStore(sink, notify.New(registry, log), log)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	router := handlers.NewRouter(store, registry, audit, log)

	acceptor := server.NewAcceptor(router, registry, server.Options{
		Addr:         cfg.ListenAddr,
		MaxLineBytes: cfg.MaxLineBytes,
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
	}, log)
	if _, err := acceptor.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	var httpServer *api.Server
	if cfg.HTTPAddr != "" {
		httpServer = api.NewServer(store, router, audit, api.Options{
			Addr:         cfg.HTTPAddr,
			ServiceName:  cfg.Tracing.ServiceName,
			MaxLineBytes: cfg.MaxLineBytes,
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
			DebugRoutes:  cfg.DebugRoutes,
		}, log)
	}

	scheduler := jobs.NewScheduler(store, registry, log)
	if err := scheduler.ScheduleStats(cfg.StatsSchedule); err != nil {
		return err
	}
	scheduler.RecordStats()
	scheduler.Start()

	// Sessions outlive the signal so in-flight requests can still persist.
	serveCtx := context.WithoutCancel(ctx)
	errCh := make(chan error, 2)
	go func() { errCh <- acceptor.Serve(serveCtx) }()
	if httpServer != nil {
		go func() { errCh <- httpServer.ListenAndServe() }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error("server stopped", "err", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := acceptor.Shutdown(shutdownCtx); err != nil {
		log.Warn("sessions did not finish before timeout", "err", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
	}
	scheduler.Stop(shutdownCtx)
	if err := store.Checkpoint(shutdownCtx); err != nil {
		log.Error("final checkpoint failed", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", "err", err)
	}

	log.Info("server stopped")
	return runErr
}

func sinkOptions(cfg config.Config) db.Options {
	return db.Options{
		Backend:    cfg.Persistence.Backend,
		DSN:        cfg.Persistence.DSN,
		BadgerPath: cfg.Persistence.BadgerPath,
		S3Bucket:   cfg.Persistence.S3Bucket,
		S3Key:      cfg.Persistence.S3Key,
	}
}
