package db

import (
	"context"
	"fmt"
	"log/slog"

	"calendar-sync/internal/repositories"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendS3       = "s3"
)

type Options struct {
	Backend    string
	DSN        string
	BadgerPath string
	S3Bucket   string
	S3Key      string
}

// Open returns the sink selected by opts.Backend.
func Open(ctx context.Context, opts Options, log *slog.Logger) (repositories.Sink, error) {
	switch opts.Backend {
	case "", BackendMemory:
		log.Warn("using in-memory persistence, state is lost on exit")
		return NewMemorySink(), nil
	case BackendPostgres:
		return Connect(opts.DSN, log)
	case BackendBadger:
		return OpenBadger(opts.BadgerPath, log)
	case BackendS3:
		return OpenS3(ctx, opts.S3Bucket, opts.S3Key, log)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", opts.Backend)
	}
}

var (
	_ repositories.Sink = (*MemorySink)(nil)
	_ repositories.Sink = (*PostgresSink)(nil)
	_ repositories.Sink = (*BadgerSink)(nil)
	_ repositories.Sink = (*S3Sink)(nil)
)
