package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"calendar-sync/internal/models"
)

// ObjectAPI is the subset of the S3 client the sink uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink keeps the whole snapshot as a single JSON object.
type S3Sink struct {
	client ObjectAPI
	bucket string
	key    string
	log    *slog.Logger
}

// OpenS3 builds a client from the default AWS credential chain.
func OpenS3(ctx context.Context, bucket, key string, log *slog.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Sink(s3.NewFromConfig(cfg), bucket, key, log), nil
}

// NewS3Sink wraps an existing client.
func NewS3Sink(client ObjectAPI, bucket, key string, log *slog.Logger) *S3Sink {
	if key == "" {
		key = "calendar-sync/snapshot.json"
	}
	return &S3Sink{client: client, bucket: bucket, key: key, log: log}
}

func (s *S3Sink) Load(ctx context.Context) (models.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			s.log.Info("no snapshot object yet, starting empty", "bucket", s.bucket, "key", s.key)
			return models.Snapshot{}, nil
		}
		return models.Snapshot{}, fmt.Errorf("s3 get snapshot: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("s3 read snapshot: %w", err)
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *S3Sink) Save(ctx context.Context, snapshot models.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put snapshot: %w", err)
	}
	return nil
}

func (s *S3Sink) Close() error { return nil }
