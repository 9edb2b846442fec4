// Package storage keeps proof media in object storage. Objects are written
// once and never read back by the engine; the returned URI is what
// submissions store as a proof reference.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/pkg/circuitbreaker"
	"github.com/superheroes-club/luz-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the S3 proof store.
type Config struct {
	Region string
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// AccessKeyID and SecretAccessKey are optional static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint points at an S3-compatible service (MinIO, Spaces).
	Endpoint string

	// UsePathStyle is required by most S3-compatible services.
	UsePathStyle bool
}

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("storage: bucket is required")

// putter is the part of the S3 client the store uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// S3 STORE
// ══════════════════════════════════════════════════════════════════════════════

// S3Store uploads proofs to a bucket.
type S3Store struct {
	client  putter
	bucket  string
	prefix  string
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ command.ProofStore = (*S3Store)(nil)

// NewS3Store loads AWS configuration and creates the store.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Store(client putter, bucket, prefix string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3_store", "bucket", bucket)
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		retrier: retry.StorageRetrier(),
		breaker: circuitbreaker.StorageBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
		logger: logger,
	}
}

// Put implements command.ProofStore. It returns an s3:// URI.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + strings.TrimPrefix(key, "/")
	}

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        aws.String(s.bucket),
				Key:           aws.String(key),
				Body:          bytes.NewReader(data),
				ContentType:   aws.String(contentType),
				ContentLength: aws.Int64(int64(len(data))),
			})
			if err != nil {
				return classify(err)
			}
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}

	s.logger.Debug("object stored", "key", key, "bytes", len(data))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// classify stops retrying on client errors such as AccessDenied or
// NoSuchBucket.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return retry.Permanent(err)
	}
	return retry.Retryable(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY STORE
// ══════════════════════════════════════════════════════════════════════════════

// MemoryStore keeps proofs in process. Used in development when no bucket is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ command.ProofStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put implements command.ProofStore. It returns a memory:// URI.
func (m *MemoryStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(data)
	return "memory://" + key, nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}
