// Package exportstore uploads exported diagram artifacts to S3. It is an
// optional sink: the server runs fine without a bucket configured, in
// which case exports are returned inline only.
package exportstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Store persists export artifacts under a key prefix in one bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New builds a Store from the ambient AWS configuration (environment,
// shared credentials, instance role).
func New(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("exportstore: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("exportstore: load aws config: %w", err)
	}

	return &Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "export_store"),
	}, nil
}

// contentTypes maps export formats to their MIME types.
var contentTypes = map[string]string{
	"png": "image/png",
	"svg": "image/svg+xml",
}

// Put uploads one decoded artifact and returns its object key. Keys are
// time-prefixed so a bucket listing reads chronologically.
func (s *Store) Put(ctx context.Context, sessionID, format string, data []byte) (string, error) {
	contentType, ok := contentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("%s%s/%s-%s.%s",
		s.prefix,
		sessionID,
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		format)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"session-id":  sessionID,
			"export-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("exportstore: put %s: %w", key, err)
	}

	s.logger.Info("export artifact uploaded",
		"bucket", s.bucket, "key", key, "bytes", len(data))
	return key, nil
}
