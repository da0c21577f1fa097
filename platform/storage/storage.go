// Package storage provides object storage on MinIO / S3-compatible backends.
// This is part of the platform layer and contains no business logic.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"glasswallet_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignedURLTTL is the default expiration for presigned download URLs.
const PresignedURLTTL = 15 * time.Minute

// ObjectStore is the subset of object storage the domain uses.
type ObjectStore interface {
	PutJSON(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, bucket, key string) (string, error)
}

// MinIOStore implements ObjectStore using MinIO.
type MinIOStore struct {
	client *minio.Client
}

// NewMinIOStore creates a MinIO client from configuration.
func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{client: client}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucketExists(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutJSON uploads a JSON document.
func (s *MinIOStore) PutJSON(ctx context.Context, bucket, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Get downloads an object. The caller closes the reader.
func (s *MinIOStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return obj, nil
}

// PresignGet returns a time-limited download URL.
func (s *MinIOStore) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, PresignedURLTTL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return u.String(), nil
}

var _ ObjectStore = (*MinIOStore)(nil)
