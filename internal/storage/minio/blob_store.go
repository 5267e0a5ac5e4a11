// Package minio provides a media BlobStore for S3-compatible object storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config addresses the bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, contentType string) error
}

type clientPutter struct {
	client *minio.Client
}

func (c clientPutter) PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, bucket, object, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("minio put: %w", err)
	}
	return nil
}

// BlobStore writes vessel media to a bucket and returns s3:// URIs.
type BlobStore struct {
	putter objectPutter
	bucket string
}

// New connects a minio client and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &BlobStore{putter: clientPutter{client: client}, bucket: cfg.Bucket}, nil
}

// PutObject uploads data and returns an s3:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.putter.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, path), nil
}
