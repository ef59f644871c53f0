package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultLinkTTL is how long presigned export links stay valid.
const DefaultLinkTTL = time.Hour

// BucketConfig locates the S3-compatible bucket exports are written to.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// Bucket stores exports in MinIO or any S3-compatible service.
type Bucket struct {
	client *minio.Client
	name   string
	ttl    time.Duration
}

// NewBucket connects and creates the bucket when missing.
func NewBucket(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Bucket{client: client, name: cfg.Bucket, ttl: ttl}, nil
}

// Upload writes res under key and returns a presigned GET URL.
func (b *Bucket) Upload(ctx context.Context, key string, res *Result) (string, error) {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType:        res.MimeType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", res.Filename),
	})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	u, err := b.client.PresignedGetObject(ctx, b.name, key, b.ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}
	return u.String(), nil
}
