// Package s3storage stores client documents, mailbox documents, and previews
// in MinIO or any S3-compatible service.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/clientdesk/internal/config"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

// Storage wraps MinIO/S3 interactions.
type Storage struct {
	client  *minio.Client
	buckets []string
	region  string
}

var _ upload.ObjectStore = (*Storage)(nil)

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: cfg.S3.UseSSL,
		Region: cfg.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:  client,
		buckets: []string{cfg.S3.DocumentsBucket, cfg.S3.MailboxBucket, cfg.S3.PreviewsBucket},
		region:  cfg.S3.Region,
	}, nil
}

// EnsureBuckets makes sure every configured bucket exists before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range s.buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// PutObject uploads obj below folder and returns its key. progress receives
// the byte counts minio reports as parts go out.
func (s *Storage) PutObject(ctx context.Context, bucket, folder string, obj upload.Object, progress func(sent int64)) (string, error) {
	key := upload.ObjectKey(folder, obj.Name)
	if err := s.put(ctx, bucket, key, obj, progress); err != nil {
		return "", err
	}
	return key, nil
}

// WriteObject uploads obj under exactly key, overwriting an existing object.
func (s *Storage) WriteObject(ctx context.Context, bucket, key string, obj upload.Object) error {
	return s.put(ctx, bucket, key, obj, nil)
}

func (s *Storage) put(ctx context.Context, bucket, key string, obj upload.Object, progress func(sent int64)) error {
	size := obj.Size
	if size <= 0 {
		size = -1
	}
	opts := minio.PutObjectOptions{ContentType: obj.ContentType}
	if progress != nil {
		opts.Progress = &progressReader{report: progress}
	}
	if _, err := s.client.PutObject(ctx, bucket, key, obj.Body, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetObject streams a stored object.
func (s *Storage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s/%s: %w", bucket, key, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// DeleteObject removes a stored object.
func (s *Storage) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for a stored object.
func (s *Storage) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("presign ttl must be positive")
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// progressReader adapts minio's progress hook, which reads len(p) bytes from
// it for every chunk sent, into a cumulative byte count.
type progressReader struct {
	sent   atomic.Int64
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n := len(b)
	p.report(p.sent.Add(int64(n)))
	return n, nil
}
