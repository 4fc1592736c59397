// Package storage keeps uploaded media in an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

var ErrNotConfigured = errors.New("object storage not configured")

// ObjectStore is the subset of bucket operations media handling needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Remove(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key, downloadName string) (string, error)
}

type MinIOStore struct {
	client  *minio.Client
	bucket  string
	expires time.Duration
}

var (
	once  sync.Once
	store ObjectStore
)

// GetStore returns the configured store, or a store answering ErrNotConfigured when no endpoint
// is set.
func GetStore() ObjectStore {
	once.Do(func() {
		cfg := config.GetConfig().MinIO
		if cfg.Endpoint == "" {
			logutils.Log.Warn("minio endpoint not set, media upload disabled")
			store = disabledStore{}
			return
		}
		s, err := NewMinIOStore(context.Background(), cfg.Endpoint, cfg.AccessKey, cfg.SecretKey,
			cfg.Bucket, cfg.UseSSL, time.Duration(cfg.PresignedMinutes)*time.Minute)
		if err != nil {
			logutils.Log.Errorf("init minio: %v", err)
			store = disabledStore{}
			return
		}
		store = s
	})
	return store
}

func NewMinIOStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string,
	useSSL bool, expires time.Duration) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		logutils.Log.Infof("created bucket %s", bucket)
	}
	return &MinIOStore{client: client, bucket: bucket, expires: expires}, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Copy duplicates an object server side. Callers remove the source afterwards to complete a move.
func (s *MinIOStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) PresignedURL(ctx context.Context, key, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expires, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

type disabledStore struct{}

func (disabledStore) Put(context.Context, string, io.Reader, int64, string) error {
	return ErrNotConfigured
}
func (disabledStore) Copy(context.Context, string, string) error { return ErrNotConfigured }
func (disabledStore) Remove(context.Context, string) error       { return ErrNotConfigured }
func (disabledStore) PresignedURL(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
