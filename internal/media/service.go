// Package media stores user avatars and board cover images in S3-compatible
// object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"flowboard/api/internal/util"
)

// Service wraps a MinIO client for a single bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// IsConfigured reports whether object storage settings are present.
func (c Config) IsConfigured() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// NewService connects to object storage and ensures the bucket exists.
func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// UploadAvatar stores an avatar image and returns its object key.
func (s *Service) UploadAvatar(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.upload(ctx, "avatars/"+userID, filename, contentType, body, size)
}

// UploadCover stores a board cover image and returns its object key.
func (s *Service) UploadCover(ctx context.Context, boardID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.upload(ctx, "covers/"+boardID, filename, contentType, body, size)
}

func (s *Service) upload(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}

	objectName := prefix + "/" + util.NewID("img") + ext
	_, err := s.client.PutObject(ctx, s.bucket, objectName, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return objectName, nil
}

// PresignedURL returns a time-limited download URL for an object key.
func (s *Service) PresignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Delete removes an object.
func (s *Service) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
