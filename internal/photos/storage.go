// Package photos wraps the object store holding report images. Image keys
// are {reportID}/{imageName}, so the key prefix ties an upload back to its
// report.
package photos

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/sirupsen/logrus"
)

// Config holds connection details for the photo bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Storage provides presigned access, deletion, and upload notifications for
// report photos.
type Storage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger *logrus.Logger
}

// NewStorage connects to the object store.
func NewStorage(cfg Config, logger *logrus.Logger) (*Storage, error) {
	if cfg.URLExpiry == 0 {
		cfg.URLExpiry = time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"bucket":   cfg.Bucket,
	}).Info("connected to photo storage")

	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		expiry: cfg.URLExpiry,
		logger: logger,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string { return s.bucket }

// ObjectKeys derives the storage keys for a report's images.
func (s *Storage) ObjectKeys(reportID string, imageNames []string) []string {
	keys := make([]string, 0, len(imageNames))
	for _, name := range imageNames {
		keys = append(keys, fmt.Sprintf("%s/%s", reportID, name))
	}
	return keys
}

// PresignedGet returns a time-limited download URL for one image.
func (s *Storage) PresignedGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignedPut returns a time-limited upload URL for one image.
func (s *Storage) PresignedPut(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return u.String(), nil
}

// RemoveImages deletes the given objects. Per-object failures are collected
// and returned as one error; callers treat this as best-effort cleanup.
func (s *Storage) RemoveImages(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var failed int
	for rmErr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		s.logger.WithError(rmErr.Err).WithField("key", rmErr.ObjectName).
			Warn("failed to delete photo")
	}
	if failed > 0 {
		return fmt.Errorf("failed to delete %d of %d photos", failed, len(keys))
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"count":  len(keys),
	}).Info("photos deleted")
	return nil
}

// ObjectCreated describes one uploaded image.
type ObjectCreated struct {
	Bucket string
	Key    string
}

// ListenCreated streams object-created notifications for the bucket until
// the context is cancelled. Keys arrive URL-encoded from the notification
// API and are decoded before delivery.
func (s *Storage) ListenCreated(ctx context.Context) <-chan ObjectCreated {
	out := make(chan ObjectCreated)

	events := s.client.ListenBucketNotification(ctx, s.bucket, "", "", []string{
		string(notification.ObjectCreatedAll),
	})

	go func() {
		defer close(out)
		for info := range events {
			if info.Err != nil {
				s.logger.WithError(info.Err).Error("bucket notification error")
				continue
			}
			for _, record := range info.Records {
				key, err := url.QueryUnescape(record.S3.Object.Key)
				if err != nil {
					s.logger.WithError(err).WithField("raw_key", record.S3.Object.Key).
						Warn("failed to decode object key")
					continue
				}
				select {
				case out <- ObjectCreated{Bucket: record.S3.Bucket.Name, Key: key}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
