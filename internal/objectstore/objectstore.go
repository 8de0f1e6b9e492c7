// Package objectstore uploads violation frames to an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/logging"
)

// Uploader persists violation images and returns a public URL plus the
// object key for later deletion.
type Uploader interface {
	UploadViolationImage(ctx context.Context, image []byte, examPeriodID, submissionID, userID int64, violationType string, detectedAt time.Time) (url, key string, err error)
}

// Config holds the S3 connection settings. Endpoint may point at any
// S3-compatible service (AWS, Cloudflare R2, minio).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	BasePath  string
	PublicURL string
	UseSSL    bool
}

// MinioStore is an Uploader backed by an S3-compatible bucket.
type MinioStore struct {
	client    *minio.Client
	endpoint  string
	bucket    string
	basePath  string
	publicURL string
	useSSL    bool
	logger    *zap.Logger
}

// NewMinioStore builds the S3 client for the configured bucket.
func NewMinioStore(cfg Config, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, logging.NewOperationError("objectstore.init", "", err)
	}
	return &MinioStore{
		client:    client,
		endpoint:  cfg.Endpoint,
		bucket:    cfg.Bucket,
		basePath:  strings.Trim(cfg.BasePath, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		useSSL:    cfg.UseSSL,
		logger:    logger.Named("objectstore"),
	}, nil
}

// UploadViolationImage stores one JPEG frame under the hierarchical
// exam/submission/user key layout and returns its URL and key.
func (s *MinioStore) UploadViolationImage(ctx context.Context, image []byte, examPeriodID, submissionID, userID int64, violationType string, detectedAt time.Time) (string, string, error) {
	key := objectKey(s.basePath, examPeriodID, submissionID, userID, violationType, detectedAt)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(image), int64(len(image)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		wrapped := logging.NewOperationError("objectstore.upload", key, err)
		s.logger.Error("violation image upload failed", zap.Error(wrapped))
		return "", "", wrapped
	}

	s.logger.Info("uploaded violation image", zap.String("key", key))
	return s.objectURL(key), key, nil
}

// DeleteViolationImage removes a previously uploaded frame.
func (s *MinioStore) DeleteViolationImage(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return logging.NewOperationError("objectstore.delete", key, err)
	}
	s.logger.Info("deleted violation image", zap.String("key", key))
	return nil
}

func (s *MinioStore) objectURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}

// objectKey builds
// {basePath}/exam_{examPeriodID}/submission_{submissionID}/user_{userID}/{violationType}_{timestamp}.jpg
// with the timestamp carrying microsecond precision so frames from the same
// second never collide.
func objectKey(basePath string, examPeriodID, submissionID, userID int64, violationType string, detectedAt time.Time) string {
	timestamp := detectedAt.Format("20060102_150405") + fmt.Sprintf("_%06d", detectedAt.Nanosecond()/1000)
	return fmt.Sprintf("%s/exam_%d/submission_%d/user_%d/%s_%s.jpg",
		basePath, examPeriodID, submissionID, userID, slug(violationType), timestamp)
}

// slug makes a violation type safe for use inside an object key.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
