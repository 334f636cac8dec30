// Package upload stores chat attachments in an S3-compatible bucket
// (R2, MinIO, plain S3) and hands back public URLs for message parts.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/raphaelgruber/parley/internal/config"
	"github.com/raphaelgruber/parley/internal/models"
)

// MaxFileSize is the per-file ceiling. Anything larger is rejected
// before any network traffic.
const MaxFileSize = 10 << 20

// Validation errors.
var (
	ErrTooLarge        = errors.New("file exceeds the 10 MB limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotConfigured   = errors.New("object storage is not configured")
)

// File is one attachment handed in by a surface, content already in
// memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader pushes attachment files to a bucket.
type Uploader interface {
	Upload(ctx context.Context, files []File) ([]models.Upload, error)
}

// S3Uploader talks to an S3-compatible endpoint.
type S3Uploader struct {
	client    *s3.Client
	bucket    string
	publicURL string
	logger    *slog.Logger
}

// NewS3Uploader builds an uploader from config. Static credentials plus
// an optional custom endpoint cover R2, MinIO, and plain S3. Without a
// bucket and access key the uploader is considered unconfigured.
func NewS3Uploader(ctx context.Context, cfg config.Config, logger *slog.Logger) (*S3Uploader, error) {
	if cfg.S3Bucket == "" || cfg.S3AccessKey == "" {
		return nil, ErrNotConfigured
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client:    client,
		bucket:    cfg.S3Bucket,
		publicURL: strings.TrimSuffix(cfg.S3PublicURL, "/"),
		logger:    logger,
	}, nil
}

// Upload validates and stores all files. Validation runs up front for
// the whole batch; any invalid file fails the batch before a single
// byte is sent. A failure mid-batch returns an error and no uploads.
func (u *S3Uploader) Upload(ctx context.Context, files []File) ([]models.Upload, error) {
	for _, f := range files {
		if err := Validate(f); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}

	uploads := make([]models.Upload, 0, len(files))
	for _, f := range files {
		key := objectKey(f.Name)
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(f.Data),
			ContentType: aws.String(f.ContentType),
		})
		if err != nil {
			u.logger.Error("upload failed", "key", key, "error", err)
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		u.logger.Debug("uploaded attachment", "key", key, "size", len(f.Data))

		uploads = append(uploads, models.Upload{
			Name:        f.Name,
			ContentType: f.ContentType,
			URL:         u.publicURL + "/" + key,
			Key:         key,
			Size:        int64(len(f.Data)),
		})
	}
	return uploads, nil
}

// Validate checks a file against the size and type policy.
func Validate(f File) error {
	if len(f.Data) > MaxFileSize {
		return ErrTooLarge
	}
	if !allowedType(f.ContentType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, f.ContentType)
	}
	return nil
}

func allowedType(contentType string) bool {
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	switch contentType {
	case "application/pdf", "text/plain":
		return true
	}
	return false
}

// objectKey builds a collision-free key that keeps the original file
// name readable: uploads/<unix-ms>-<suffix>-<name>.
func objectKey(name string) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("uploads/%d-%s-%s", time.Now().UnixMilli(), suffix, sanitizeName(name))
}

// sanitizeName keeps keys URL-safe without losing the extension.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
