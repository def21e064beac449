package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"shorts-pipeline/config"
	"shorts-pipeline/logging"
)

// Archiver copies finished videos to S3-compatible storage
type Archiver struct {
	client *minio.Client
	cfg    config.ArchiveConfig
	logger *zap.Logger
}

// NewArchiver connects with ARCHIVE_ACCESS_KEY / ARCHIVE_SECRET_KEY
func NewArchiver(cfg config.ArchiveConfig, logger *zap.Logger) (*Archiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := os.Getenv("ARCHIVE_ACCESS_KEY")
	secretKey := os.Getenv("ARCHIVE_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ARCHIVE_ACCESS_KEY or ARCHIVE_SECRET_KEY not set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	a := &Archiver{client: client, cfg: cfg, logger: logger.Named("archive")}
	a.logger.Info("archive client ready",
		zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket), zap.String("access_key", logging.MaskSecret(accessKey)))
	return a, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	a.logger.Info("🪣 created bucket", zap.String("bucket", a.cfg.Bucket))
	return nil
}

// Store uploads each non-empty file under <prefix>/<runID>/ and returns the
// key prefix used.
func (a *Archiver) Store(ctx context.Context, runID string, files ...string) (string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		return "", err
	}
	prefix := ObjectPrefix(a.cfg.Prefix, runID)
	for _, f := range files {
		if f == "" {
			continue
		}
		key := path.Join(prefix, filepath.Base(f))
		info, err := a.client.FPutObject(ctx, a.cfg.Bucket, key, f, minio.PutObjectOptions{
			ContentType: contentType(f),
		})
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", filepath.Base(f), err)
		}
		a.logger.Info("📦 archived", zap.String("key", key), zap.Int64("bytes", info.Size))
	}
	return prefix, nil
}

// ObjectPrefix joins the configured prefix and the run ID
func ObjectPrefix(prefix, runID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return runID
	}
	return prefix + "/" + runID
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".srt":
		return "application/x-subrip"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
