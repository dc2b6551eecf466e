package snapshots

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/config"
)

// Store persists triggering frames and returns a URL to attach to the
// alert event. Upload failures are non-fatal to the alert pipeline.
type Store interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MinioStore keeps snapshots in a MinIO bucket, created on first use.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	useSSL  bool
	logger  zerolog.Logger
}

func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return nil, fmt.Errorf("MinIO credentials not configured")
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := client.BucketExists(ctx, cfg.MinioBucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("failed to create or verify bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	var base *url.URL
	if cfg.MinioPublicURL != "" {
		base, err = url.Parse(cfg.MinioPublicURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MINIO_PUBLIC_URL: %w", err)
		}
	}

	log.Info().
		Str("endpoint", cfg.MinioEndpoint).
		Str("bucket", cfg.MinioBucket).
		Msg("MinIO snapshot store connected")

	return &MinioStore{
		client:  client,
		bucket:  cfg.MinioBucket,
		baseURL: base,
		useSSL:  cfg.MinioUseSSL,
		logger:  log.With().Str("service", "snapshots").Logger(),
	}, nil
}

func (s *MinioStore) SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Snapshot uploaded")

	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + key
		return u.String(), nil
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}
