package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

// GCSConfig.CredentialsJSON holds either inline service account JSON or a
// path to a key file.
type GCSConfig struct {
	Bucket          string
	CredentialsJSON string
	EmulatorHost    string
	CDNDomain       string
}

type GCSStore struct {
	log       *logger.Logger
	client    *storage.Client
	bucket    string
	cdnDomain string
	emulator  string
}

func NewGCSStore(ctx context.Context, log *logger.Logger, cfg GCSConfig) (*GCSStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing GCS bucket name")
	}
	client, err := storage.NewClient(ctx, gcsClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	storeLog := log.With("store", "GCSStore")
	storeLog.Info("Object storage initialized", "bucket", bucket, "emulator_host", cfg.EmulatorHost)
	return &GCSStore{
		log:       storeLog,
		client:    client,
		bucket:    bucket,
		cdnDomain: strings.TrimSpace(cfg.CDNDomain),
		emulator:  strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
	}, nil
}

func gcsClientOptions(cfg GCSConfig) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	creds := strings.TrimSpace(cfg.CredentialsJSON)
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(k).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(k)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q: %w", k, err)
	}
	return rc, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Bucket(s.bucket).Object(k).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", k, s.bucket, err)
	}
	return nil
}

func (s *GCSStore) URL(key string) string {
	k, err := CleanKey(key)
	if err != nil {
		return ""
	}
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, k)
	}
	if s.emulator != "" {
		return fmt.Sprintf("%s/%s/%s", s.emulator, s.bucket, k)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, k)
}

func (s *GCSStore) Close() error { return s.client.Close() }
