package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type BlobProviderBootstrapErrorCode string

const (
	BlobProviderBootstrapErrorInvalidBackend BlobProviderBootstrapErrorCode = "invalid_backend"
	BlobProviderBootstrapErrorMissingBucket  BlobProviderBootstrapErrorCode = "missing_bucket"
	BlobProviderBootstrapErrorConnectFailed  BlobProviderBootstrapErrorCode = "connect_failed"
)

type BlobProviderBootstrapError struct {
	Code    BlobProviderBootstrapErrorCode
	Backend string
	Cause   error
}

func (e *BlobProviderBootstrapError) Error() string {
	if e == nil {
		return "blob store bootstrap failed"
	}
	return fmt.Sprintf("blob store bootstrap failed (code=%s backend=%q): %v", e.Code, e.Backend, e.Cause)
}

func (e *BlobProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Indirection for tests.
var (
	newGCSStore = func(ctx context.Context, log *logger.Logger, cfg blobstore.GCSConfig) (blobstore.Store, error) {
		return blobstore.NewGCSStore(ctx, log, cfg)
	}
	newMinioStore = func(ctx context.Context, log *logger.Logger, cfg blobstore.MinioConfig) (blobstore.Store, error) {
		return blobstore.NewMinioStore(ctx, log, cfg)
	}
)

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg Config) (blobstore.Store, error) {
	log.Info("Selecting blob store", "backend", cfg.BlobBackend)
	var (
		store blobstore.Store
		err   error
	)
	switch cfg.BlobBackend {
	case BlobBackendMemory:
		return blobstore.NewMemoryStore(), nil
	case BlobBackendLocal, "":
		store, err = blobstore.NewLocalStore(log, cfg.LocalBlobDir, cfg.PublicBaseURL)
	case BlobBackendGCS:
		if cfg.GCS.Bucket == "" {
			return nil, bootstrapError(log, cfg.BlobBackend, BlobProviderBootstrapErrorMissingBucket, errors.New("GCS_BUCKET is required"))
		}
		store, err = newGCSStore(ctx, log, cfg.GCS)
	case BlobBackendMinio:
		if cfg.Minio.Bucket == "" || cfg.Minio.Endpoint == "" {
			return nil, bootstrapError(log, cfg.BlobBackend, BlobProviderBootstrapErrorMissingBucket, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required"))
		}
		store, err = newMinioStore(ctx, log, cfg.Minio)
	default:
		return nil, bootstrapError(log, cfg.BlobBackend, BlobProviderBootstrapErrorInvalidBackend, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend))
	}
	if err != nil {
		return nil, bootstrapError(log, cfg.BlobBackend, BlobProviderBootstrapErrorConnectFailed, err)
	}
	return store, nil
}

func bootstrapError(log *logger.Logger, backend string, code BlobProviderBootstrapErrorCode, cause error) error {
	err := &BlobProviderBootstrapError{Code: code, Backend: backend, Cause: cause}
	log.Error("Blob store bootstrap failed", "backend", backend, "error_code", code, "error", cause)
	return err
}
