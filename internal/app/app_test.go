package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/noticeserve-backend/internal/data/repos/testutil"
	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

func testConfig() Config {
	return Config{
		Port:           "0",
		IDSequence:     IDSequenceMemory,
		IDCacheSize:    16,
		BlobBackend:    BlobBackendMemory,
		MetricsEnabled: true,
		KeySealSecret:  "seal",
	}
}

func TestBuildServesBatchUpload(t *testing.T) {
	gdb := testutil.DB(t)
	a, err := Build(context.Background(), testutil.Logger(t), testConfig(), gdb)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	body := `{"serverAddress":"` + testutil.TronAddress(1) + `","recipients":["` + testutil.TronAddress(2) + `"],"encryptionKey":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/api/batch/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "encryptionKey dropped") {
		t.Fatalf("sealer should be configured: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "noticeserve_batches_total") {
		t.Fatalf("expected batch metrics, got %s", rec.Body.String())
	}
}

func TestBuildWithoutSealSecretDropsKeys(t *testing.T) {
	cfg := testConfig()
	cfg.KeySealSecret = ""
	a, err := Build(context.Background(), testutil.Logger(t), cfg, testutil.DB(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()
	if a.Services.Batches == nil || a.Services.Diagnostics == nil {
		t.Fatalf("services not wired")
	}
}

func TestResolveBlobStore(t *testing.T) {
	log := logger.Nop()
	ctx := context.Background()

	cfg := testConfig()
	cfg.BlobBackend = BlobBackendLocal
	cfg.LocalBlobDir = t.TempDir()
	if _, err := resolveBlobStore(ctx, log, cfg); err != nil {
		t.Fatalf("local: %v", err)
	}

	cfg.BlobBackend = BlobBackendGCS
	_, err := resolveBlobStore(ctx, log, cfg)
	var bootErr *BlobProviderBootstrapError
	if !errors.As(err, &bootErr) || bootErr.Code != BlobProviderBootstrapErrorMissingBucket {
		t.Fatalf("expected missing bucket, got %v", err)
	}

	orig := newMinioStore
	t.Cleanup(func() { newMinioStore = orig })
	newMinioStore = func(context.Context, *logger.Logger, blobstore.MinioConfig) (blobstore.Store, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	cfg.BlobBackend = BlobBackendMinio
	cfg.Minio = blobstore.MinioConfig{Endpoint: "localhost:9000", Bucket: "notices"}
	_, err = resolveBlobStore(ctx, log, cfg)
	if !errors.As(err, &bootErr) || bootErr.Code != BlobProviderBootstrapErrorConnectFailed {
		t.Fatalf("expected connect failure, got %v", err)
	}

	cfg.BlobBackend = "ftp"
	_, err = resolveBlobStore(ctx, log, cfg)
	if !errors.As(err, &bootErr) || bootErr.Code != BlobProviderBootstrapErrorInvalidBackend {
		t.Fatalf("expected invalid backend, got %v", err)
	}
}
