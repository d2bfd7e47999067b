package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/noticeserve-backend/internal/data/db"
	"github.com/yungbote/noticeserve-backend/internal/observability"
	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/envutil"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const (
	IDSequenceMemory   = "memory"
	IDSequencePostgres = "postgres"
	IDSequenceRedis    = "redis"

	BlobBackendLocal  = "local"
	BlobBackendGCS    = "gcs"
	BlobBackendMinio  = "minio"
	BlobBackendMemory = "memory"
)

type Config struct {
	Port            string
	ServiceName     string
	Environment     string
	Version         string
	ShutdownTimeout time.Duration

	DB db.Config

	IDSequence    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	IDCacheSize   int

	BlobBackend   string
	LocalBlobDir  string
	PublicBaseURL string
	GCS           blobstore.GCSConfig
	Minio         blobstore.MinioConfig

	KeySealSecret  string
	AdminJWTSecret string
	CORSOrigins    []string
	MetricsEnabled bool
	Otel           observability.OtelConfig

	MaxUploadBytes     int64
	AttachmentTimeout  time.Duration
	TransactionTimeout time.Duration
}

// fileDefaults holds CONFIG_FILE values keyed by their env var name.
// Environment variables always win.
type fileDefaults map[string]string

func loadFileDefaults(path string) (fileDefaults, error) {
	out := fileDefaults{}
	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range m {
		switch vv := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(vv))
			for _, p := range vv {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(vv)
		}
	}
	return out, nil
}

func (f fileDefaults) str(name, def string) string {
	if v, ok := f[name]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return envutil.String(name, def)
}

func (f fileDefaults) dur(name string, def time.Duration) time.Duration {
	if v, ok := f[name]; ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			def = d
		}
	}
	return envutil.Duration(name, def)
}

func (f fileDefaults) integer(name string, def int) int {
	if v, ok := f[name]; ok {
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil {
			def = n
		}
	}
	return envutil.Int(name, def)
}

func (f fileDefaults) boolean(name string, def bool) bool {
	if v, ok := f[name]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			def = true
		case "0", "false", "no", "off":
			def = false
		}
	}
	return envutil.Bool(name, def)
}

func (f fileDefaults) list(name string, def []string) []string {
	if v, ok := f[name]; ok && strings.TrimSpace(v) != "" {
		def = splitCSV(v)
	}
	return envutil.List(name, def)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadConfig(log *logger.Logger) (Config, error) {
	f, err := loadFileDefaults(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	if len(f) > 0 {
		log.Info("Loaded config file defaults", "path", os.Getenv("CONFIG_FILE"), "keys", len(f))
	}

	serviceName := f.str("OTEL_SERVICE_NAME", "noticeserve-backend")
	environment := f.str("APP_ENV", "development")
	version := f.str("APP_VERSION", "dev")

	cfg := Config{
		Port:            f.str("PORT", "8080"),
		ServiceName:     serviceName,
		Environment:     environment,
		Version:         version,
		ShutdownTimeout: f.dur("SHUTDOWN_TIMEOUT", 15*time.Second),

		DB: db.Config{
			Driver:           f.str("DB_DRIVER", db.DriverPostgres),
			Host:             f.str("POSTGRES_HOST", "localhost"),
			Port:             f.str("POSTGRES_PORT", "5432"),
			User:             f.str("POSTGRES_USER", "postgres"),
			Password:         f.str("POSTGRES_PASSWORD", ""),
			Name:             f.str("POSTGRES_NAME", "noticeserve"),
			SSLMode:          f.str("POSTGRES_SSLMODE", "disable"),
			SQLitePath:       f.str("SQLITE_PATH", ""),
			StatementTimeout: f.dur("DB_STATEMENT_TIMEOUT", 30*time.Second),
			MaxOpenConns:     f.integer("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:     f.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  f.dur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},

		IDSequence:    strings.ToLower(f.str("ID_SEQUENCE", IDSequenceMemory)),
		RedisAddr:     f.str("REDIS_ADDR", ""),
		RedisPassword: f.str("REDIS_PASSWORD", ""),
		RedisDB:       f.integer("REDIS_DB", 0),
		IDCacheSize:   f.integer("ID_CACHE_SIZE", 10_000),

		BlobBackend:   strings.ToLower(f.str("BLOB_BACKEND", BlobBackendLocal)),
		LocalBlobDir:  f.str("LOCAL_BLOB_DIR", "./data/blobs"),
		PublicBaseURL: f.str("PUBLIC_BLOB_BASE_URL", ""),
		GCS: blobstore.GCSConfig{
			Bucket:          f.str("GCS_BUCKET", ""),
			CredentialsJSON: f.str("GCS_CREDENTIALS_JSON", ""),
			EmulatorHost:    f.str("STORAGE_EMULATOR_HOST", ""),
			CDNDomain:       f.str("GCS_CDN_DOMAIN", ""),
		},
		Minio: blobstore.MinioConfig{
			Endpoint:  f.str("MINIO_ENDPOINT", ""),
			AccessKey: f.str("MINIO_ACCESS_KEY", ""),
			SecretKey: f.str("MINIO_SECRET_KEY", ""),
			Bucket:    f.str("MINIO_BUCKET", "notices"),
			UseSSL:    f.boolean("MINIO_USE_SSL", false),
		},

		KeySealSecret:  f.str("KEY_SEAL_SECRET", ""),
		AdminJWTSecret: f.str("ADMIN_JWT_SECRET", ""),
		CORSOrigins:    f.list("CORS_ORIGINS", nil),
		MetricsEnabled: f.boolean("METRICS_ENABLED", true),
		Otel: observability.OtelConfig{
			Enabled:     f.boolean("OTEL_ENABLED", false),
			ServiceName: serviceName,
			Environment: environment,
			Version:     version,
			Endpoint:    f.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(f.str("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    f.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: float64(f.integer("OTEL_SAMPLE_PERCENT", 100)) / 100,
		},

		MaxUploadBytes:     int64(f.integer("MAX_UPLOAD_MB", 64)) << 20,
		AttachmentTimeout:  f.dur("ATTACHMENT_TIMEOUT", 60*time.Second),
		TransactionTimeout: f.dur("TRANSACTION_TIMEOUT", 30*time.Second),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.IDSequence {
	case IDSequenceMemory, IDSequencePostgres:
	case IDSequenceRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("ID_SEQUENCE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unsupported ID_SEQUENCE %q", c.IDSequence)
	}
	if c.IDSequence == IDSequencePostgres && c.DB.Driver != db.DriverPostgres {
		return fmt.Errorf("ID_SEQUENCE=postgres requires DB_DRIVER=postgres")
	}
	switch c.BlobBackend {
	case BlobBackendLocal, BlobBackendMemory, BlobBackendGCS, BlobBackendMinio:
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend)
	}
	return nil
}
