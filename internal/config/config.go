// Package config provides centralized configuration management for the dataset service.
// It loads configuration from environment variables with defaults and validates
// all settings on startup so a misconfigured deployment fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Index    IndexConfig
	Storage  StorageConfig
	Import   ImportConfig
	Export   ExportConfig
	Worker   WorkerConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining pipelines (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds metadata database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IndexConfig selects and configures the row index backend.
type IndexConfig struct {
	// Backend is one of: solr, sqlite, memory (default: sqlite)
	Backend string `env:"INDEX_BACKEND" default:"sqlite"`

	// SolrURL is the base URL of the Solr server, e.g. http://localhost:8983/solr
	SolrURL string `env:"SOLR_URL" default:"http://localhost:8983/solr"`

	// DataCore holds one document per dataset row.
	DataCore string `env:"SOLR_DATA_CORE" default:"data"`

	// DatasetsCore holds one search document per dataset.
	DatasetsCore string `env:"SOLR_DATASETS_CORE" default:"datasets"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `env:"SQLITE_INDEX_PATH" default:"data/index.db"`

	// RequestTimeout bounds a single index request (default: 30s)
	RequestTimeout time.Duration `env:"INDEX_REQUEST_TIMEOUT" default:"30s"`
}

// StorageConfig holds blob storage locations.
type StorageConfig struct {
	// MediaRoot is where uploaded files are stored.
	MediaRoot string `env:"MEDIA_ROOT" default:"data/uploads"`

	// ExportRoot is where export files are written.
	ExportRoot string `env:"EXPORT_ROOT" default:"data/exports"`
}

// ImportConfig holds import pipeline and sniffing settings.
type ImportConfig struct {
	// BatchSize is the number of rows sent to the index per add (default: 500)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"500"`

	// SnifferSampleSize is how many bytes are read to detect the dialect (default: 64KB)
	SnifferSampleSize int `env:"SNIFFER_MAX_SAMPLE_SIZE" default:"65536"`

	// TypeInferenceRows is how many data rows are used to guess column types (default: 100)
	TypeInferenceRows int `env:"TYPE_INFERENCE_ROWS" default:"100"`

	// SampleRows is how many rows are kept as sample data (default: 5)
	SampleRows int `env:"SAMPLE_DATA_ROWS" default:"5"`

	// MaxFileSize is the largest accepted upload in bytes (default: 1GB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"1073741824"`

	// DefaultEncoding is assumed when an upload does not declare one (default: utf-8)
	DefaultEncoding string `env:"DEFAULT_ENCODING" default:"utf-8"`
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	// PageSize is the number of documents fetched per index query (default: 500)
	PageSize int `env:"EXPORT_PAGE_SIZE" default:"500"`
}

// WorkerConfig holds background pipeline scheduling settings.
type WorkerConfig struct {
	// MaxConcurrent is the maximum number of pipelines running at once (default: 4)
	MaxConcurrent int `env:"WORKER_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a scheduled task waits for a worker slot (default: 10m)
	MaxWaitTime time.Duration `env:"WORKER_MAX_WAIT_TIME" default:"10m"`

	// Throttle is an optional pause between batches (default: 0s)
	Throttle time.Duration `env:"TASK_THROTTLE" default:"0s"`

	// RecoverOnStart fails tasks and releases dataset locks left behind by a
	// previous process. Disable when several servers share one database.
	RecoverOnStart bool `env:"WORKER_RECOVER_ON_START" default:"true"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the stdout log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File, when set, receives a JSON copy of every log entry.
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
