// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Media    MediaConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for streaming)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds catalog import run settings.
type ImportConfig struct {
	// BatchSize is the number of rows per bunch (default: 500)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"500"`

	// Behavior is the run mode: append, replace, delete (default: append)
	Behavior string `env:"IMPORT_BEHAVIOR" default:"append"`

	// ValidationStrategy is skip-errors or stop-on-error (default: skip-errors)
	ValidationStrategy string `env:"IMPORT_VALIDATION_STRATEGY" default:"skip-errors"`

	// AllowedErrorCount is the critical error backlog that stops a
	// stop-on-error run (default: 100)
	AllowedErrorCount int `env:"IMPORT_ALLOWED_ERROR_COUNT" default:"100"`

	// ValueSeparator splits multi-value cells (default: ",")
	ValueSeparator string `env:"IMPORT_VALUE_SEPARATOR" default:","`

	// PriceIsGlobal forces tier prices onto website 0 (default: true)
	PriceIsGlobal bool `env:"IMPORT_PRICE_IS_GLOBAL" default:"true"`

	// URLSuffix is appended to url keys to form the url path (default: .html)
	URLSuffix string `env:"IMPORT_URL_SUFFIX" default:".html"`

	// EntityLimit caps new entities per run, 0 for no limit (default: 0)
	EntityLimit int `env:"IMPORT_ENTITY_LIMIT" default:"0"`

	// MaxConcurrent is the maximum number of parallel runs (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single run (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// MaxFileSize is the maximum allowed upload size in bytes (default: 200MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"209715200"`
}

// MediaConfig holds image upload settings.
type MediaConfig struct {
	// Backend is where resolved images are stored: local or s3 (default: local)
	Backend string `env:"MEDIA_BACKEND" default:"local"`

	// ImportDir is where relative image references are read from
	ImportDir string `env:"MEDIA_IMPORT_DIR" default:"var/import/images"`

	// LocalDir is the destination for the local backend
	LocalDir string `env:"MEDIA_LOCAL_DIR" default:"pub/media/catalog/product"`

	// S3Bucket is the destination bucket for the s3 backend
	S3Bucket string `env:"MEDIA_S3_BUCKET"`

	// S3Prefix is prepended to object keys
	S3Prefix string `env:"MEDIA_S3_PREFIX" default:"catalog/product"`

	// S3Region overrides the SDK default region
	S3Region string `env:"MEDIA_S3_REGION" envAlt:"AWS_REGION"`

	// S3Endpoint points the client at an S3-compatible service
	S3Endpoint string `env:"MEDIA_S3_ENDPOINT"`

	// AllowedHosts lists hosts remote images may come from; empty denies all, "*" allows any
	AllowedHosts []string `env:"MEDIA_ALLOWED_HOSTS"`

	// FetchTimeout bounds remote image downloads (default: 30s)
	FetchTimeout time.Duration `env:"MEDIA_FETCH_TIMEOUT" default:"30s"`
}

// SecurityConfig holds HTTP access settings.
type SecurityConfig struct {
	// TrustedProxies lists proxy CIDRs whose X-Real-IP/X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces the X-API-Key header on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts /metrics on the HTTP server (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
