// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Inbox    InboxConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds export file parsing and import transaction settings.
type ImportConfig struct {
	// TableMarker starts a table (default: %T)
	TableMarker string `env:"XER_TABLE_MARKER" default:"%T"`

	// FieldMarker declares the fields of the open table (default: %F)
	FieldMarker string `env:"XER_FIELD_MARKER" default:"%F"`

	// RecordMarker adds a record to the open table (default: %R)
	RecordMarker string `env:"XER_RECORD_MARKER" default:"%R"`

	// Encoding is the character set of export files (default: latin-1)
	Encoding string `env:"XER_ENCODING" default:"latin-1"`

	// MaxFileSize is the maximum accepted file size in bytes (default: 256MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"268435456"`

	// Timeout bounds one import including retries (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// LockTimeout is how long a transaction waits on a store lock before
	// the attempt is treated as busy and retried (default: 30s)
	LockTimeout time.Duration `env:"IMPORT_LOCK_TIMEOUT" default:"30s"`

	// MaxAttempts is the number of tries when the store is busy (default: 5)
	MaxAttempts int `env:"IMPORT_MAX_ATTEMPTS" default:"5"`

	// RetryBackoff is the base delay between attempts, multiplied by the attempt number (default: 500ms)
	RetryBackoff time.Duration `env:"IMPORT_RETRY_BACKOFF" default:"500ms"`

	// UseCopy writes each table with COPY first, falling back to row inserts (default: true)
	UseCopy bool `env:"IMPORT_USE_COPY" default:"true"`

	// MaxConcurrent is the maximum number of imports running in this process (default: 1)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long to wait for an import slot (default: 5m)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"5m"`
}

// InboxConfig holds settings for the scheduled inbox sweep.
type InboxConfig struct {
	// Dir is the directory swept for new export files (default: inbox)
	Dir string `env:"INBOX_DIR" default:"inbox"`

	// Schedule is a cron expression or descriptor (default: @every 1m)
	Schedule string `env:"INBOX_SCHEDULE" default:"@every 1m"`

	// Extension is the file suffix picked up by the sweep (default: .xer)
	Extension string `env:"INBOX_EXTENSION" default:".xer"`

	// ShutdownTimeout bounds how long watch waits for a running import on exit (default: 1m)
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// SeqURL ships logs to a Seq server as well when set
	SeqURL string `env:"LOG_SEQ_URL"`
}
