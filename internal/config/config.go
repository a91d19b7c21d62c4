// Package config provides configuration management for the Bodleian archive server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	AuditMirror AuditMirrorConfig `mapstructure:"audit_mirror"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Capacity    CapacityConfig    `mapstructure:"capacity"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// DatabaseConfig holds the primary SQLite database settings.
type DatabaseConfig struct {
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AuditMirrorConfig holds settings for the optional PostgreSQL mirror of
// the activity log. When disabled, the log lives only in the primary
// SQLite database.
type AuditMirrorConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig holds Redis connection settings. Redis is used for
// cross-process capacity locks; when disabled, in-memory locks are used.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds document byte-storage backend settings.
type StorageConfig struct {
	Backend string          `mapstructure:"backend"`
	DataDir string          `mapstructure:"data_dir"`
	TempDir string          `mapstructure:"temp_dir"`
	S3      S3StorageConfig `mapstructure:"s3"`
}

// S3StorageConfig holds S3 backend settings.
type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// ExtractionConfig holds settings for the external document extraction
// service. Extraction is advisory; document creation never depends on it.
type ExtractionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds authentication and session settings.
type AuthConfig struct {
	// SessionTTL is how long a session token stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// SessionSweepInterval is how often expired sessions are purged.
	SessionSweepInterval time.Duration `mapstructure:"session_sweep_interval"`

	// BcryptCost is the bcrypt work factor for password hashing.
	BcryptCost int `mapstructure:"bcrypt_cost"`

	// PermissionCacheTTL is how long resolved role permissions are cached.
	PermissionCacheTTL time.Duration `mapstructure:"permission_cache_ttl"`
}

// CapacityConfig holds capacity accounting settings.
type CapacityConfig struct {
	// LockTTL is the expiry on a per-location capacity lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// LockRetries is how many times to retry acquiring a location lock
	// before the operation fails as a conflicting update.
	LockRetries int `mapstructure:"lock_retries"`

	// LockRetryDelay is the pause between lock acquisition attempts.
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`

	// WarnThreshold is the usage ratio above which a location is
	// reported as near capacity.
	WarnThreshold float64 `mapstructure:"warn_threshold"`
}

// AuditConfig holds activity log recording settings.
type AuditConfig struct {
	// RetryAttempts is how many times a failed log append is retried.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// RetryDelay is the pause between append retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// QueueSize is the capacity of the asynchronous retry queue.
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with BODLEIAN_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("BODLEIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/bodleian")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 512*1024*1024) // 512MB

	// Database defaults
	v.SetDefault("database.path", "./data/bodleian.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")
	v.SetDefault("database.max_open_conns", 1)

	// Audit mirror defaults
	v.SetDefault("audit_mirror.enabled", false)
	v.SetDefault("audit_mirror.postgres.host", "localhost")
	v.SetDefault("audit_mirror.postgres.port", 5432)
	v.SetDefault("audit_mirror.postgres.user", "bodleian")
	v.SetDefault("audit_mirror.postgres.password", "")
	v.SetDefault("audit_mirror.postgres.database", "bodleian_audit")
	v.SetDefault("audit_mirror.postgres.ssl_mode", "prefer")
	v.SetDefault("audit_mirror.postgres.max_open_conns", 10)
	v.SetDefault("audit_mirror.postgres.max_idle_conns", 2)
	v.SetDefault("audit_mirror.postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("audit_mirror.postgres.conn_max_idle_time", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults
	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.data_dir", "./data/documents")
	v.SetDefault("storage.temp_dir", "./data/temp")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)

	// Extraction defaults
	v.SetDefault("extraction.enabled", false)
	v.SetDefault("extraction.base_url", "http://localhost:5000")
	v.SetDefault("extraction.timeout", 30*time.Second)

	// Auth defaults
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.session_sweep_interval", 1*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.permission_cache_ttl", 5*time.Minute)

	// Capacity defaults
	v.SetDefault("capacity.lock_ttl", 10*time.Second)
	v.SetDefault("capacity.lock_retries", 5)
	v.SetDefault("capacity.lock_retry_delay", 100*time.Millisecond)
	v.SetDefault("capacity.warn_threshold", 0.9)

	// Audit defaults
	v.SetDefault("audit.retry_attempts", 3)
	v.SetDefault("audit.retry_delay", 1*time.Second)
	v.SetDefault("audit.queue_size", 1024)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.AuditMirror.Enabled {
		if c.AuditMirror.Postgres.Host == "" {
			return fmt.Errorf("audit_mirror.postgres.host is required when the mirror is enabled")
		}
		if c.AuditMirror.Postgres.Database == "" {
			return fmt.Errorf("audit_mirror.postgres.database is required when the mirror is enabled")
		}
	}

	validBackends := map[string]bool{"filesystem": true, "s3": true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("storage.backend must be 'filesystem' or 's3'")
	}
	if c.Storage.Backend == "filesystem" && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required for filesystem backend")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for s3 backend")
	}

	if c.Extraction.Enabled && c.Extraction.BaseURL == "" {
		return fmt.Errorf("extraction.base_url is required when extraction is enabled")
	}

	if c.Capacity.WarnThreshold <= 0 || c.Capacity.WarnThreshold > 1 {
		return fmt.Errorf("capacity.warn_threshold must be in (0, 1]")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
