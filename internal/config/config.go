// Package config provides configuration loading for the faultline service.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the faultline service
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	NATS          NATSConfig          `mapstructure:"nats"`
	OpenSearch    OpenSearchConfig    `mapstructure:"opensearch"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Public        PublicConfig        `mapstructure:"public"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the event store.
type DatabaseConfig struct {
	// Type is "postgres" or "memory".
	Type          string         `mapstructure:"type"`
	RunMigrations bool           `mapstructure:"run_migrations"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ConnString returns a postgres:// URL usable by both pgx and golang-migrate.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// RedisConfig holds Redis configuration for rate limiting
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	Subject       string        `mapstructure:"subject"`
	PerProject    bool          `mapstructure:"per_project"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// OpenSearchConfig holds event index configuration
type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Enabled       bool   `mapstructure:"enabled"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix   string `mapstructure:"index_prefix"`
}

// NotificationsConfig controls webhook fan-out.
type NotificationsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// FanoutPolicy is "isolate" (every channel attempted) or "abort" (stop at first failure).
	FanoutPolicy   string            `mapstructure:"fanout_policy"`
	MaxConcurrency int               `mapstructure:"max_concurrency"`
	Method         string            `mapstructure:"method"`
	Headers        map[string]string `mapstructure:"headers"`
	UserAgent      string            `mapstructure:"user_agent"`
	IssuesURL      string            `mapstructure:"issues_url"`
	// ChannelsFile seeds the in-memory channel registry.
	ChannelsFile string `mapstructure:"channels_file"`
}

// PublicConfig is the externally reachable address used to build SDK DSNs.
type PublicConfig struct {
	Protocol string `mapstructure:"protocol"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
}

// IngestionConfig holds request limits for the envelope endpoint.
type IngestionConfig struct {
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	MaxDecompressedBytes int64         `mapstructure:"max_decompressed_bytes"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests    int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "faultline")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "faultline")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 1)
	v.SetDefault("database.postgres.max_conn_lifetime", "1h")
	v.SetDefault("database.postgres.max_conn_idle_time", "30m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject", "faultline.events.ingested")
	v.SetDefault("nats.per_project", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index_prefix", "faultline-events")

	v.SetDefault("notifications.timeout", "5s")
	v.SetDefault("notifications.fanout_policy", "isolate")
	v.SetDefault("notifications.max_concurrency", 1)
	v.SetDefault("notifications.method", "POST")
	v.SetDefault("notifications.headers", map[string]string{"Content-Type": "application/json"})
	v.SetDefault("notifications.user_agent", "Faultline/1.0")
	v.SetDefault("notifications.issues_url", "")
	v.SetDefault("notifications.channels_file", "")

	v.SetDefault("public.protocol", "http")
	v.SetDefault("public.host", "localhost")
	v.SetDefault("public.port", 8000)

	v.SetDefault("ingestion.max_body_bytes", 20<<20)
	v.SetDefault("ingestion.max_decompressed_bytes", 20<<20)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 1000)
	v.SetDefault("ingestion.rate_limit_window", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/faultline")
	}

	// Environment variables override (FAULTLINE_SERVER_PORT, etc.)
	v.SetEnvPrefix("FAULTLINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config - ignore file not found for defaults
	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that cannot be fixed up with a default.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database.type %q: must be postgres or memory", c.Database.Type)
	}

	switch strings.ToLower(c.Notifications.FanoutPolicy) {
	case "isolate", "abort":
	default:
		return fmt.Errorf("invalid notifications.fanout_policy %q: must be isolate or abort", c.Notifications.FanoutPolicy)
	}

	if c.Notifications.Timeout <= 0 {
		return fmt.Errorf("notifications.timeout must be positive")
	}
	if c.Ingestion.RateLimitEnabled && (c.Ingestion.RateLimitRequests <= 0 || c.Ingestion.RateLimitWindow <= 0) {
		return fmt.Errorf("ingestion rate limit requires positive rate_limit_requests and rate_limit_window")
	}
	return nil
}
