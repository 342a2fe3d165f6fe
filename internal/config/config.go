package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "letta-mcp-server"
	ServiceVersion = "2.0.1"

	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the application configuration
type Config struct {
	Letta     LettaConfig     `json:"letta" yaml:"letta"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// LettaConfig describes the backend API and the HTTP client pool used to reach it
type LettaConfig struct {
	BaseURL               string  `json:"base_url" yaml:"base_url"`
	Password              string  `json:"-" yaml:"password"` // Never serialize credentials
	TimeoutSeconds        int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	ConnectTimeoutSeconds int     `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	IdleTimeoutSeconds    int     `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	MaxIdleConnsPerHost   int     `json:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	RetryAttempts         int     `json:"retry_attempts" yaml:"retry_attempts"`
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests_per_second"`
	CircuitBreaker        bool    `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Transport     string `json:"transport" yaml:"transport"`
	Port          int    `json:"port" yaml:"port"`
	Host          string `json:"host" yaml:"host"`
	ReadTimeout   int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout  int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	AuthTokenHash string `json:"-" yaml:"auth_token_hash"` // bcrypt hash of the bearer token
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// RateLimitConfig limits tool calls per client at the MCP boundary
type RateLimitConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int    `json:"burst" yaml:"burst"`
	RedisURL          string `json:"-" yaml:"redis_url"`
}

// AuditConfig controls the persisted dispatch trail
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"-" yaml:"dsn"`
}

// TelemetryConfig controls tracing export
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Exporter     string `json:"exporter" yaml:"exporter"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Letta: LettaConfig{
			BaseURL:               "http://localhost:8283",
			TimeoutSeconds:        30,
			ConnectTimeoutSeconds: 10,
			IdleTimeoutSeconds:    90,
			MaxIdleConnsPerHost:   10,
			RetryAttempts:         3,
			RequestsPerSecond:     0,
			CircuitBreaker:        true,
		},
		Server: ServerConfig{
			Transport:    TransportStdio,
			Port:         3001,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
			Burst:             20,
		},
		Audit: AuditConfig{
			Enabled: false,
			Driver:  "sqlite3",
			DSN:     "file:letta-mcp-audit.db?_busy_timeout=5000",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
	}
}

// RequestTimeout is the per-call backend timeout
func (c LettaConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConnectTimeout is the dial timeout for new backend connections
func (c LettaConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// IdleTimeout is how long pooled backend connections stay open
func (c LettaConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// Addr returns the listen address for the HTTP transport
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig loads configuration from .env, an optional YAML file and the
// environment, in that order of increasing precedence
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Don't fail if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path := os.Getenv("LETTA_MCP_CONFIG"); path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile overlays a YAML document onto config
func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator-controlled env
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadLettaConfig(config)
	loadServerConfig(config)
	loadLoggingConfig(config)
	loadRateLimitConfig(config)
	loadAuditConfig(config)
	loadTelemetryConfig(config)
}

// loadLettaConfig loads backend configuration from environment
func loadLettaConfig(config *Config) {
	if baseURL := os.Getenv("LETTA_BASE_URL"); baseURL != "" {
		config.Letta.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if password := os.Getenv("LETTA_PASSWORD"); password != "" {
		config.Letta.Password = password
	}
	setInt(&config.Letta.TimeoutSeconds, "LETTA_TIMEOUT_SECONDS")
	setInt(&config.Letta.ConnectTimeoutSeconds, "LETTA_CONNECT_TIMEOUT_SECONDS")
	setInt(&config.Letta.IdleTimeoutSeconds, "LETTA_IDLE_TIMEOUT_SECONDS")
	setInt(&config.Letta.MaxIdleConnsPerHost, "LETTA_MAX_IDLE_CONNS")
	setInt(&config.Letta.RetryAttempts, "LETTA_RETRY_ATTEMPTS")
	setBool(&config.Letta.CircuitBreaker, "LETTA_CIRCUIT_BREAKER")
	if rps := os.Getenv("LETTA_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			config.Letta.RequestsPerSecond = v
		}
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(config *Config) {
	if transport := os.Getenv("TRANSPORT"); transport != "" {
		config.Server.Transport = strings.ToLower(transport)
	}
	setInt(&config.Server.Port, "PORT")
	if host := os.Getenv("HOST"); host != "" {
		config.Server.Host = host
	}
	setInt(&config.Server.ReadTimeout, "SERVER_READ_TIMEOUT_SECONDS")
	setInt(&config.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT_SECONDS")
	if hash := os.Getenv("MCP_AUTH_TOKEN_HASH"); hash != "" {
		config.Server.AuthTokenHash = hash
	}
}

// loadLoggingConfig loads logging configuration from environment
func loadLoggingConfig(config *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

func loadRateLimitConfig(config *Config) {
	setBool(&config.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&config.RateLimit.RequestsPerMinute, "RATE_LIMIT_RPM")
	setInt(&config.RateLimit.Burst, "RATE_LIMIT_BURST")
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RateLimit.RedisURL = redisURL
	}
}

func loadAuditConfig(config *Config) {
	setBool(&config.Audit.Enabled, "AUDIT_ENABLED")
	if driver := os.Getenv("AUDIT_DRIVER"); driver != "" {
		config.Audit.Driver = driver
	}
	if dsn := os.Getenv("AUDIT_DSN"); dsn != "" {
		config.Audit.DSN = dsn
	}
}

func loadTelemetryConfig(config *Config) {
	setBool(&config.Telemetry.Enabled, "OTEL_ENABLED")
	if exporter := os.Getenv("OTEL_EXPORTER"); exporter != "" {
		config.Telemetry.Exporter = exporter
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		config.Telemetry.OTLPEndpoint = endpoint
	}
}

func setInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func setBool(dst *bool, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			*dst = v
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate backend config
	if c.Letta.BaseURL == "" {
		return fmt.Errorf("letta base URL cannot be empty")
	}
	if u, err := url.Parse(c.Letta.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid letta base URL: %s", c.Letta.BaseURL)
	}
	if c.Letta.TimeoutSeconds <= 0 {
		return fmt.Errorf("letta timeout must be positive")
	}
	if c.Letta.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("letta connect timeout must be positive")
	}
	if c.Letta.MaxIdleConnsPerHost <= 0 {
		return fmt.Errorf("letta max idle connections must be positive")
	}
	if c.Letta.RetryAttempts < 1 {
		return fmt.Errorf("letta retry attempts must be at least 1")
	}

	// Validate server config
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid transport: %s (use stdio or http)", c.Server.Transport)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}

	if c.Audit.Enabled {
		switch c.Audit.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("invalid audit driver: %s (use sqlite3 or postgres)", c.Audit.Driver)
		}
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit DSN cannot be empty when audit is enabled")
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout", "otlp", "none":
		default:
			return fmt.Errorf("invalid telemetry exporter: %s", c.Telemetry.Exporter)
		}
	}

	return nil
}
