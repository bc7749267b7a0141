// Package config loads commshub configuration from YAML files, an optional
// .env file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for commshub
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Google      GoogleConfig   `yaml:"google"`
	Auth        AuthConfig     `yaml:"auth"`
	Security    SecurityConfig `yaml:"security"`
	Drive       DriveConfig    `yaml:"drive"`
	Report      ReportConfig   `yaml:"report"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is used to build the OAuth redirect URL when google.redirect_url is empty.
	PublicURL string `yaml:"public_url"`
}

// Addr returns host:port for http.ListenAndServe.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects where tables live. Path is the local SQLite file;
// CredentialsDSN, when set, moves the credential table to Postgres.
type DatabaseConfig struct {
	Path           string `yaml:"path"`
	CredentialsDSN string `yaml:"credentials_dsn"`
	LogQueries     bool   `yaml:"log_queries"`
}

// GoogleConfig holds the OAuth client used for per-user Drive integration.
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	StateTTL     string   `yaml:"state_ttl"`
}

// GetStateTTL parses and returns how long an issued OAuth state stays valid.
func (c *GoogleConfig) GetStateTTL() time.Duration {
	d, err := time.ParseDuration(c.StateTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// AuthConfig holds the secret used to verify dashboard user tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// SecurityConfig holds the optional key used to seal OAuth tokens at rest.
type SecurityConfig struct {
	TokenEncryptionKey string `yaml:"token_encryption_key"`
}

// DriveConfig holds Drive API endpoint configuration
type DriveConfig struct {
	BaseURL   string `yaml:"base_url"`
	UploadURL string `yaml:"upload_url"`
	RateLimit int    `yaml:"rate_limit"`
	Timeout   string `yaml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *DriveConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ReportConfig tunes the communication report.
type ReportConfig struct {
	MaxAlerts int    `yaml:"max_alerts"`
	Timezone  string `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (c *ReportConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			PublicURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Path: "commshub.db",
		},
		Google: GoogleConfig{
			StateTTL: "10m",
		},
		Drive: DriveConfig{
			BaseURL:   "https://www.googleapis.com/drive/v3",
			UploadURL: "https://www.googleapis.com/upload/drive/v3",
			RateLimit: 10,
			Timeout:   "60s",
		},
		Report: ReportConfig{
			MaxAlerts: 10,
			Timezone:  "UTC",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from files with environment overrides. Missing files
// are skipped; later files override earlier ones.
func Load(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env only fills variables that are not already set in the process environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COMMSHUB_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("COMMSHUB_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("COMMSHUB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("COMMSHUB_PUBLIC_URL"); v != "" {
		config.Server.PublicURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("COMMSHUB_DB_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("COMMSHUB_CREDENTIALS_DSN"); v != "" {
		config.Database.CredentialsDSN = v
	}

	// Same variable names the OAuth client has always been configured with.
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		config.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		config.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		config.Google.RedirectURL = v
	}

	if v := os.Getenv("COMMSHUB_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("COMMSHUB_TOKEN_ENCRYPTION_KEY"); v != "" {
		config.Security.TokenEncryptionKey = v
	}
	if v := os.Getenv("COMMSHUB_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("COMMSHUB_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	if v := os.Getenv("COMMSHUB_REPORT_TIMEZONE"); v != "" {
		config.Report.Timezone = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// RedirectURL returns the OAuth callback URL, derived from the public URL when
// not configured explicitly.
func (c *Config) RedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return strings.TrimRight(c.Server.PublicURL, "/") + "/auth/google/callback"
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
