// Package config defines the taskforge daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level taskforge configuration.
type Config struct {
	Server    ServerConfig   `json:"server" yaml:"server"`
	Database  DatabaseConfig `json:"database" yaml:"database"`
	Auth      AuthConfig     `json:"auth" yaml:"auth"`
	Webhook   WebhookConfig  `json:"webhook" yaml:"webhook"`
	LogLevel  string         `json:"log_level" yaml:"log_level"`   // debug, info, warn, error
	LogFormat string         `json:"log_format" yaml:"log_format"` // text or json
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"` // listen address, e.g., ":8000"
	CORSOrigins     []string      `json:"cors_origins" yaml:"cors_origins"`
	UploadDir       string        `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes  int64         `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "pgx"
	DSN    string `json:"dsn" yaml:"dsn"`       // file path for sqlite, URL for postgres
}

// AuthConfig controls GitHub login and sessions.
type AuthConfig struct {
	GitHubClientID     string        `json:"github_client_id" yaml:"github_client_id"`
	GitHubClientSecret string        `json:"-" yaml:"github_client_secret"`
	RedirectURL        string        `json:"redirect_url" yaml:"redirect_url"`
	AuthorizeURL       string        `json:"authorize_url,omitempty" yaml:"authorize_url"`
	TokenURL           string        `json:"token_url,omitempty" yaml:"token_url"`
	APIURL             string        `json:"api_url,omitempty" yaml:"api_url"`
	Secret             string        `json:"-" yaml:"secret"` // seeds session ids and login state
	SessionTTL         time.Duration `json:"session_ttl" yaml:"session_ttl"`
	MaxSessions        int           `json:"max_sessions" yaml:"max_sessions"`
	SweepInterval      time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	HTTPTimeout        time.Duration `json:"http_timeout" yaml:"http_timeout"`
	ProtectAPI         bool          `json:"protect_api" yaml:"protect_api"`
}

// WebhookConfig controls GitHub webhook processing.
type WebhookConfig struct {
	Secret            string   `json:"-" yaml:"secret"`
	ProtectedBranches []string `json:"protected_branches" yaml:"protected_branches"`
	CloseBonus        int64    `json:"close_bonus" yaml:"close_bonus"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:3000"},
			UploadDir:       "./uploads",
			MaxUploadBytes:  10 << 20,
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./data/taskforge.db",
		},
		Auth: AuthConfig{
			RedirectURL:   "http://localhost:8000/auth/github/callback",
			SessionTTL:    time.Hour,
			MaxSessions:   10000,
			SweepInterval: 5 * time.Minute,
			HTTPTimeout:   10 * time.Second,
		},
		Webhook: WebhookConfig{
			ProtectedBranches: []string{"main", "master"},
			CloseBonus:        10,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides deployment settings and secrets from TASKFORGE_*
// environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Addr = envStr("TASKFORGE_ADDR", c.Server.Addr)
	c.Database.Driver = envStr("TASKFORGE_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = envStr("TASKFORGE_DB_DSN", c.Database.DSN)
	c.Auth.GitHubClientID = envStr("TASKFORGE_GITHUB_CLIENT_ID", c.Auth.GitHubClientID)
	c.Auth.GitHubClientSecret = envStr("TASKFORGE_GITHUB_CLIENT_SECRET", c.Auth.GitHubClientSecret)
	c.Auth.Secret = envStr("TASKFORGE_AUTH_SECRET", c.Auth.Secret)
	c.Webhook.Secret = envStr("TASKFORGE_WEBHOOK_SECRET", c.Webhook.Secret)
	c.LogLevel = envStr("TASKFORGE_LOG_LEVEL", c.LogLevel)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or pgx, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn must not be empty"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.session_ttl must be positive, got %s", c.Auth.SessionTTL))
	}
	if c.Auth.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("auth.sweep_interval must be positive, got %s", c.Auth.SweepInterval))
	}
	if c.Auth.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("auth.http_timeout must be positive, got %s", c.Auth.HTTPTimeout))
	}
	if c.Webhook.CloseBonus <= 0 {
		errs = append(errs, fmt.Errorf("webhook.close_bonus must be positive, got %d", c.Webhook.CloseBonus))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
