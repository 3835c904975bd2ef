// Package config loads notehub configuration from an optional YAML file,
// expanding ${VAR} references and applying environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"notehub/internal/blob"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type UploadsConfig struct {
	Dir         string      `yaml:"dir"`
	MaxBytes    int64       `yaml:"max_bytes"`
	OnCollision blob.Policy `yaml:"on_collision"`
}

type SessionConfig struct {
	Secret       string        `yaml:"secret"`
	TTL          time.Duration `yaml:"-"`
	TTLRaw       string        `yaml:"ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MCPConfig controls the read-only MCP endpoint. Token is the bearer token
// clients must present.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// DevSecret is the fallback session secret for local development.
const DevSecret = "notehub-dev-secret-change-in-prod"

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "./notehub.db"},
		Uploads: UploadsConfig{
			Dir:         "uploads",
			MaxBytes:    32 << 20,
			OnCollision: blob.Reject,
		},
		Session: SessionConfig{Secret: DevSecret, TTLRaw: "168h"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the file at path on top of the defaults. An empty path skips
// the file. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	ttl, err := time.ParseDuration(cfg.Session.TTLRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing session.ttl %q: %w", cfg.Session.TTLRaw, err)
	}
	cfg.Session.TTL = ttl

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with an
// empty string when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_CONN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("COOKIE_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("NOTEHUB_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("NOTEHUB_UPLOAD_DIR"); v != "" {
		cfg.Uploads.Dir = v
	}
	if v := os.Getenv("NOTEHUB_MCP_TOKEN"); v != "" {
		cfg.MCP.Token = v
	}
	if v := os.Getenv("NOTEHUB_MCP_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing NOTEHUB_MCP_ENABLED %q: %w", v, err)
		}
		cfg.MCP.Enabled = enabled
	}
	return nil
}

// Validate returns the first invalid setting it finds.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported (sqlite3, postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	if !c.Uploads.OnCollision.Valid() {
		return fmt.Errorf("uploads.on_collision %q is not supported (reject, overwrite, rename)", c.Uploads.OnCollision)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.MCP.Enabled && c.MCP.Token == "" {
		return fmt.Errorf("mcp.token is required when mcp is enabled")
	}
	return nil
}
