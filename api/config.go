package api

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/lexdoc/auth"
	"github.com/hazyhaar/lexdoc/docpipe"
)

// Config holds the full lexdoc server configuration.
type Config struct {
	Listen             string     `yaml:"listen"`
	LogLevel           string     `yaml:"log_level"`
	MaxUploadMB        int        `yaml:"max_upload_mb"`
	Extensions         []string   `yaml:"extensions"`
	StrictLinks        bool       `yaml:"strict_links"`
	RequireToken       bool       `yaml:"require_token"`
	AuditDB            string     `yaml:"audit_db"`
	AuditRetentionDays int        `yaml:"audit_retention_days"`
	MCPEnabled         bool       `yaml:"mcp_enabled"`
	Auth               AuthConfig `yaml:"auth"`
}

// AuthConfig configures the single login account.
type AuthConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"` // bcrypt, wins over password
	Secret       string `yaml:"secret"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:             ":8080",
		LogLevel:           "info",
		MaxUploadMB:        20,
		Extensions:         []string{".docx"},
		AuditRetentionDays: 90,
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables read through getenv
// (os.Getenv in production). Unset or empty variables leave fields alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("AUTH_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := getenv("AUTH_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := getenv("AUTH_PASSWORD_HASH"); v != "" {
		c.Auth.PasswordHash = v
	}
	if v := getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := getenv("AUDIT_DB"); v != "" {
		c.AuditDB = v
	}
	if v := getenv("MCP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MCP_ENABLED: %w", err)
		}
		c.MCPEnabled = b
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("max_upload_mb must be > 0")
	}
	if len(c.Extensions) == 0 {
		return errors.New("extensions must not be empty")
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extensions[%d]: %q must start with a dot", i, ext)
		}
		if _, err := docpipe.Detect("x" + ext); err != nil {
			return fmt.Errorf("extensions[%d]: %w", i, err)
		}
	}
	if c.AuditRetentionDays < 0 {
		return errors.New("audit_retention_days must be >= 0")
	}
	if c.RequireToken && !c.Verifier().Configured() {
		return errors.New("require_token needs auth.username and auth.password or auth.password_hash")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Verifier builds the credential verifier for the configured account.
func (c *Config) Verifier() *auth.Verifier {
	return &auth.Verifier{
		Username:     c.Auth.Username,
		Password:     c.Auth.Password,
		PasswordHash: c.Auth.PasswordHash,
		Secret:       c.Auth.Secret,
	}
}

// Accepts reports whether filename carries one of the configured extensions.
func (c *Config) Accepts(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range c.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// uploadHint is the 400 message for a rejected filename.
func (c *Config) uploadHint() string {
	return "Please upload a " + strings.Join(c.Extensions, " or ") + " file"
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log_level: unknown level %q (use debug, info, warn or error)", s)
}

// Pipeline returns the docpipe configuration derived from c.
func (c *Config) Pipeline(logger *slog.Logger) docpipe.Config {
	return docpipe.Config{
		MaxFileSize: c.MaxUploadBytes(),
		StrictLinks: c.StrictLinks,
		Logger:      logger,
	}
}
