package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskdesk.yml. Signing secrets are deliberately absent; they
// come from the environment so the file can be committed.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		// AccessTTL is the access-token lifetime handed out at login and
		// signup. RefreshedAccessTTL is the shorter lifetime handed out by
		// the silent refresh endpoint.
		AccessTTL          Duration `yaml:"access_ttl"`
		RefreshedAccessTTL Duration `yaml:"refreshed_access_ttl"`
		RefreshTTL         Duration `yaml:"refresh_ttl"`
		CookieName         string   `yaml:"cookie_name"`
		CookieSecure       *bool    `yaml:"cookie_secure"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Duration is a yaml-friendly time.Duration ("15m", "168h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("config.auth.access_ttl must be positive")
	}
	if c.Auth.RefreshedAccessTTL <= 0 {
		return fmt.Errorf("config.auth.refreshed_access_ttl must be positive")
	}
	if c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("config.auth.refresh_ttl must be positive")
	}
	if c.Auth.RefreshTTL.Std() <= c.Auth.AccessTTL.Std() {
		return fmt.Errorf("config.auth.refresh_ttl must exceed access_ttl")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("config.auth.cookie_name is required")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// CookieSecure defaults to true unless explicitly disabled.
func (c *Config) CookieSecure() bool {
	if c.Auth.CookieSecure == nil {
		return true
	}
	return *c.Auth.CookieSecure
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdesk.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.AccessTTL = Duration(15 * time.Minute)
	cfg.Auth.RefreshedAccessTTL = Duration(time.Minute)
	cfg.Auth.RefreshTTL = Duration(7 * 24 * time.Hour)
	cfg.Auth.CookieName = "jwt"
	return &cfg
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left out
// of the file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML suitable for `config init`.
func GenerateDefault() string {
	return `server:
  addr: ":8080"
  base_path: /v1

auth:
  access_ttl: 15m
  refreshed_access_ttl: 1m
  refresh_ttl: 168h
  cookie_name: jwt
  cookie_secure: true

# webhooks:
#   - url: https://example.com/hooks/taskdesk
#     enabled: true
`
}
