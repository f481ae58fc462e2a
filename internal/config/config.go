// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr          = "0.0.0.0:8080"
	DefaultGitHubAPIURL  = "https://api.github.com/"
	DefaultEnrichTimeout = 10 * time.Second

	// WebhookPath is where the chat platform delivers updates, relative to ServerURL.
	WebhookPath = "telegram/webhook"
)

type Config struct {
	// ServerURL is the public base URL of this service, always ending in "/".
	ServerURL string         `yaml:"server_url"`
	Addr      string         `yaml:"addr"`
	DBPath    string         `yaml:"db_path"`
	Telegram  TelegramConfig `yaml:"telegram"`
	GitHub    GitHubConfig   `yaml:"github"`
	// StateSecret signs the account-linking state parameter.
	StateSecret    string        `yaml:"state_secret"`
	EnrichTimeout  time.Duration `yaml:"enrich_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type GitHubConfig struct {
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DefaultPath returns ~/.repobot/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".repobot", "config.yaml")
}

// Load reads the config file at path, applies REPOBOT_* environment
// overrides and fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, dst := range map[string]*string{
		"REPOBOT_SERVER_URL":           &c.ServerURL,
		"REPOBOT_ADDR":                 &c.Addr,
		"REPOBOT_DB_PATH":              &c.DBPath,
		"REPOBOT_BOT_TOKEN":            &c.Telegram.BotToken,
		"REPOBOT_WEBHOOK_SECRET":       &c.Telegram.WebhookSecret,
		"REPOBOT_GITHUB_API_URL":       &c.GitHub.APIURL,
		"REPOBOT_GITHUB_CLIENT_ID":     &c.GitHub.ClientID,
		"REPOBOT_GITHUB_CLIENT_SECRET": &c.GitHub.ClientSecret,
		"REPOBOT_STATE_SECRET":         &c.StateSecret,
	} {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("REPOBOT_ENRICH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse REPOBOT_ENRICH_TIMEOUT: %w", err)
		}
		c.EnrichTimeout = d
	}
	if v, ok := lookup("REPOBOT_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = DefaultGitHubAPIURL
	}
	if c.EnrichTimeout <= 0 {
		c.EnrichTimeout = DefaultEnrichTimeout
	}
	c.ServerURL = withTrailingSlash(c.ServerURL)
	c.GitHub.APIURL = withTrailingSlash(c.GitHub.APIURL)
}

func withTrailingSlash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// WebhookURL is the URL registered with the chat platform for update delivery.
func (c *Config) WebhookURL() string {
	return c.ServerURL + WebhookPath
}

// OAuthCallbackURL is the redirect target of the account-linking flow.
func (c *Config) OAuthCallbackURL() string {
	return c.ServerURL + "api/auth/github/callback"
}

// Validate reports every required value that is missing for serving.
func (c *Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"server_url":           c.ServerURL,
		"telegram.bot_token":   c.Telegram.BotToken,
		"github.client_id":     c.GitHub.ClientID,
		"github.client_secret": c.GitHub.ClientSecret,
		"state_secret":         c.StateSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(c.ServerURL, "https://") && !strings.HasPrefix(c.ServerURL, "http://") {
		return fmt.Errorf("server_url must be an http(s) URL: %q", c.ServerURL)
	}
	return nil
}
