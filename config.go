package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/avl-fleet/fleetctl/apiclient"
)

const defaultConfigFile = "fleetctl.yaml"

// envBaseURLs maps a named environment to its API when no base URL is set.
var envBaseURLs = map[string]string{
	"development": "http://localhost:8080",
	"staging":     "https://api-staging.yourcompany.com",
	"production":  "https://api.yourcompany.com",
}

// Config is the fleetctl configuration.
// Sources, lowest priority first: defaults, YAML file, environment, flags.
type Config struct {
	Env       string `yaml:"env" env:"FLEET_ENV" env-default:"development"`
	BaseURL   string `yaml:"base_url" env:"FLEET_API_URL"`
	Profile   string `yaml:"profile" env:"FLEET_PROFILE" env-default:"default"`
	TokenFile string `yaml:"token_file" env:"FLEET_TOKEN_FILE" env-default:".fleetctl-tokens.json"`

	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig tunes the API client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"FLEET_TIMEOUT" env-default:"30s"`
	// RetryAttempts is the number of retries after the first attempt.
	// Zero falls back to the default; set -1 to disable retries.
	RetryAttempts  int           `yaml:"retry_attempts" env:"FLEET_RETRY_ATTEMPTS" env-default:"3"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"FLEET_RETRY_BASE_DELAY" env-default:"100ms"`
	RefreshPath    string        `yaml:"refresh_path" env:"FLEET_REFRESH_PATH" env-default:"/auth/refresh"`
}

// LoadConfig reads configuration with priority:
// 1) explicit path; 2) FLEETCTL_CONFIG; 3) ./fleetctl.yaml; 4) environment only.
// Environment variables are always applied over file values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("FLEETCTL_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	return &cfg, nil
}

// applyFlags overrides config values with flags the user actually set.
func (c *Config) applyFlags(f *globalFlags) {
	if f.env != "" {
		c.Env = f.env
	}
	if f.baseURL != "" {
		c.BaseURL = f.baseURL
	}
	if f.profile != "" {
		c.Profile = f.profile
	}
	if f.tokenFile != "" {
		c.TokenFile = f.tokenFile
	}
}

// resolve fills BaseURL from Env when unset and validates the result.
func (c *Config) resolve() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.BaseURL == "" {
		u, ok := envBaseURLs[c.Env]
		if !ok {
			return fmt.Errorf("unknown environment %q and no base URL set", c.Env)
		}
		c.BaseURL = u
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if err := apiclient.ValidateBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.TokenFile == "" {
		return errors.New("token file path cannot be empty")
	}
	return nil
}

// clientConfig maps the CLI settings onto the API client's.
func (c *Config) clientConfig() apiclient.Config {
	return apiclient.Config{
		BaseURL:        c.BaseURL,
		Timeout:        c.HTTP.Timeout,
		RetryAttempts:  c.HTTP.RetryAttempts,
		RetryBaseDelay: c.HTTP.RetryBaseDelay,
		RefreshPath:    c.HTTP.RefreshPath,
		UserAgent:      "fleetctl/" + version,
	}
}

// warnInsecure prints a warning when tokens would travel over plain HTTP.
func warnInsecure(w io.Writer, baseURL string) {
	if !strings.HasPrefix(strings.ToLower(baseURL), "http://") {
		return
	}
	fmt.Fprintln(w, "⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
	fmt.Fprintln(w, "⚠️  This is only safe for local development. Use HTTPS in production.")
	fmt.Fprintln(w)
}
