// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for sealpost.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Key schemas select how the sender's decryption keys are unlocked.
const (
	KeySchemaLegacy      = "legacy"
	KeySchemaAddressKeys = "address_keys"
)

const (
	defaultAPIBaseURL      = "https://mail.proton.me/api"
	defaultAPITimeout      = 30 * time.Second
	defaultContentIDDomain = "pm.me"
)

// Config holds the complete application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Send    SendConfig    `yaml:"send"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds the REST API connection settings.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AppVersion  string        `yaml:"app_version"`
	UID         string        `yaml:"uid"`
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SendConfig holds the message packaging settings.
type SendConfig struct {
	Workers          int    `yaml:"workers"`
	ExpirationOffset int64  `yaml:"expiration_offset"`
	KeySchema        string `yaml:"key_schema"`
	ContentIDDomain  string `yaml:"content_id_domain"`
}

// NotifyConfig selects and configures the transport used to deliver
// invitation replies.
type NotifyConfig struct {
	Provider string      `yaml:"provider"`
	SES      SESConfig   `yaml:"ses"`
	Graph    GraphConfig `yaml:"graph"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// APIConfigured returns true if the session credentials needed for
// authenticated API calls are present.
func (c *Config) APIConfigured() bool {
	return c.API.BaseURL != "" && c.API.UID != "" && c.API.AccessToken != ""
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.Notify.SES.Region != "" && c.Notify.SES.Sender != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Notify.Graph.TenantID != "" &&
		c.Notify.Graph.ClientID != "" &&
		c.Notify.Graph.ClientSecret != "" &&
		c.Notify.Graph.Sender != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.API.BaseURL = defaultAPIBaseURL
	c.API.Timeout = defaultAPITimeout
	c.Send.Workers = runtime.NumCPU()
	c.Send.KeySchema = KeySchemaAddressKeys
	c.Send.ContentIDDomain = defaultContentIDDomain
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("API_APP_VERSION"); v != "" {
		c.API.AppVersion = v
	}
	if v := os.Getenv("API_UID"); v != "" {
		c.API.UID = v
	}
	if v := os.Getenv("API_ACCESS_TOKEN"); v != "" {
		c.API.AccessToken = v
	}
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}

	if v := os.Getenv("SEND_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Send.Workers = n
		}
	}
	if v := os.Getenv("SEND_EXPIRATION_OFFSET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Send.ExpirationOffset = n
		}
	}
	if v := os.Getenv("SEND_KEY_SCHEMA"); v != "" {
		c.Send.KeySchema = strings.ToLower(v)
	}
	if v := os.Getenv("SEND_CONTENT_ID_DOMAIN"); v != "" {
		c.Send.ContentIDDomain = v
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Notify.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SES_REGION"); v != "" {
		c.Notify.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.Notify.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.Notify.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.Notify.SES.Sender = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Notify.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Notify.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Notify.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Notify.Graph.Sender = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate rejects values that would otherwise fail deep inside the
// send pipeline.
func (c *Config) validate() error {
	switch c.Send.KeySchema {
	case KeySchemaLegacy, KeySchemaAddressKeys:
	default:
		return fmt.Errorf("invalid key schema %q", c.Send.KeySchema)
	}
	if c.Send.Workers <= 0 {
		return fmt.Errorf("invalid worker count %d", c.Send.Workers)
	}
	return nil
}
