// Package config loads the relay configuration from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/provider/enjinmel"
	"github.com/shineum/enjinmel-relay/internal/secret"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Config holds the complete application configuration.
type Config struct {
	SMTP      SMTPConfig      `yaml:"smtp"`
	EnjinMel  EnjinMelConfig  `yaml:"enjinmel"`
	Settings  SettingsConfig  `yaml:"settings"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Admin     AdminConfig     `yaml:"admin"`
	TLS       TLSConfig       `yaml:"tls"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Listen         string  `yaml:"listen" envconfig:"SMTP_LISTEN"`
	Hostname       string  `yaml:"hostname" envconfig:"SMTP_HOSTNAME"`
	Username       string  `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password       string  `yaml:"password" envconfig:"SMTP_PASSWORD"`
	MaxMessageSize int64   `yaml:"max_message_size" envconfig:"SMTP_MAX_MESSAGE_SIZE"`
	RateLimit      float64 `yaml:"rate_limit" envconfig:"SMTP_RATE_LIMIT"`
}

// EnjinMelConfig locates the EnjinMel REST API.
type EnjinMelConfig struct {
	Endpoint string        `yaml:"endpoint" envconfig:"ENJINMEL_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"ENJINMEL_TIMEOUT"`

	// DryRun prints payloads instead of submitting them.
	DryRun bool `yaml:"dry_run" envconfig:"ENJINMEL_DRY_RUN"`
}

// SettingsConfig is the stored sender settings record.
type SettingsConfig struct {
	// APIKey is the encrypted API key produced by the encrypt command.
	APIKey       string `yaml:"api_key" envconfig:"SETTINGS_API_KEY"`
	FromEmail    string `yaml:"from_email" envconfig:"SETTINGS_FROM_EMAIL"`
	FromName     string `yaml:"from_name" envconfig:"SETTINGS_FROM_NAME"`
	ForceFrom    bool   `yaml:"force_from" envconfig:"SETTINGS_FORCE_FROM"`
	CampaignName string `yaml:"campaign_name" envconfig:"SETTINGS_CAMPAIGN_NAME"`
	TemplateID   string `yaml:"template_id" envconfig:"SETTINGS_TEMPLATE_ID"`

	// EnableLogging is nil when not configured, which means enabled.
	EnableLogging *bool `yaml:"enable_logging" envconfig:"SETTINGS_ENABLE_LOGGING"`
}

// SecretsConfig lists the key material sources. Key and IV are nil when
// not configured; an empty value is configured but invalid.
type SecretsConfig struct {
	Key       *string `yaml:"key" envconfig:"SECRETS_KEY"`
	IV        *string `yaml:"iv" envconfig:"SECRETS_IV"`
	StoreFile string  `yaml:"store_file" envconfig:"SECRETS_STORE_FILE"`

	AWSSecretID        string `yaml:"aws_secret_id" envconfig:"SECRETS_AWS_SECRET_ID"`
	AWSRegion          string `yaml:"aws_region" envconfig:"SECRETS_AWS_REGION"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id" envconfig:"SECRETS_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key" envconfig:"SECRETS_AWS_SECRET_ACCESS_KEY"`
}

// StorageConfig selects the log database.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" envconfig:"STORAGE_DSN"`
}

// RetentionConfig bounds the log table.
type RetentionConfig struct {
	Days     int           `yaml:"days" envconfig:"RETENTION_DAYS"`
	MaxRows  int           `yaml:"max_rows" envconfig:"RETENTION_MAX_ROWS"`
	Interval time.Duration `yaml:"interval" envconfig:"RETENTION_INTERVAL"`
}

// AdminConfig configures the admin HTTP server. An empty Listen disables it.
type AdminConfig struct {
	Listen string `yaml:"listen" envconfig:"ADMIN_LISTEN"`
	Token  string `yaml:"token" envconfig:"ADMIN_TOKEN"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" envconfig:"TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" envconfig:"TLS_KEY_FILE"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
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
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// AWSSecretsConfigured reports whether key material should be read from
// AWS Secrets Manager.
func (c *Config) AWSSecretsConfigured() bool {
	return c.Secrets.AWSSecretID != ""
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn: must not be empty"))
	}
	if c.SMTP.MaxMessageSize < 0 {
		errs = append(errs, errors.New("smtp.max_message_size: must not be negative"))
	}
	if c.SMTP.RateLimit < 0 {
		errs = append(errs, errors.New("smtp.rate_limit: must not be negative"))
	}
	if c.EnjinMel.Timeout <= 0 {
		errs = append(errs, errors.New("enjinmel.timeout: must be positive"))
	}
	if c.Retention.Interval <= 0 {
		errs = append(errs, errors.New("retention.interval: must be positive"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ClientConfig is the EnjinMel client configuration.
func (c *Config) ClientConfig() enjinmel.Config {
	return enjinmel.Config{
		Endpoint: c.EnjinMel.Endpoint,
		Timeout:  c.EnjinMel.Timeout,
		Settings: enjinmel.Settings{
			APIKey:       c.Settings.APIKey,
			FromEmail:    c.Settings.FromEmail,
			FromName:     c.Settings.FromName,
			ForceFrom:    c.Settings.ForceFrom,
			CampaignName: c.Settings.CampaignName,
			TemplateID:   c.Settings.TemplateID,
		},
	}
}

// StoreConfig is the log store configuration.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, DSN: c.Storage.DSN}
}

// RetentionPolicy is the configured log retention policy.
func (c *Config) RetentionPolicy() maillog.Policy {
	return maillog.Policy{Days: c.Retention.Days, MaxRows: c.Retention.MaxRows}
}

// AWSConfig is the AWS Secrets Manager source configuration.
func (c *Config) AWSConfig() secret.AWSConfig {
	return secret.AWSConfig{
		SecretID:        c.Secrets.AWSSecretID,
		Region:          c.Secrets.AWSRegion,
		AccessKeyID:     c.Secrets.AWSAccessKeyID,
		SecretAccessKey: c.Secrets.AWSSecretAccessKey,
	}
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.EnjinMel.Endpoint = enjinmel.DefaultEndpoint
	c.EnjinMel.Timeout = enjinmel.DefaultTimeout
	c.Secrets.StoreFile = "data/secrets.json"
	c.Storage.Driver = "sqlite"
	c.Storage.DSN = "data/enjinmel-relay.db"
	c.Retention.Days = maillog.DefaultRetentionDays
	c.Retention.MaxRows = maillog.DefaultMaxRows
	c.Retention.Interval = maillog.DefaultInterval
	c.Admin.Listen = "127.0.0.1:8025"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variables. Only
// variables that are present override; a present but empty variable sets
// an empty value.
func (c *Config) applyEnvVars() error {
	sections := []any{
		&c.SMTP, &c.EnjinMel, &c.Settings, &c.Secrets, &c.Storage,
		&c.Retention, &c.Admin, &c.TLS, &c.Logging,
	}
	for _, s := range sections {
		if err := envconfig.Process("", s); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	return nil
}
