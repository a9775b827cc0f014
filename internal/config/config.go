package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models jobtrail.yml.
type Config struct {
	Reminders struct {
		FollowUpDays  int `yaml:"follow_up_days"`
		CooldownDays  int `yaml:"cooldown_days"`
		BatchSize     int `yaml:"batch_size"`
		IntervalHours int `yaml:"interval_hours"`
	} `yaml:"reminders"`
	Notifications struct {
		Webhook WebhookConfig `yaml:"webhook"`
	} `yaml:"notifications"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        *bool  `yaml:"enabled"`
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Reminders.FollowUpDays <= 0 {
		return fmt.Errorf("config.reminders.follow_up_days must be positive")
	}
	if c.Reminders.CooldownDays <= 0 {
		return fmt.Errorf("config.reminders.cooldown_days must be positive")
	}
	if c.Reminders.BatchSize <= 0 {
		return fmt.Errorf("config.reminders.batch_size must be positive")
	}
	if c.Reminders.IntervalHours <= 0 {
		return fmt.Errorf("config.reminders.interval_hours must be positive")
	}
	if c.Notifications.Webhook.URL == "" && c.Notifications.Webhook.Secret != "" {
		return fmt.Errorf("config.notifications.webhook.secret set without url")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jobtrail.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
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

const defaultTemplate = `reminders:
  # Follow-up is scheduled this many days after an application is submitted.
  follow_up_days: 14
  # Minimum gap between two reminders for the same application.
  cooldown_days: 7
  # Applications examined per page of a batch run.
  batch_size: 100
  # Batch scheduling interval.
  interval_hours: 24

notifications:
  webhook:
    url: ""
    secret: ""
    timeout_seconds: 5
    enabled: true

logging:
  level: info
`
