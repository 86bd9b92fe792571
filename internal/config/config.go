package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Delivery transports.
const (
	DeliveryLog     = "log"
	DeliveryWebhook = "webhook"
)

// Config models pulseboard.yml.
type Config struct {
	Timezone  string `yaml:"timezone"`
	Scheduler struct {
		Interval    time.Duration `yaml:"interval"`
		Concurrency int           `yaml:"concurrency"`
	} `yaml:"scheduler"`
	Reports struct {
		DefaultFormat string `yaml:"default_format"`
		TitlePrefix   string `yaml:"title_prefix"`
	} `yaml:"reports"`
	Dashboard struct {
		DeadlineWindowDays     int `yaml:"deadline_window_days"`
		TaskDeadlineWindowDays int `yaml:"task_deadline_window_days"`
		UpcomingLimit          int `yaml:"upcoming_limit"`
	} `yaml:"dashboard"`
	Delivery struct {
		Type          string  `yaml:"type"`
		RatePerMinute float64 `yaml:"rate_per_minute"`
		Webhook       Webhook `yaml:"webhook"`
	} `yaml:"delivery"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// Webhook configures the HTTP delivery transport.
type Webhook struct {
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pulse init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the defaults when the config file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
		return Default(), nil
	}
	return nil, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config.timezone %q: %w", c.Timezone, err)
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("config.scheduler.interval must be at least 1s")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("config.scheduler.concurrency must be positive")
	}
	switch c.Reports.DefaultFormat {
	case "csv", "xlsx", "json":
	default:
		return fmt.Errorf("config.reports.default_format must be csv, xlsx or json")
	}
	if c.Dashboard.DeadlineWindowDays < 0 || c.Dashboard.TaskDeadlineWindowDays < 0 || c.Dashboard.UpcomingLimit < 0 {
		return fmt.Errorf("config.dashboard windows must not be negative")
	}
	if c.Delivery.RatePerMinute < 0 {
		return fmt.Errorf("config.delivery.rate_per_minute must not be negative")
	}
	switch c.Delivery.Type {
	case DeliveryLog:
	case DeliveryWebhook:
		u, err := url.Parse(c.Delivery.Webhook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.delivery.webhook.url must be an absolute URL")
		}
	default:
		return fmt.Errorf("config.delivery.type must be %s or %s", DeliveryLog, DeliveryWebhook)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pulseboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
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

const defaultTemplate = `timezone: UTC

scheduler:
  interval: 1m
  concurrency: 4

reports:
  default_format: csv
  title_prefix: Pulseboard

dashboard:
  deadline_window_days: 14
  task_deadline_window_days: 7
  upcoming_limit: 10

delivery:
  type: log
  rate_per_minute: 60
  webhook:
    url: ""
    secret: ""
    timeout: 10s
    max_retries: 3

server:
  addr: ":8080"
  base_path: /v1
`
