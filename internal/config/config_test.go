package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, "csv", cfg.Reports.DefaultFormat)
	assert.Equal(t, 14, cfg.Dashboard.DeadlineWindowDays)
	assert.Equal(t, 10*time.Second, cfg.Delivery.Webhook.Timeout)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("scheduler:\n  concurrency: 2\nreports:\n  default_format: xlsx\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduler.Concurrency)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "xlsx", cfg.Reports.DefaultFormat)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad format":        "reports:\n  default_format: pdf\n",
		"zero concurrency":  "scheduler:\n  concurrency: 0\n",
		"webhook no url":    "delivery:\n  type: webhook\n",
		"unknown transport": "delivery:\n  type: smtp\n",
		"tiny interval":     "scheduler:\n  interval: 10ms\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, "log", cfg.Delivery.Type)

	_, err = config.Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pulseboard.yml"), []byte("delivery:\n  type: webhook\n  webhook:\n    url: https://hooks.example.com/r\n"), 0o644))
	cfg, err = config.LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, "webhook", cfg.Delivery.Type)
	assert.Equal(t, "https://hooks.example.com/r", cfg.Delivery.Webhook.URL)
}
