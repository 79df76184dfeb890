package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 62599, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./hostpilot.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, time.Second, cfg.Scheduler.SampleWindow)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ActionTimeout)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StatusInterval)
	assert.Equal(t, "https://api.24fire.de", cfg.Fire.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Security.APIToken)
	assert.True(t, cfg.Security.RateLimiting.Enabled)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, 62599, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "both", cfg.Log.Output)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Database.Driver = "postgres"
	cfg.Scheduler.PollInterval = 30 * time.Second
	cfg.Log.Level = "debug"
	applyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithEmptyViperUsesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := Load()
	assert.Equal(t, 62599, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PollInterval)
}
