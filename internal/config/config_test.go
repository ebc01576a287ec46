package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  data_dir: "/tmp/outreach-test"

gate:
  enable_auto_send: true
  max_per_day: 250
  allowlist_domains: ["example.com"]

queue:
  stale_minutes: 45
  max_attempts: 5

auto_stop:
  window_days: 10
  min_sent_total: 20
  reply_rate_min: 0.02
  blocked_rate_max: 0.1
  consecutive_days: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.Gate.EnableAutoSend)
	assert.Equal(t, 250, cfg.Gate.MaxPerDay)
	assert.Equal(t, []string{"example.com"}, cfg.Gate.AllowlistDomains)
	assert.Equal(t, 45, cfg.Queue.StaleMinutes)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10, cfg.AutoStop.WindowDays)
	assert.Equal(t, 3, cfg.AutoStop.ConsecutiveDays)

	// defaults filled in for unset fields
	assert.Equal(t, "requeue", cfg.Queue.ReapAction)
	assert.Equal(t, 5, cfg.Queue.PollInterval)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  data_dir: \"/tmp\"\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Gate.MaxPerDay)
	assert.Equal(t, 30, cfg.Queue.StaleMinutes)
	assert.Equal(t, 8, cfg.Queue.MaxAttempts)
	assert.Equal(t, 7, cfg.AutoStop.WindowDays)
	assert.Equal(t, 2, cfg.AutoStop.ConsecutiveDays)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  data_dir: \"/tmp\"\n"), 0644))

	t.Setenv("ENABLE_AUTO_SEND", "true")
	t.Setenv("SEND_MAX_PER_DAY", "42")
	t.Setenv("SEND_ALLOWLIST_DOMAINS", "a.com, b.com")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.Gate.EnableAutoSend)
	assert.Equal(t, 42, cfg.Gate.MaxPerDay)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.Gate.AllowlistDomains)
}

func TestIsKillSwitchEnvSet(t *testing.T) {
	t.Setenv("KILL_SWITCH", "")
	assert.False(t, IsKillSwitchEnvSet())

	t.Setenv("KILL_SWITCH", "true")
	assert.True(t, IsKillSwitchEnvSet())
}
