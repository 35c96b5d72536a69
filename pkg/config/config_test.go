package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 7, cfg.Alerts.ReminderDays)
	assert.Equal(t, 24*time.Hour, cfg.Alerts.SchedulerInterval)
	assert.Equal(t, 5*time.Minute, cfg.Cases.SummaryCacheTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ALERT_REMINDER_DAYS", "14")
	t.Setenv("ALERT_SCHEDULER_INTERVAL", "6h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Alerts.ReminderDays)
	assert.Equal(t, 6*time.Hour, cfg.Alerts.SchedulerInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("nonsense", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
