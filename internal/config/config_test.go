package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "data/rentkeeper.db", cfg.Database.SQLitePath)
	assert.False(t, cfg.Database.MirrorEnabled)
	assert.Equal(t, "0 2 * * 1", cfg.Scheduler.CronSpec)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, 60, cfg.API.RateLimitPerMinute)
	assert.Equal(t, 30*time.Second, cfg.Actor.StepTimeout)
}

func TestLoad_MirrorEnabledWhenHostSet(t *testing.T) {
	t.Setenv("MIRROR_DB_HOST", "db.example.com")
	t.Setenv("MIRROR_DB_PASSWORD", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.MirrorEnabled)
	assert.Equal(t, "db.example.com", cfg.Database.Mirror.Host)
	assert.Contains(t, cfg.Database.Mirror.DSN(), "host=db.example.com")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RESET_CRON", "0 3 * * *")
	t.Setenv("ACTOR_STEP_TIMEOUT", "45s")
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.CronSpec)
	assert.Equal(t, 45*time.Second, cfg.Actor.StepTimeout)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("API_RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("RECONCILE_INTERVAL", "bogus")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.API.RateLimitPerMinute)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ReconcileInterval)
}
