package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
log:
  level: debug
redis:
  addr: localhost:6379
roster:
  ttl: 2m
  defaultClass: demo
session:
  ttl: 45m
  sweepSchedule: "@every 30s"
`), 0o600))
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "demo", cfg.Roster.DefaultClass)
	assert.Equal(t, "@every 30s", cfg.Session.SweepSchedule)
	assert.Equal(t, 45*time.Minute, TTLDuration(cfg.Session.TTL, time.Minute))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, 10*time.Minute, TTLDuration("", 10*time.Minute))
	assert.Equal(t, 10*time.Minute, TTLDuration("soon", 10*time.Minute))
	assert.Equal(t, 90*time.Second, TTLDuration("90s", 10*time.Minute))
}
