package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "wss://fstream.binance.com/ws", cfg.Venue.MarketWSBase)
	assert.Equal(t, 10000, cfg.Bus.Capacity)
	assert.Equal(t, 8192, cfg.Bus.SyncQueueCapacity)
	assert.Equal(t, 30*time.Minute, cfg.ClockSync.ResyncInterval)
	assert.False(t, cfg.Vault.Enabled)
	assert.False(t, cfg.Storage.Enabled)
	assert.False(t, cfg.InstanceLock.Enabled)
	assert.Equal(t, 8090, cfg.AdminAPI.Port)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("TRADEHOST_BUS_CAPACITY", "2048")
	t.Setenv("TRADEHOST_VAULT_ENABLED", "true")
	t.Setenv("TRADEHOST_CLOCKSYNC_INTERVAL", "5m")
	t.Setenv("TRADEHOST_ADMIN_PORT", "9999")

	cfg := Load()
	assert.Equal(t, 2048, cfg.Bus.Capacity)
	assert.True(t, cfg.Vault.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.ClockSync.ResyncInterval)
	assert.Equal(t, 9999, cfg.AdminAPI.Port)
}

func TestGetEnvIntOrDefaultIgnoresMalformedValue(t *testing.T) {
	os.Setenv("TRADEHOST_TEST_INT", "not-a-number")
	defer os.Unsetenv("TRADEHOST_TEST_INT")
	assert.Equal(t, 42, getEnvIntOrDefault("TRADEHOST_TEST_INT", 42))
}

func TestGetEnvDurationOrDefaultIgnoresMalformedValue(t *testing.T) {
	os.Setenv("TRADEHOST_TEST_DURATION", "not-a-duration")
	defer os.Unsetenv("TRADEHOST_TEST_DURATION")
	assert.Equal(t, time.Second, getEnvDurationOrDefault("TRADEHOST_TEST_DURATION", time.Second))
}
