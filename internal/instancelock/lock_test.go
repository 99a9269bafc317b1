package instancelock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAlwaysSucceedsWhenDisabled(t *testing.T) {
	l := New(Config{Enabled: false}, nil)

	ok, err := l.Acquire(context.Background(), "strat1:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIsNoopWhenDisabled(t *testing.T) {
	l := New(Config{Enabled: false}, nil)
	assert.NoError(t, l.Release(context.Background(), "strat1:BTCUSDT"))
}

func TestIsHealthyTrueWhenDisabled(t *testing.T) {
	l := New(Config{Enabled: false}, nil)
	assert.True(t, l.IsHealthy())
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	l := New(Config{Enabled: true}, nil)
	l.enabled = true
	l.healthy = true

	for i := 0; i < maxFailures; i++ {
		l.recordFailure()
	}
	assert.False(t, l.IsHealthy())

	l.recordSuccess()
	assert.True(t, l.IsHealthy())
}
