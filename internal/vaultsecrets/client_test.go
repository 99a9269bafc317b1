package vaultsecrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehost/internal/wireauth"
)

func TestStoreAndGetRoundTripWhenDisabled(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)

	hash, err := c.Store(context.Background(), Credential{APIKey: "key1", SecretKey: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, wireauth.CredentialHash("key1"), hash)

	got, err := c.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "key1", got.APIKey)
	assert.Equal(t, "secret1", got.SecretKey)
}

func TestGetUnknownHashErrorsWhenDisabled(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestDeleteRemovesFromCache(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)

	hash, err := c.Store(context.Background(), Credential{APIKey: "key1", SecretKey: "secret1"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), hash))
	_, err = c.Get(context.Background(), hash)
	assert.Error(t, err)
}

func TestHealthIsNoopWhenDisabled(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, c.Health(context.Background()))
}

func TestIsEnabledReflectsConfig(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
}
