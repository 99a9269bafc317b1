package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationsCreateStrategyArtifactsTable(t *testing.T) {
	assert.NotEmpty(t, migrations)
	assert.Contains(t, migrations[0], "CREATE TABLE IF NOT EXISTS strategy_artifacts")
	assert.Contains(t, migrations[0], "PRIMARY KEY (strategy_id, symbol)")
}

func TestMigrationsAreIdempotent(t *testing.T) {
	for _, m := range migrations {
		assert.True(t, strings.Contains(m, "IF NOT EXISTS"))
	}
}

func TestArtifactRecordRoundTripsFields(t *testing.T) {
	rec := ArtifactRecord{
		StrategyID:   "momentum-1",
		Symbol:       "BTCUSDT",
		ArtifactPath: "/plugins/momentum-1.so",
		Params:       []byte(`{"threshold":0.5}`),
	}
	assert.Equal(t, "momentum-1", rec.StrategyID)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "/plugins/momentum-1.so", rec.ArtifactPath)
	assert.JSONEq(t, `{"threshold":0.5}`, string(rec.Params))
}
