package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/services/history"
	"ImpactRank/pkg/config"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestProvideEngineConfig(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Engine.DecayBase = 0.95
	cfg.Engine.HalfLifeHours = 6
	cfg.Engine.PropagateScopes = true

	ec := ProvideEngineConfig(cfg)
	assert.Equal(t, 0.95, ec.DecayBase)
	assert.Equal(t, 6.0, ec.HalfLifeHours)
	assert.Equal(t, 48.0, ec.MaxAgeHours)
	assert.True(t, ec.PropagateScopes)
	assert.True(t, ec.ReferenceTime.IsZero())
}

func TestProvideEventHistory(t *testing.T) {
	cfg := defaultConfig(t)

	cfg.History.Source = "none"
	assert.Nil(t, ProvideEventHistory(cfg, nil))

	cfg.History.Source = "clickhouse"
	assert.Nil(t, ProvideEventHistory(cfg, nil), "no store means no history, not a typed nil")

	cfg.History.Source = "http"
	cfg.History.URL = "http://history.local"
	cfg.History.Timeout = time.Second
	_, ok := ProvideEventHistory(cfg, nil).(*history.HTTPSource)
	assert.True(t, ok)
}

func TestDisabledComponentsAreNil(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Kafka.Enabled = false
	cfg.ClickHouse.Enabled = false
	cfg.WebSocket.Enabled = false

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)

	c, err := ProvideKafkaConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	events, err := ProvideEventStore(nil, cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, events)

	recs, err := ProvideRecommendationStore(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, recs)

	assert.Nil(t, ProvideRankingPublisher(nil, cfg))
	assert.Nil(t, ProvideHub(cfg, nil, nil))
}
