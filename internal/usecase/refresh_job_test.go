package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/domain/models"
)

type refreshFixture struct {
	job       *RefreshJob
	store     *fakeRecStore
	cache     *fakeRankingCache
	publisher *fakePublisher
	bc        *fakeBroadcaster
	metrics   *fakeMetrics
}

func newRefreshFixture() *refreshFixture {
	f := &refreshFixture{
		store:     &fakeRecStore{},
		cache:     &fakeRankingCache{},
		publisher: &fakePublisher{},
		bc:        &fakeBroadcaster{},
		metrics:   newFakeMetrics(),
	}
	f.job = NewRefreshJob(newRanking(nil, f.metrics), f.store, f.cache, f.publisher, f.bc, f.metrics, 10, nil)
	return f
}

func batchPayload() RefreshPayload {
	return RefreshPayload{
		Records: []models.RawRecord{
			assetRec("XYZ", 2, refString),
			assetRec("ABC", -1, refString),
		},
		ReceivedAt: refTime,
		Source:     "kafka",
	}
}

func TestRefreshJob_FansOut(t *testing.T) {
	f := newRefreshFixture()
	assert.Equal(t, RefreshJobType, f.job.Type())
	assert.Equal(t, "ranking_refresh", f.job.Name())

	require.NoError(t, f.job.Handle(context.Background(), batchPayload()))

	require.Len(t, f.store.saved, 1)
	saved := f.store.saved[0]
	require.Len(t, saved.Recommendations, 2)
	assert.Equal(t, "XYZ", saved.Recommendations[0].Ticker)
	assert.Equal(t, "ABC", saved.Recommendations[1].Ticker)

	assert.Same(t, saved, f.cache.latest)
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, saved.RunID, f.publisher.published[0].RunID)
	require.Len(t, f.bc.got, 1)

	assert.InDelta(t, 2.0, f.metrics.scores["XYZ"], 1e-9)
	assert.InDelta(t, -1.0, f.metrics.scores["ABC"], 1e-9)
	assert.Equal(t, 2, f.metrics.events["kafka"])
}

func TestRefreshJob_DecodesQueuePayload(t *testing.T) {
	f := newRefreshFixture()
	raw, err := json.Marshal(batchPayload())
	require.NoError(t, err)

	require.NoError(t, f.job.Handle(context.Background(), json.RawMessage(raw)))
	require.Len(t, f.store.saved, 1)
	assert.Len(t, f.store.saved[0].Recommendations, 2)
}

func TestRefreshJob_StoreFailureRetries(t *testing.T) {
	f := newRefreshFixture()
	f.store.err = errors.New("clickhouse down")

	err := f.job.Handle(context.Background(), batchPayload())
	require.Error(t, err)
	assert.Nil(t, f.cache.latest)
	assert.Empty(t, f.publisher.published)
	assert.Empty(t, f.bc.got)
	assert.Equal(t, 1, f.metrics.errors["store"])
}

func TestRefreshJob_PublishFailureIsLogged(t *testing.T) {
	f := newRefreshFixture()
	f.publisher.err = errors.New("broker down")

	require.NoError(t, f.job.Handle(context.Background(), batchPayload()))
	assert.NotNil(t, f.cache.latest)
	assert.Len(t, f.bc.got, 1)
	assert.Equal(t, 1, f.metrics.errors["publish"])
}

func TestRefreshJob_BadPayload(t *testing.T) {
	f := newRefreshFixture()
	assert.Error(t, f.job.Handle(context.Background(), 42))
}

func TestRefreshJob_NoSinks(t *testing.T) {
	job := NewRefreshJob(newRanking(nil, nil), nil, nil, nil, nil, nil, 0, nil)
	assert.NoError(t, job.Handle(context.Background(), batchPayload()))
}
