package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/domain/models"
)

const fencedBatch = "```json\n" + `[
  {"type": "Asset", "Ticker": "XYZ", "Summary": "beat", "link": "http://a", "impact": "2", "timestamp": "2024-05-01T12:00:00Z"},
  {"type": "Location", "Asset": "XYZ", "Location": "US"},
  {"type": "Asset", "Ticker": "BAD", "impact": 1}
]` + "\n```"

func newIngest(store *fakeEventWriter, q *fakeQueue, m *fakeMetrics) *IngestHandler {
	h := NewIngestHandler("impact-events", store, q, m, nil)
	h.now = func() time.Time { return refTime }
	return h
}

func TestIngestHandler_StoresAndEnqueues(t *testing.T) {
	store := &fakeEventWriter{}
	q := &fakeQueue{}
	m := newFakeMetrics()
	h := newIngest(store, q, m)

	assert.Equal(t, "impact-events", h.Topic())
	require.NoError(t, h.Handle(context.Background(), []byte(fencedBatch)))

	require.Len(t, store.saved, 2)
	assert.Equal(t, models.EventTypeAsset, store.saved[0].Type())
	assert.Equal(t, models.EventTypeLocation, store.saved[1].Type())
	assert.True(t, store.ingestedAt.Equal(refTime))

	assert.Equal(t, RefreshJobType, q.msgType)
	payload, ok := q.payload.(RefreshPayload)
	require.True(t, ok)
	require.Len(t, payload.Records, 2)
	assert.Equal(t, "XYZ", payload.Records[0][models.KeyTicker])
	assert.Equal(t, 2.0, payload.Records[0][models.KeyImpact])
	assert.Equal(t, "kafka", payload.Source)

	assert.Equal(t, 2, m.events["kafka"])
	assert.Equal(t, 1, m.errors["ingest_rejected"])
}

func TestIngestHandler_SingleObject(t *testing.T) {
	store := &fakeEventWriter{}
	h := newIngest(store, &fakeQueue{}, newFakeMetrics())
	require.NoError(t, h.Handle(context.Background(), []byte(`{"type":"Tag","Asset":"XYZ","Scope":"banking"}`)))
	require.Len(t, store.saved, 1)
}

func TestIngestHandler_StoreFailureIsReturned(t *testing.T) {
	boom := errors.New("insert failed")
	q := &fakeQueue{}
	m := newFakeMetrics()
	h := newIngest(&fakeEventWriter{err: boom}, q, m)

	err := h.Handle(context.Background(), []byte(fencedBatch))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, q.msgType)
	assert.Equal(t, 1, m.errors["store"])
}

func TestIngestHandler_EnqueueFailureIsReturned(t *testing.T) {
	h := newIngest(&fakeEventWriter{}, &fakeQueue{err: errors.New("redis down")}, newFakeMetrics())
	assert.Error(t, h.Handle(context.Background(), []byte(fencedBatch)))
}

func TestIngestHandler_NothingValid(t *testing.T) {
	store := &fakeEventWriter{}
	q := &fakeQueue{}
	h := newIngest(store, q, newFakeMetrics())

	require.NoError(t, h.Handle(context.Background(), []byte(`[{"type":"Comet"}, 42]`)))
	assert.Empty(t, store.saved)
	assert.Empty(t, q.msgType)
}

func TestIngestHandler_UndecodableMessage(t *testing.T) {
	m := newFakeMetrics()
	h := newIngest(&fakeEventWriter{}, &fakeQueue{}, m)
	assert.Error(t, h.Handle(context.Background(), []byte("not json at all")))
	assert.Equal(t, 1, m.errors["consumer_decode"])
}

func TestIngestHandler_NoSinks(t *testing.T) {
	h := NewIngestHandler("impact-events", nil, nil, nil, nil)
	assert.NoError(t, h.Handle(context.Background(), []byte(fencedBatch)))
}
