package usecase

import (
	"context"
	"sync"
	"time"

	"ImpactRank/internal/domain/models"
)

var refTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const refString = "2024-05-01T12:00:00Z"

func assetRec(ticker string, impact float64, ts string) models.RawRecord {
	return models.RawRecord{
		"type": "Asset", "Ticker": ticker, "Summary": ticker + " news",
		"link": "http://news/" + ticker, "impact": impact, "timestamp": ts,
	}
}

func macroRec(location, scope string, impact float64, ts string) models.RawRecord {
	return models.RawRecord{
		"type": "Macro", "Scope": scope, "Location": location, "Summary": scope + " in " + location,
		"link": "http://news/macro", "impact": impact, "timestamp": ts,
	}
}

func locationRec(ticker, location string) models.RawRecord {
	return models.RawRecord{"type": "Location", "Asset": ticker, "Location": location}
}

type fakeHistory struct {
	records []models.RawRecord
	err     error
	cutoffs []time.Time
}

func (f *fakeHistory) GetSince(_ context.Context, cutoff time.Time) ([]models.RawRecord, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.records, f.err
}

type fakeMetrics struct {
	mu     sync.Mutex
	events map[string]int
	errors map[string]int
	scores map[string]float64
	ops    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		events: map[string]int{},
		errors: map[string]int{},
		scores: map[string]float64{},
		ops:    map[string]int{},
	}
}

func (m *fakeMetrics) RecordEvents(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[source] += n
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordScores(scores map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = make(map[string]float64, len(scores))
	for k, v := range scores {
		m.scores[k] = v
	}
}

func (m *fakeMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
}

type fakeEventWriter struct {
	saved      []models.Event
	ingestedAt time.Time
	err        error
}

func (f *fakeEventWriter) SaveMany(_ context.Context, events []models.Event, ingestedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, events...)
	f.ingestedAt = ingestedAt
	return nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (f *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	f.msgType, f.payload = msgType, payload
	return f.err
}

type fakeRecStore struct {
	saved    []*models.Ranking
	latest   []models.RecommendationRecord
	byTicker map[string][]models.RecommendationRecord
	err      error
}

func (f *fakeRecStore) Init(context.Context) error { return nil }

func (f *fakeRecStore) SaveRanking(_ context.Context, r *models.Ranking) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeRecStore) Latest(_ context.Context, limit int) ([]models.RecommendationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.latest) {
		return f.latest[:limit], nil
	}
	return f.latest, nil
}

func (f *fakeRecStore) ByTicker(_ context.Context, ticker string, _ int) ([]models.RecommendationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTicker[ticker], nil
}

type fakeRankingCache struct {
	latest *models.Ranking
	err    error
}

func (f *fakeRankingCache) SetLatest(_ context.Context, r *models.Ranking) error {
	if f.err != nil {
		return f.err
	}
	f.latest = r
	return nil
}

func (f *fakeRankingCache) GetLatest(context.Context) (*models.Ranking, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.latest, f.latest != nil, nil
}

type fakePublisher struct {
	published []*models.Ranking
	err       error
}

func (f *fakePublisher) PublishRanking(_ context.Context, r *models.Ranking) error {
	f.published = append(f.published, r)
	return f.err
}

type fakeBroadcaster struct {
	got []*models.Ranking
}

func (f *fakeBroadcaster) Broadcast(r *models.Ranking) { f.got = append(f.got, r) }
