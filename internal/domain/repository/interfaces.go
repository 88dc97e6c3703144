package repository

import (
	"context"
	"time"

	"ImpactRank/internal/domain/models"
)

// EventHistory returns previously stored raw records at or after cutoff.
type EventHistory interface {
	GetSince(ctx context.Context, cutoff time.Time) ([]models.RawRecord, error)
}

// EventStore persists parsed events and serves them back as history.
type EventStore interface {
	EventHistory
	Init(ctx context.Context) error // ensure tables
	SaveMany(ctx context.Context, events []models.Event, ingestedAt time.Time) error
	Health(ctx context.Context) error
	Close() error
}

// RecommendationStore persists ranking runs.
type RecommendationStore interface {
	Init(ctx context.Context) error
	SaveRanking(ctx context.Context, r *models.Ranking) error
	Latest(ctx context.Context, limit int) ([]models.RecommendationRecord, error)
	ByTicker(ctx context.Context, ticker string, limit int) ([]models.RecommendationRecord, error)
}

// RankingPublisher fans a finished ranking out to downstream consumers.
type RankingPublisher interface {
	PublishRanking(ctx context.Context, r *models.Ranking) error
}

// RankingCache keeps the latest ranking close to the API.
type RankingCache interface {
	SetLatest(ctx context.Context, r *models.Ranking) error
	GetLatest(ctx context.Context) (*models.Ranking, bool, error)
}

type Metrics interface {
	RecordEvents(source string, n int)
	RecordError(kind string)
	// RecordScores replaces the published per-ticker scores with scores.
	RecordScores(scores map[string]float64)
	RecordLatency(op string, seconds float64)
}
