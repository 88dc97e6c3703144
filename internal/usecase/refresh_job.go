package usecase

import (
	"context"
	"fmt"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	applogger "ImpactRank/pkg/logger"
	"ImpactRank/pkg/queue"
)

// RankingBroadcaster pushes a finished ranking to live subscribers.
type RankingBroadcaster interface {
	Broadcast(r *models.Ranking)
}

// RefreshJob re-ranks an ingested batch against history and fans the result
// out to the store, the cache, Kafka and websocket clients.
type RefreshJob struct {
	ranking     *RankingUseCase
	store       domrepo.RecommendationStore
	cache       domrepo.RankingCache
	publisher   domrepo.RankingPublisher
	broadcaster RankingBroadcaster
	metrics     domrepo.Metrics
	topN        int
	l           *applogger.Logger
}

var _ queue.Job = (*RefreshJob)(nil)

// NewRefreshJob wires the job. Any sink may be nil.
func NewRefreshJob(ranking *RankingUseCase, store domrepo.RecommendationStore, cache domrepo.RankingCache, publisher domrepo.RankingPublisher, broadcaster RankingBroadcaster, metrics domrepo.Metrics, topN int, l *applogger.Logger) *RefreshJob {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RefreshJob{
		ranking:     ranking,
		store:       store,
		cache:       cache,
		publisher:   publisher,
		broadcaster: broadcaster,
		metrics:     metrics,
		topN:        topN,
		l:           l,
	}
}

func (j *RefreshJob) Name() string { return "ranking_refresh" }

func (j *RefreshJob) Type() string { return RefreshJobType }

// Handle ranks the batch at the current time. A store failure is returned so
// the queue retries; cache, publish and broadcast failures are only logged.
func (j *RefreshJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RefreshPayload](payload)
	if err != nil {
		return fmt.Errorf("refresh payload: %w", err)
	}

	out, err := j.ranking.Rank(ctx, RankParams{
		Records:        p.Records,
		IncludeHistory: true,
		IncludeScopes:  true,
		Limit:          j.topN,
		Source:         sourceOr(p.Source),
	})
	if err != nil {
		return fmt.Errorf("rank batch: %w", err)
	}
	ranking := out.Ranking()

	if j.store != nil {
		if err := j.store.SaveRanking(ctx, ranking); err != nil {
			if j.metrics != nil {
				j.metrics.RecordError("store")
			}
			j.l.Error("persist ranking failed",
				applogger.String("run_id", ranking.RunID),
				applogger.Error(err),
			)
			return fmt.Errorf("save ranking: %w", err)
		}
	}

	if j.metrics != nil {
		scores := make(map[string]float64, len(ranking.Recommendations))
		for _, r := range ranking.Recommendations {
			scores[r.Ticker] = r.Score
		}
		j.metrics.RecordScores(scores)
	}

	if j.cache != nil {
		if err := j.cache.SetLatest(ctx, ranking); err != nil {
			j.l.Warn("cache latest ranking failed",
				applogger.String("run_id", ranking.RunID),
				applogger.Error(err),
			)
		}
	}
	if j.publisher != nil {
		if err := j.publisher.PublishRanking(ctx, ranking); err != nil {
			if j.metrics != nil {
				j.metrics.RecordError("publish")
			}
			j.l.Error("publish ranking failed",
				applogger.String("run_id", ranking.RunID),
				applogger.Error(err),
			)
		}
	}
	if j.broadcaster != nil {
		j.broadcaster.Broadcast(ranking)
	}
	return nil
}
