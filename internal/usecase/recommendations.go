package usecase

import (
	"context"
	"errors"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/internal/services/impact"
	applogger "ImpactRank/pkg/logger"
)

// ErrNoStore is returned when stored recommendations are requested but
// persistence is disabled.
var ErrNoStore = errors.New("recommendation store not configured")

// LatestRecommendations is the latest ranking as served by the API.
type LatestRecommendations struct {
	RunID           string                        `json:"run_id,omitempty"`
	Source          string                        `json:"source"`
	Recommendations []models.RecommendationRecord `json:"recommendations"`
}

// RecommendationsUseCase serves stored rankings.
type RecommendationsUseCase struct {
	cache domrepo.RankingCache
	store domrepo.RecommendationStore
	l     *applogger.Logger
}

func NewRecommendationsUseCase(cache domrepo.RankingCache, store domrepo.RecommendationStore, l *applogger.Logger) *RecommendationsUseCase {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RecommendationsUseCase{cache: cache, store: store, l: l}
}

// Latest returns the newest ranking, cache first then store.
func (u *RecommendationsUseCase) Latest(ctx context.Context, limit int) (*LatestRecommendations, error) {
	if u.cache != nil {
		r, ok, err := u.cache.GetLatest(ctx)
		if err != nil {
			u.l.Warn("latest ranking cache read failed", applogger.Error(err))
		}
		if ok && r != nil {
			return &LatestRecommendations{
				RunID:           r.RunID,
				Source:          "cache",
				Recommendations: impact.Top(r.Records(), limit),
			}, nil
		}
	}

	if u.store == nil {
		return &LatestRecommendations{Source: "none", Recommendations: []models.RecommendationRecord{}}, nil
	}
	recs, err := u.store.Latest(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := &LatestRecommendations{Source: "store", Recommendations: recs}
	if len(recs) > 0 {
		out.RunID = recs[0].RunID
	}
	if out.Recommendations == nil {
		out.Recommendations = []models.RecommendationRecord{}
	}
	return out, nil
}

// ByTicker returns stored recommendations for one ticker, newest first.
func (u *RecommendationsUseCase) ByTicker(ctx context.Context, ticker string, limit int) ([]models.RecommendationRecord, error) {
	if u.store == nil {
		return nil, ErrNoStore
	}
	recs, err := u.store.ByTicker(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.RecommendationRecord{}
	}
	return recs, nil
}
