package repository

import (
	"context"
	"errors"
	"time"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/pkg/cache"
)

const latestRankingKey = "recommendations:latest"

// CachedRankings keeps the latest ranking in the layered cache.
type CachedRankings struct {
	cache cache.Service
	ttl   time.Duration
}

var _ domrepo.RankingCache = (*CachedRankings)(nil)

func NewCachedRankings(c cache.Service, ttl time.Duration) *CachedRankings {
	return &CachedRankings{cache: c, ttl: ttl}
}

func (c *CachedRankings) SetLatest(ctx context.Context, r *models.Ranking) error {
	if r == nil {
		return nil
	}
	return c.cache.Set(ctx, latestRankingKey, r, c.ttl)
}

// GetLatest reports ok=false on a miss; only backend failures are errors.
func (c *CachedRankings) GetLatest(ctx context.Context) (*models.Ranking, bool, error) {
	var r models.Ranking
	if err := c.cache.Get(ctx, latestRankingKey, &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &r, true, nil
}
