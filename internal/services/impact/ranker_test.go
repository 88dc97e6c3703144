package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/domain/models"
)

func contrib(ticker string, w float64, summary string) models.WeightedContribution {
	return models.WeightedContribution{Ticker: ticker, Weight: w, Evidence: models.Evidence{Summary: summary, Link: "l-" + summary}}
}

func TestRankAggregation(t *testing.T) {
	res, err := Run([]models.Event{
		asset("AAA", 2, t0, "up", "u1"),
		asset("AAA", -1, t0, "down", "u2"),
	}, DefaultConfig(t0))
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, 1.0, res.Recommendations[0].Score)
	assert.Equal(t, []models.Evidence{{Summary: "up", Link: "u1"}, {Summary: "down", Link: "u2"}}, res.Recommendations[0].Evidence)
}

func TestRankOrdering(t *testing.T) {
	ranked := Rank([]models.WeightedContribution{
		contrib("MID", 1, "a"),
		contrib("ZZZ", 2, "b"),
		contrib("LOW", -1, "c"),
		contrib("AAA", 2, "d"),
		contrib("MID", 0.5, "e"),
	})

	tickers := make([]string, 0, len(ranked))
	for _, r := range ranked {
		tickers = append(tickers, r.Ticker)
	}
	assert.Equal(t, []string{"AAA", "ZZZ", "MID", "LOW"}, tickers)
	assert.Equal(t, 1.5, ranked[2].Score)
	assert.Equal(t, []models.Evidence{{Summary: "a", Link: "l-a"}, {Summary: "e", Link: "l-e"}}, ranked[2].Evidence)
}

func TestRankCaseSensitiveTickers(t *testing.T) {
	ranked := Rank([]models.WeightedContribution{contrib("abc", 1, "a"), contrib("ABC", 1, "b")})
	require.Len(t, ranked, 2)
	assert.Equal(t, "ABC", ranked[0].Ticker)
}

func TestRankEmpty(t *testing.T) {
	ranked := Rank(nil)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
	assert.NotNil(t, RankScopes(nil))
}

func TestRankScopes(t *testing.T) {
	ranked := RankScopes([]models.ScopeContribution{
		{Scope: "oil", Weight: -1},
		{Scope: "ai", Weight: 2},
		{Scope: "oil", Weight: -0.5},
	})
	require.Len(t, ranked, 2)
	assert.Equal(t, "ai", ranked[0].Scope)
	assert.Equal(t, -1.5, ranked[1].Score)
	assert.Len(t, ranked[1].Evidence, 2)
}

func TestTop(t *testing.T) {
	items := []int{1, 2, 3}
	assert.Equal(t, items, Top(items, 0))
	assert.Equal(t, items, Top(items, 10))
	assert.Equal(t, []int{1, 2}, Top(items, 2))
}
