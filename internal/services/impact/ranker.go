package impact

import (
	"sort"

	"ImpactRank/internal/domain/models"
)

type accumulator struct {
	key      string
	score    float64
	evidence []models.Evidence
}

// accumulate groups by key in one pass. Evidence keeps insertion order.
func accumulate(n int, at func(i int) (string, float64, models.Evidence)) []*accumulator {
	index := make(map[string]*accumulator)
	order := make([]*accumulator, 0)
	for i := 0; i < n; i++ {
		key, w, ev := at(i)
		acc, ok := index[key]
		if !ok {
			acc = &accumulator{key: key}
			index[key] = acc
			order = append(order, acc)
		}
		acc.score += w
		acc.evidence = append(acc.evidence, ev)
	}
	// score desc, key asc on ties
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].key < order[j].key
	})
	return order
}

// Rank sums contributions per ticker and orders the result.
func Rank(contribs []models.WeightedContribution) []models.Recommendation {
	accs := accumulate(len(contribs), func(i int) (string, float64, models.Evidence) {
		c := contribs[i]
		return c.Ticker, c.Weight, c.Evidence
	})
	out := make([]models.Recommendation, 0, len(accs))
	for _, a := range accs {
		out = append(out, models.Recommendation{Ticker: a.key, Score: a.score, Evidence: a.evidence})
	}
	return out
}

// RankScopes sums scope contributions per scope and orders the result.
func RankScopes(contribs []models.ScopeContribution) []models.ScopeRecommendation {
	accs := accumulate(len(contribs), func(i int) (string, float64, models.Evidence) {
		c := contribs[i]
		return c.Scope, c.Weight, c.Evidence
	})
	out := make([]models.ScopeRecommendation, 0, len(accs))
	for _, a := range accs {
		out = append(out, models.ScopeRecommendation{Scope: a.key, Score: a.score, Evidence: a.evidence})
	}
	return out
}

// Top returns the first n items; n <= 0 keeps all.
func Top[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
