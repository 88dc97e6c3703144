package impact

import "ImpactRank/internal/domain/models"

// Result is the output of a full run.
type Result struct {
	Recommendations []models.Recommendation
	Scopes          []models.ScopeRecommendation
	Misses          []PropagationMiss
	Associations    int
	Contributions   int
}

// Run validates cfg, then builds associations, scores and ranks events.
// It is pure: no I/O and no shared state.
func Run(events []models.Event, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	assoc := BuildAssociations(events)
	scored := Score(events, assoc, cfg)
	return &Result{
		Recommendations: Rank(scored.Contributions),
		Scopes:          RankScopes(scored.ScopeContributions),
		Misses:          scored.Misses,
		Associations:    assoc.Len(),
		Contributions:   len(scored.Contributions),
	}, nil
}
