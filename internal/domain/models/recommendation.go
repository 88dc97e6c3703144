package models

import "time"

// Evidence is the traceable source of a contribution.
type Evidence struct {
	Summary string `json:"summary"`
	Link    string `json:"link"`
}

// Reference renders evidence as "summary -> link".
func (e Evidence) Reference() string {
	return e.Summary + " -> " + e.Link
}

// WeightedContribution is one decayed impact attributed to a ticker.
type WeightedContribution struct {
	Ticker   string
	Weight   float64
	Evidence Evidence
}

// ScopeContribution is one decayed impact attributed to a business scope.
type ScopeContribution struct {
	Scope    string
	Location string
	Weight   float64
	Evidence Evidence
}

// Recommendation is a ranked asset with its aggregated score.
type Recommendation struct {
	Ticker   string     `json:"ticker"`
	Score    float64    `json:"score"`
	Evidence []Evidence `json:"evidence"`
}

// References returns evidence rendered as "summary -> link".
func (r Recommendation) References() []string {
	out := make([]string, 0, len(r.Evidence))
	for _, e := range r.Evidence {
		out = append(out, e.Reference())
	}
	return out
}

// Links returns the non-empty evidence links.
func (r Recommendation) Links() []string {
	out := make([]string, 0, len(r.Evidence))
	for _, e := range r.Evidence {
		if e.Link != "" {
			out = append(out, e.Link)
		}
	}
	return out
}

// ScopeRecommendation is a ranked business scope.
type ScopeRecommendation struct {
	Scope    string     `json:"scope"`
	Score    float64    `json:"score"`
	Evidence []Evidence `json:"evidence"`
}

// RecommendationRecord is a persisted recommendation from one ranking run.
type RecommendationRecord struct {
	RunID      string    `json:"run_id"`
	Rank       int       `json:"rank"`
	Ticker     string    `json:"ticker"`
	Score      float64   `json:"score"`
	References []string  `json:"references"`
	Links      []string  `json:"links"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ranking is the outcome of one ranking run.
// Note: no transport (json/http) concerns here beyond field names.
type Ranking struct {
	RunID           string                `json:"run_id"`
	ReferenceTime   time.Time             `json:"reference_time"`
	Recommendations []Recommendation      `json:"recommendations"`
	Scopes          []ScopeRecommendation `json:"scopes,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// Records flattens the ranking into persisted rows.
func (r Ranking) Records() []RecommendationRecord {
	out := make([]RecommendationRecord, 0, len(r.Recommendations))
	for i, rec := range r.Recommendations {
		out = append(out, RecommendationRecord{
			RunID:      r.RunID,
			Rank:       i + 1,
			Ticker:     rec.Ticker,
			Score:      rec.Score,
			References: rec.References(),
			Links:      rec.Links(),
			CreatedAt:  r.CreatedAt,
		})
	}
	return out
}
