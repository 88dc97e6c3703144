package models

// Requests for ranking HTTP endpoints. Defined in domain for consistency and reuse.

// RankRequest is the body of POST /api/rank. When the body is raw extractor
// output instead of JSON, the parameters come from the query string.
type RankRequest struct {
	Records         RawRecords `json:"records" validate:"max=10000"`
	ReferenceTime   string     `json:"reference_time"`
	DecayBase       *float64   `json:"decay_base"`
	HalfLifeHours   *float64   `json:"half_life_hours"`
	MaxAgeHours     *float64   `json:"max_age_hours"`
	PropagateScopes *bool      `json:"propagate_scopes"`
	IncludeHistory  *bool      `json:"include_history" default:"true"`
	IncludeScopes   bool       `json:"include_scopes"`
	Limit           int        `json:"limit" default:"0" validate:"gte=0,lte=1000"`
}

type LatestRecommendationsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type TickerRecommendationsRequest struct {
	Ticker string `param:"ticker" json:"ticker" validate:"required,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}
