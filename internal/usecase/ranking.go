package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/internal/services/impact"
	applogger "ImpactRank/pkg/logger"
)

// maxLoggedParseErrors caps per-record Warn lines for one batch.
const maxLoggedParseErrors = 10

// RankParams are the per-call inputs of a ranking run. Nil overrides fall
// back to the engine defaults the use case was built with.
type RankParams struct {
	Records         []models.RawRecord
	ReferenceTime   string
	DecayBase       *float64
	HalfLifeHours   *float64
	MaxAgeHours     *float64
	PropagateScopes *bool
	IncludeHistory  bool
	IncludeScopes   bool
	Limit           int
	Source          string
}

// HistoryStatus reports how the history window was filled.
type HistoryStatus struct {
	Requested  bool      `json:"requested"`
	Available  bool      `json:"available"`
	Cutoff     time.Time `json:"cutoff,omitempty"`
	Events     int       `json:"events"`
	Duplicates int       `json:"duplicates"`
}

// RankOutput is the result of one ranking run.
type RankOutput struct {
	RunID           string                       `json:"run_id"`
	ReferenceTime   time.Time                    `json:"reference_time"`
	Recommendations []models.Recommendation      `json:"recommendations"`
	Scopes          []models.ScopeRecommendation `json:"scopes,omitempty"`
	ParseErrors     []impact.ParseError          `json:"parse_errors"`
	Misses          []impact.PropagationMiss     `json:"misses"`
	History         HistoryStatus                `json:"history"`
	CreatedAt       time.Time                    `json:"created_at"`
}

// Ranking converts the output into the persisted/published shape.
func (o *RankOutput) Ranking() *models.Ranking {
	return &models.Ranking{
		RunID:           o.RunID,
		ReferenceTime:   o.ReferenceTime,
		Recommendations: o.Recommendations,
		Scopes:          o.Scopes,
		CreatedAt:       o.CreatedAt,
	}
}

// RankingUseCase parses a batch, widens it with stored history and ranks it.
type RankingUseCase struct {
	defaults       impact.Config
	history        domrepo.EventHistory
	historyTimeout time.Duration
	metrics        domrepo.Metrics
	l              *applogger.Logger
	now            func() time.Time
}

// NewRankingUseCase builds the use case. history may be nil, in which case
// runs use the current batch only.
func NewRankingUseCase(defaults impact.Config, history domrepo.EventHistory, historyTimeout time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *RankingUseCase {
	if l == nil {
		l = applogger.NewNop()
	}
	if historyTimeout <= 0 {
		historyTimeout = 3 * time.Second
	}
	return &RankingUseCase{
		defaults:       defaults,
		history:        history,
		historyTimeout: historyTimeout,
		metrics:        metrics,
		l:              l,
		now:            time.Now,
	}
}

// Config resolves per-call overrides against the defaults and validates the
// result. Errors wrap impact.ErrInvalidConfig.
func (u *RankingUseCase) Config(p RankParams) (impact.Config, error) {
	cfg := u.defaults
	ref, err := impact.ParseReferenceTime(p.ReferenceTime, u.now().UTC())
	if err != nil {
		return impact.Config{}, err
	}
	cfg.ReferenceTime = ref
	if p.DecayBase != nil {
		cfg.DecayBase = *p.DecayBase
	}
	if p.HalfLifeHours != nil {
		cfg.HalfLifeHours = *p.HalfLifeHours
	}
	if p.MaxAgeHours != nil {
		cfg.MaxAgeHours = *p.MaxAgeHours
	}
	if p.PropagateScopes != nil {
		cfg.PropagateScopes = *p.PropagateScopes
	}
	if err := cfg.Validate(); err != nil {
		return impact.Config{}, err
	}
	return cfg, nil
}

// Rank runs one ranking. Only config errors fail the call; bad records are
// reported in the output and an unreachable history store is skipped.
func (u *RankingUseCase) Rank(ctx context.Context, p RankParams) (*RankOutput, error) {
	start := u.now()
	cfg, err := u.Config(p)
	if err != nil {
		u.recordError("invalid_config")
		return nil, err
	}

	current, parseErrs := impact.ParseEvents(p.Records)
	u.reportParseErrors(p.Source, parseErrs)
	if u.metrics != nil {
		u.metrics.RecordEvents(sourceOr(p.Source), len(current))
	}

	window := impact.Window{Current: current}
	status := HistoryStatus{Requested: p.IncludeHistory && u.history != nil}
	if status.Requested {
		mostRecent, ok := models.MostRecent(current)
		if !ok {
			mostRecent = cfg.ReferenceTime
		}
		window.Cutoff = impact.CutoffTime(mostRecent, cfg.MaxAgeHours)
		status.Cutoff = window.Cutoff
		window.History, status.Duplicates, status.Available = u.loadHistory(ctx, window.Cutoff, current)
		status.Events = len(window.History)
	}

	res, err := impact.Run(window.Merge(), cfg)
	if err != nil {
		return nil, err
	}
	for _, m := range res.Misses {
		u.l.Debug("event reached no asset",
			applogger.String("type", string(m.Type)),
			applogger.String("scope", m.Scope),
			applogger.String("location", m.Location),
			applogger.String("link", m.Evidence.Link),
		)
	}

	out := &RankOutput{
		RunID:           uuid.NewString(),
		ReferenceTime:   cfg.ReferenceTime,
		Recommendations: impact.Top(res.Recommendations, p.Limit),
		ParseErrors:     parseErrs,
		Misses:          res.Misses,
		History:         status,
		CreatedAt:       u.now().UTC(),
	}
	if p.IncludeScopes {
		out.Scopes = impact.Top(res.Scopes, p.Limit)
	}
	if out.ParseErrors == nil {
		out.ParseErrors = []impact.ParseError{}
	}
	if out.Misses == nil {
		out.Misses = []impact.PropagationMiss{}
	}

	if u.metrics != nil {
		u.metrics.RecordLatency("rank", u.now().Sub(start).Seconds())
	}
	u.l.Info("ranking run complete",
		applogger.String("run_id", out.RunID),
		applogger.String("source", sourceOr(p.Source)),
		applogger.Int("current", len(current)),
		applogger.Int("history", status.Events),
		applogger.Int("parse_errors", len(parseErrs)),
		applogger.Int("recommendations", len(out.Recommendations)),
		applogger.Int("misses", len(res.Misses)),
	)
	return out, nil
}

// loadHistory fetches and parses history, dropping events already present in
// the current batch or earlier in history. Failures leave history empty.
func (u *RankingUseCase) loadHistory(ctx context.Context, cutoff time.Time, current []models.Event) ([]models.Event, int, bool) {
	hctx, cancel := context.WithTimeout(ctx, u.historyTimeout)
	defer cancel()

	start := u.now()
	raw, err := u.history.GetSince(hctx, cutoff)
	if u.metrics != nil {
		u.metrics.RecordLatency("history_fetch", u.now().Sub(start).Seconds())
	}
	if err != nil {
		u.recordError("history_unavailable")
		u.l.Warn("history unavailable, ranking current batch only",
			applogger.Time("cutoff", cutoff),
			applogger.Error(err),
		)
		return nil, 0, false
	}

	parsed, errs := impact.ParseEvents(raw)
	if len(errs) > 0 {
		u.recordError("history_parse")
		u.l.Warn("skipped unparsable history records", applogger.Int("count", len(errs)))
	}

	seen := make(map[string]struct{}, len(current)+len(parsed))
	for _, e := range current {
		seen[models.Fingerprint(e)] = struct{}{}
	}
	out := make([]models.Event, 0, len(parsed))
	dups := 0
	for _, e := range parsed {
		fp := models.Fingerprint(e)
		if _, ok := seen[fp]; ok {
			dups++
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, e)
	}
	return out, dups, true
}

func (u *RankingUseCase) reportParseErrors(source string, errs []impact.ParseError) {
	for i, pe := range errs {
		u.recordError("parse_" + string(pe.Reason))
		if i < maxLoggedParseErrors {
			u.l.Warn("rejected event record",
				applogger.String("source", sourceOr(source)),
				applogger.Int("index", pe.Index),
				applogger.String("type", pe.Type),
				applogger.String("field", pe.Field),
				applogger.String("reason", string(pe.Reason)),
				applogger.String("detail", pe.Detail),
			)
		}
	}
	if len(errs) > maxLoggedParseErrors {
		u.l.Warn("more rejected event records not logged",
			applogger.Int("omitted", len(errs)-maxLoggedParseErrors))
	}
}

func (u *RankingUseCase) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.RecordError(kind)
	}
}

func sourceOr(s string) string {
	if s == "" {
		return "api"
	}
	return s
}
