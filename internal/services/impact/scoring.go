package impact

import "ImpactRank/internal/domain/models"

// PropagationMiss records an event that had no asset to land on.
type PropagationMiss struct {
	Type     models.EventType `json:"type"`
	Scope    string           `json:"scope"`
	Location string           `json:"location,omitempty"`
	Evidence models.Evidence  `json:"evidence"`
}

// ScoreResult holds everything a scoring pass produced.
type ScoreResult struct {
	Contributions      []models.WeightedContribution
	ScopeContributions []models.ScopeContribution
	Misses             []PropagationMiss
}

// Score turns events into decayed contributions against cfg.ReferenceTime.
// cfg is assumed valid; see Run. A nil assoc is built from events.
func Score(events []models.Event, assoc *Associations, cfg Config) ScoreResult {
	if assoc == nil {
		assoc = BuildAssociations(events)
	}
	s := &scorer{assoc: assoc, cfg: cfg}
	for _, e := range events {
		e.Accept(s)
	}
	return s.res
}

type scorer struct {
	assoc *Associations
	cfg   Config
	res   ScoreResult
}

func evidenceOf(r models.Report) models.Evidence {
	return models.Evidence{Summary: r.Summary, Link: r.Link}
}

func (s *scorer) weight(r models.Report) float64 {
	return s.cfg.Decay(r.Timestamp) * r.Impact
}

func (s *scorer) contribute(ticker string, w float64, ev models.Evidence) {
	s.res.Contributions = append(s.res.Contributions, models.WeightedContribution{
		Ticker:   ticker,
		Weight:   w,
		Evidence: ev,
	})
}

func (s *scorer) miss(t models.EventType, scope, location string, ev models.Evidence) {
	s.res.Misses = append(s.res.Misses, PropagationMiss{Type: t, Scope: scope, Location: location, Evidence: ev})
}

func (s *scorer) VisitAsset(e models.AssetEvent) {
	s.contribute(e.Ticker, s.weight(e.Report), evidenceOf(e.Report))
}

func (s *scorer) VisitMacro(e models.MacroEvent) {
	tickers := s.assoc.TickersAt(e.Location)
	ev := evidenceOf(e.Report)
	if len(tickers) == 0 {
		s.miss(models.EventTypeMacro, e.Scope, e.Location, ev)
		return
	}
	w := s.weight(e.Report)
	for _, t := range tickers {
		s.contribute(t, w, ev)
	}
}

func (s *scorer) VisitScope(e models.ScopeEvent) {
	w := s.weight(e.Report)
	ev := evidenceOf(e.Report)
	s.res.ScopeContributions = append(s.res.ScopeContributions, models.ScopeContribution{
		Scope:    e.Scope,
		Location: e.Location,
		Weight:   w,
		Evidence: ev,
	})
	if !s.cfg.PropagateScopes {
		return
	}
	hit := false
	for _, t := range s.assoc.TickersIn(e.Scope) {
		if e.Location != "" && !s.assoc.IsLocatedAt(t, e.Location) {
			continue
		}
		s.contribute(t, w, ev)
		hit = true
	}
	if !hit {
		s.miss(models.EventTypeScope, e.Scope, e.Location, ev)
	}
}

func (s *scorer) VisitTag(models.TagAssociation)           {}
func (s *scorer) VisitLocation(models.LocationAssociation) {}
func (s *scorer) VisitScopeRelation(models.ScopeRelation)  {}
