package impact

import (
	"sort"

	"ImpactRank/internal/domain/models"
)

type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Associations indexes Tag and Location associations both ways.
// It is read-only after BuildAssociations and safe for concurrent readers.
type Associations struct {
	scopesOf    map[string][]string
	locationsOf map[string][]string
	tickersAt   map[string][]string
	tickersIn   map[string][]string
	located     map[string]set // ticker -> locations, for membership checks
	pairs       int
}

// BuildAssociations indexes the association events; other variants are ignored.
// Duplicate associations collapse.
func BuildAssociations(events []models.Event) *Associations {
	b := &graphBuilder{
		scopesOf:    map[string]set{},
		locationsOf: map[string]set{},
		tickersAt:   map[string]set{},
		tickersIn:   map[string]set{},
	}
	for _, e := range events {
		e.Accept(b)
	}
	a := &Associations{
		scopesOf:    freeze(b.scopesOf),
		locationsOf: freeze(b.locationsOf),
		tickersAt:   freeze(b.tickersAt),
		tickersIn:   freeze(b.tickersIn),
		located:     b.locationsOf,
	}
	for _, s := range b.scopesOf {
		a.pairs += len(s)
	}
	for _, s := range b.locationsOf {
		a.pairs += len(s)
	}
	return a
}

func freeze(m map[string]set) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, s := range m {
		out[k] = s.sorted()
	}
	return out
}

// ScopesOf returns the scopes tagged on ticker, sorted.
func (a *Associations) ScopesOf(ticker string) []string { return a.scopesOf[ticker] }

// LocationsOf returns the locations of ticker, sorted.
func (a *Associations) LocationsOf(ticker string) []string { return a.locationsOf[ticker] }

// TickersAt returns the tickers associated with location, sorted.
// The returned slice is shared and must not be modified.
func (a *Associations) TickersAt(location string) []string { return a.tickersAt[location] }

// TickersIn returns the tickers tagged with scope, sorted.
// The returned slice is shared and must not be modified.
func (a *Associations) TickersIn(scope string) []string { return a.tickersIn[scope] }

// IsLocatedAt reports whether ticker has a location association to location.
func (a *Associations) IsLocatedAt(ticker, location string) bool {
	_, ok := a.located[ticker][location]
	return ok
}

// Len returns the number of distinct associations.
func (a *Associations) Len() int { return a.pairs }

type graphBuilder struct {
	scopesOf    map[string]set
	locationsOf map[string]set
	tickersAt   map[string]set
	tickersIn   map[string]set
}

func link(m map[string]set, k, v string) {
	s, ok := m[k]
	if !ok {
		s = set{}
		m[k] = s
	}
	s.add(v)
}

func (b *graphBuilder) VisitTag(e models.TagAssociation) {
	link(b.scopesOf, e.Ticker, e.Scope)
	link(b.tickersIn, e.Scope, e.Ticker)
}

func (b *graphBuilder) VisitLocation(e models.LocationAssociation) {
	link(b.locationsOf, e.Ticker, e.Location)
	link(b.tickersAt, e.Location, e.Ticker)
}

func (b *graphBuilder) VisitAsset(models.AssetEvent)            {}
func (b *graphBuilder) VisitScope(models.ScopeEvent)            {}
func (b *graphBuilder) VisitMacro(models.MacroEvent)            {}
func (b *graphBuilder) VisitScopeRelation(models.ScopeRelation) {}
