package models

import "time"

// EventType is the discriminator carried by every raw record.
type EventType string

const (
	EventTypeAsset         EventType = "Asset"
	EventTypeScope         EventType = "Scope"
	EventTypeMacro         EventType = "Macro"
	EventTypeTag           EventType = "Tag"
	EventTypeLocation      EventType = "Location"
	EventTypeScopeRelation EventType = "ScopeRelation"
)

// EventTypes lists every known variant in a stable order.
var EventTypes = []EventType{
	EventTypeAsset, EventTypeScope, EventTypeMacro,
	EventTypeTag, EventTypeLocation, EventTypeScopeRelation,
}

// Event is a closed set of variants. Consumers dispatch through EventVisitor,
// so adding a variant breaks every consumer until it handles the new case.
type Event interface {
	Type() EventType
	Accept(v EventVisitor)
	sealed()
}

// EventVisitor handles each Event variant.
type EventVisitor interface {
	VisitAsset(e AssetEvent)
	VisitScope(e ScopeEvent)
	VisitMacro(e MacroEvent)
	VisitTag(e TagAssociation)
	VisitLocation(e LocationAssociation)
	VisitScopeRelation(e ScopeRelation)
}

// Report is the evidence and impact shared by the scoring variants.
type Report struct {
	Summary   string
	Link      string
	Timestamp time.Time
	Impact    float64 // [-3, 3]
}

// Details returns the report itself; promoted to the embedding variants.
func (r Report) Details() Report { return r }

// ImpactEvent is implemented by variants that carry a Report.
type ImpactEvent interface {
	Event
	Details() Report
}

// AssetEvent is news directly about a tradable asset.
type AssetEvent struct {
	Report
	Ticker string
	Name   string
}

// ScopeEvent is news about a business scope, optionally tied to a location.
type ScopeEvent struct {
	Report
	Scope    string
	Location string
}

// MacroEvent is news about a scope in a location; it reaches every asset located there.
type MacroEvent struct {
	Report
	Scope    string
	Location string
}

// TagAssociation links an asset to a business scope.
type TagAssociation struct {
	Ticker string
	Scope  string
}

// LocationAssociation links an asset to a location.
type LocationAssociation struct {
	Ticker   string
	Location string
}

// ScopeRelation links two scopes. It is carried through but never scored.
type ScopeRelation struct {
	Scope1 string
	Scope2 string
}

func (AssetEvent) Type() EventType          { return EventTypeAsset }
func (ScopeEvent) Type() EventType          { return EventTypeScope }
func (MacroEvent) Type() EventType          { return EventTypeMacro }
func (TagAssociation) Type() EventType      { return EventTypeTag }
func (LocationAssociation) Type() EventType { return EventTypeLocation }
func (ScopeRelation) Type() EventType       { return EventTypeScopeRelation }

func (e AssetEvent) Accept(v EventVisitor)          { v.VisitAsset(e) }
func (e ScopeEvent) Accept(v EventVisitor)          { v.VisitScope(e) }
func (e MacroEvent) Accept(v EventVisitor)          { v.VisitMacro(e) }
func (e TagAssociation) Accept(v EventVisitor)      { v.VisitTag(e) }
func (e LocationAssociation) Accept(v EventVisitor) { v.VisitLocation(e) }
func (e ScopeRelation) Accept(v EventVisitor)       { v.VisitScopeRelation(e) }

func (AssetEvent) sealed()          {}
func (ScopeEvent) sealed()          {}
func (MacroEvent) sealed()          {}
func (TagAssociation) sealed()      {}
func (LocationAssociation) sealed() {}
func (ScopeRelation) sealed()       {}

// MostRecent returns the latest timestamp among impact events.
func MostRecent(events []Event) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, e := range events {
		ie, ok := e.(ImpactEvent)
		if !ok {
			continue
		}
		ts := ie.Details().Timestamp
		if !found || ts.After(latest) {
			latest, found = ts, true
		}
	}
	return latest, found
}
