package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawRecord is an untyped event record as produced by the extraction step.
type RawRecord map[string]any

// RawRecords decodes a JSON array of records, or a single record object.
// Items that are not objects decode to nil records, so one bad item never
// fails the batch and the parser reports it at its index.
type RawRecords []RawRecord

func (r *RawRecords) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*r = nil
		return nil
	}
	if b[0] == '{' {
		var rec RawRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return err
		}
		*r = RawRecords{rec}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(RawRecords, len(items))
	for i, item := range items {
		var rec RawRecord
		if err := json.Unmarshal(item, &rec); err == nil {
			out[i] = rec
		}
	}
	*r = out
	return nil
}

// Canonical keys written by ToRecord. The parser also accepts their aliases.
const (
	KeyType      = "type"
	KeyTicker    = "Ticker"
	KeyName      = "Name"
	KeyAsset     = "Asset"
	KeyScope     = "Scope"
	KeyScope1    = "Scope1"
	KeyScope2    = "Scope2"
	KeyLocation  = "Location"
	KeySummary   = "Summary"
	KeyLink      = "link"
	KeyImpact    = "impact"
	KeyTimestamp = "timestamp"
)

// ToRecord writes an event back in the input-boundary shape.
func ToRecord(e Event) RawRecord {
	enc := recordEncoder{}
	e.Accept(&enc)
	return enc.out
}

// Fingerprint identifies an event by content; equal events share a fingerprint.
func Fingerprint(e Event) string {
	b, _ := json.Marshal(ToRecord(e))
	return string(b)
}

type recordEncoder struct {
	out RawRecord
}

func (r *recordEncoder) report(t EventType, rep Report) {
	r.out = RawRecord{
		KeyType:      string(t),
		KeySummary:   rep.Summary,
		KeyLink:      rep.Link,
		KeyImpact:    rep.Impact,
		KeyTimestamp: rep.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (r *recordEncoder) VisitAsset(e AssetEvent) {
	r.report(EventTypeAsset, e.Report)
	r.out[KeyTicker] = e.Ticker
	if e.Name != "" {
		r.out[KeyName] = e.Name
	}
}

func (r *recordEncoder) VisitScope(e ScopeEvent) {
	r.report(EventTypeScope, e.Report)
	r.out[KeyScope] = e.Scope
	if e.Location != "" {
		r.out[KeyLocation] = e.Location
	}
}

func (r *recordEncoder) VisitMacro(e MacroEvent) {
	r.report(EventTypeMacro, e.Report)
	r.out[KeyScope] = e.Scope
	r.out[KeyLocation] = e.Location
}

func (r *recordEncoder) VisitTag(e TagAssociation) {
	r.out = RawRecord{KeyType: string(EventTypeTag), KeyAsset: e.Ticker, KeyScope: e.Scope}
}

func (r *recordEncoder) VisitLocation(e LocationAssociation) {
	r.out = RawRecord{KeyType: string(EventTypeLocation), KeyAsset: e.Ticker, KeyLocation: e.Location}
}

func (r *recordEncoder) VisitScopeRelation(e ScopeRelation) {
	r.out = RawRecord{KeyType: string(EventTypeScopeRelation), KeyScope1: e.Scope1, KeyScope2: e.Scope2}
}
