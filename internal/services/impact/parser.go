package impact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"ImpactRank/internal/domain/models"
	"ImpactRank/pkg/util"
)

// DecodeRecords decodes a JSON array of records, or a single record object.
// Markdown code fences around the payload are stripped. Array items that are not
// objects decode to nil records so ParseEvents reports them at their index.
func DecodeRecords(b []byte) ([]models.RawRecord, error) {
	b = stripFences(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] != '[' && b[0] != '{' {
		return nil, fmt.Errorf("decode records: expected JSON array or object")
	}
	var recs models.RawRecords
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return recs, nil
}

func stripFences(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	// drop the opening fence line, e.g. ```json
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	} else {
		b = b[3:]
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}

// ParseEvents converts raw records into typed events. A bad record lands in the
// error list with its index; it never fails the batch.
func ParseEvents(raw []models.RawRecord) ([]models.Event, []ParseError) {
	events := make([]models.Event, 0, len(raw))
	var errs []ParseError
	for i, rec := range raw {
		ev, perr := parseRecord(rec)
		if perr != nil {
			perr.Index = i
			errs = append(errs, *perr)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func parseRecord(rec models.RawRecord) (models.Event, *ParseError) {
	if rec == nil {
		return nil, &ParseError{Reason: ReasonMalformed, Detail: "record is not an object"}
	}
	r := recordReader{fields: foldKeys(rec)}
	rawType := r.str("type")
	if rawType == "" {
		return nil, &ParseError{Field: "type", Reason: ReasonMissingField}
	}
	typ, ok := lookupType(rawType)
	if !ok {
		return nil, &ParseError{Type: rawType, Field: "type", Reason: ReasonUnknownType}
	}
	r.typ = typ

	var ev models.Event
	switch typ {
	case models.EventTypeAsset:
		e := models.AssetEvent{
			Ticker: r.required("ticker", "ticker", "asset"),
			Name:   r.str("name"),
		}
		e.Report = r.report()
		ev = e
	case models.EventTypeScope:
		e := models.ScopeEvent{
			Scope:    r.required("scope", "scope"),
			Location: r.str("location"),
		}
		e.Report = r.report()
		ev = e
	case models.EventTypeMacro:
		e := models.MacroEvent{
			Scope:    r.required("scope", "scope"),
			Location: r.required("location", "location"),
		}
		e.Report = r.report()
		ev = e
	case models.EventTypeTag:
		ev = models.TagAssociation{
			Ticker: r.required("ticker", "asset", "ticker"),
			Scope:  r.required("scope", "scope"),
		}
	case models.EventTypeLocation:
		ev = models.LocationAssociation{
			Ticker:   r.required("ticker", "asset", "ticker"),
			Location: r.required("location", "location", "scope"),
		}
	case models.EventTypeScopeRelation:
		ev = models.ScopeRelation{
			Scope1: r.required("scope1", "scope1"),
			Scope2: r.required("scope2", "scope2"),
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}

func lookupType(s string) (models.EventType, bool) {
	for _, t := range models.EventTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// foldKeys lower-cases keys. On collisions the first non-nil value in sorted
// key order wins, so "Location" beats "location".
func foldKeys(rec models.RawRecord) map[string]any {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(rec))
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if prev, ok := out[lk]; ok && prev != nil {
			continue
		}
		out[lk] = rec[k]
	}
	return out
}

// recordReader keeps the first failure so a record reports one reason.
type recordReader struct {
	fields map[string]any
	typ    models.EventType
	err    *ParseError
}

func (r *recordReader) fail(field string, reason Reason, detail string) {
	if r.err == nil {
		r.err = &ParseError{Type: string(r.typ), Field: field, Reason: reason, Detail: detail}
	}
}

// str returns the first non-empty value among keys.
func (r *recordReader) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r.fields[k]
		if !ok || v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (r *recordReader) required(field string, keys ...string) string {
	s := r.str(keys...)
	if s == "" {
		r.fail(field, ReasonMissingField, "")
	}
	return s
}

func (r *recordReader) report() models.Report {
	return models.Report{
		Summary:   r.str("summary"),
		Link:      r.str("link", "url"),
		Timestamp: r.timestamp(),
		Impact:    r.impact(),
	}
}

func (r *recordReader) timestamp() time.Time {
	v, ok := r.fields["timestamp"]
	if !ok || v == nil {
		r.fail("timestamp", ReasonMissingField, "")
		return time.Time{}
	}
	if t, ok := v.(time.Time); ok {
		return t
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		r.fail("timestamp", ReasonBadTimestamp, err.Error())
		return time.Time{}
	}
	if strings.TrimSpace(s) == "" {
		r.fail("timestamp", ReasonMissingField, "")
		return time.Time{}
	}
	t, ok := util.ParseTime(s)
	if !ok {
		r.fail("timestamp", ReasonBadTimestamp, s)
		return time.Time{}
	}
	return t
}

func (r *recordReader) impact() float64 {
	v, ok := r.fields["impact"]
	if !ok || v == nil {
		r.fail("impact", ReasonMissingField, "")
		return 0
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		r.fail("impact", ReasonMissingField, "")
		return 0
	}
	if _, isBool := v.(bool); isBool {
		r.fail("impact", ReasonInvalidImpact, "boolean")
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		r.fail("impact", ReasonInvalidImpact, err.Error())
		return 0
	}
	// written this way so NaN is rejected too
	if !(f >= MinImpact && f <= MaxImpact) {
		r.fail("impact", ReasonImpactOutOfRange, fmt.Sprintf("%v not in [%v, %v]", f, MinImpact, MaxImpact))
		return 0
	}
	return f
}

// Impact bounds. Values outside are rejected, never clamped.
const (
	MinImpact = -3.0
	MaxImpact = 3.0
)
