package impact

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig fails a whole call: the run cannot be scored consistently.
var ErrInvalidConfig = errors.New("invalid engine config")

// Reason classifies a per-record parse failure.
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonMissingField     Reason = "missing_field"
	ReasonUnknownType      Reason = "unknown_type"
	ReasonBadTimestamp     Reason = "bad_timestamp"
	ReasonInvalidImpact    Reason = "invalid_impact"
	ReasonImpactOutOfRange Reason = "impact_out_of_range"
)

// ParseError describes one rejected record. The rest of the batch is unaffected.
type ParseError struct {
	Index  int    `json:"index"`
	Type   string `json:"type,omitempty"`
	Field  string `json:"field,omitempty"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (e ParseError) Error() string {
	msg := fmt.Sprintf("record %d", e.Index)
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	msg += ": " + string(e.Reason)
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
