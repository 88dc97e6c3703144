package impact

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"ImpactRank/pkg/util"
)

var validate = validator.New()

// Config controls one scoring run. It is passed explicitly to every entry point.
type Config struct {
	// ReferenceTime is "now" for decay; required.
	ReferenceTime time.Time
	// DecayBase is the per-hour decay factor.
	DecayBase float64 `default:"0.99" validate:"gt=0,lt=1"`
	// HalfLifeHours overrides DecayBase when positive.
	HalfLifeHours float64 `validate:"gte=0"`
	// MaxAgeHours sizes the history window: cutoff = most recent - MaxAgeHours/2.
	MaxAgeHours float64 `default:"48" validate:"gt=0,lte=87600"`
	// PropagateScopes fans Scope events out to tagged assets.
	PropagateScopes bool
}

// DefaultConfig returns the default config at the given reference time.
func DefaultConfig(ref time.Time) Config {
	c := Config{ReferenceTime: ref}
	_ = defaults.Set(&c)
	return c
}

// Validate reports whether the config can be used for a run.
func (c Config) Validate() error {
	if c.ReferenceTime.IsZero() {
		return configError("reference time is required")
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fe.Field()+" must satisfy "+fe.Tag()+" "+fe.Param())
			}
			return configError("%s", strings.Join(parts, "; "))
		}
		return configError("%v", err)
	}
	return nil
}

// Base returns the effective per-hour decay factor.
func (c Config) Base() float64 {
	if c.HalfLifeHours > 0 {
		return math.Pow(0.5, 1/c.HalfLifeHours)
	}
	return c.DecayBase
}

// Decay returns base^age_hours for ts. Events newer than the reference time get age 0.
func (c Config) Decay(ts time.Time) float64 {
	age := util.HoursBetween(ts, c.ReferenceTime)
	if age <= 0 {
		return 1
	}
	return math.Pow(c.Base(), age)
}

// ParseReferenceTime parses s, falling back to now when s is empty.
func ParseReferenceTime(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return now, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, configError("unparsable reference time %q", s)
	}
	return t, nil
}
