package impact

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ImpactRank/internal/domain/models"
)

func hoursAgo(h float64) time.Time {
	return t0.Add(-time.Duration(h * float64(time.Hour)))
}

// Property: for the same ticker and impact, an older event never weighs more.
func TestProperty_DecayMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("older events have strictly smaller |weight|", prop.ForAll(
		func(base, age, delta, impact float64) bool {
			cfg := DefaultConfig(t0)
			cfg.DecayBase = base
			res := Score([]models.Event{
				asset("A", impact, hoursAgo(age), "", ""),
				asset("A", impact, hoursAgo(age+delta), "", ""),
			}, nil, cfg)
			return math.Abs(res.Contributions[1].Weight) < math.Abs(res.Contributions[0].Weight)
		},
		gen.Float64Range(0.5, 0.999),
		gen.Float64Range(0, 200),
		gen.Float64Range(0.5, 200),
		gen.OneConstOf(-3.0, -1.5, 0.25, 1.0, 3.0),
	))

	properties.TestingRun(t)
}

// Property: identical input yields byte-identical ranked output.
func TestProperty_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	tickers := gen.OneConstOf("AAA", "BBB", "CCC", "DDD")
	locations := gen.OneConstOf("US", "DE", "JP")

	properties.Property("two runs produce the same JSON", prop.ForAll(
		func(assets []string, impacts []float64, located []string, at []string) bool {
			var events []models.Event
			for i, tk := range assets {
				events = append(events, asset(tk, impacts[i%len(impacts)], hoursAgo(float64(i)), fmt.Sprint("s", i), fmt.Sprint("u", i)))
			}
			for i, tk := range located {
				events = append(events, models.LocationAssociation{Ticker: tk, Location: at[i%len(at)]})
			}
			for i, loc := range at {
				events = append(events, macro("m", loc, impacts[i%len(impacts)], hoursAgo(float64(i)/2), "m", "u"))
			}

			first, err := Run(events, DefaultConfig(t0))
			if err != nil {
				return false
			}
			second, err := Run(events, DefaultConfig(t0))
			if err != nil {
				return false
			}
			a, _ := json.Marshal(first.Recommendations)
			b, _ := json.Marshal(second.Recommendations)
			return string(a) == string(b)
		},
		gen.SliceOf(tickers),
		gen.SliceOfN(5, gen.Float64Range(-3, 3)),
		gen.SliceOf(tickers),
		gen.SliceOfN(3, locations),
	))

	properties.TestingRun(t)
}

// Property: a macro event reaches exactly the tickers at its location, each with the same weight.
func TestProperty_MacroFanOut(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("one contribution per located ticker", prop.ForAll(
		func(n int, impact float64) bool {
			events := make([]models.Event, 0, n+1)
			for i := 0; i < n; i++ {
				events = append(events, models.LocationAssociation{Ticker: fmt.Sprintf("T%03d", i), Location: "L"})
			}
			events = append(events, macro("x", "L", impact, hoursAgo(3), "s", "u"))

			res, err := Run(events, DefaultConfig(t0))
			if err != nil || res.Contributions != n || len(res.Recommendations) != n {
				return false
			}
			for _, r := range res.Recommendations {
				if r.Score != res.Recommendations[0].Score {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.Float64Range(-3, 3),
	))

	properties.TestingRun(t)
}
