package impact

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/domain/models"
)

func asset(ticker string, impact float64, ts time.Time, summary, link string) models.AssetEvent {
	return models.AssetEvent{
		Report: models.Report{Summary: summary, Link: link, Timestamp: ts, Impact: impact},
		Ticker: ticker,
	}
}

func macro(scope, location string, impact float64, ts time.Time, summary, link string) models.MacroEvent {
	return models.MacroEvent{
		Report:   models.Report{Summary: summary, Link: link, Timestamp: ts, Impact: impact},
		Scope:    scope,
		Location: location,
	}
}

func TestScoreZeroAgeIdentity(t *testing.T) {
	cfg := DefaultConfig(t0)
	res := Score([]models.Event{asset("A", -2.7, t0, "", "")}, nil, cfg)
	require.Len(t, res.Contributions, 1)
	assert.Equal(t, -2.7, res.Contributions[0].Weight)
	assert.Equal(t, 1.0, cfg.Decay(t0))
}

func TestScoreDecay(t *testing.T) {
	cfg := DefaultConfig(t0)
	res := Score([]models.Event{asset("A", 2, t0.Add(-10*time.Hour), "", "")}, nil, cfg)
	require.Len(t, res.Contributions, 1)
	assert.InDelta(t, 2*math.Pow(0.99, 10), res.Contributions[0].Weight, 1e-12)
}

func TestScoreFutureTimestampClamped(t *testing.T) {
	cfg := DefaultConfig(t0)
	assert.Equal(t, 1.0, cfg.Decay(t0.Add(5*time.Hour)))

	res := Score([]models.Event{asset("A", 1.5, t0.Add(time.Hour), "", "")}, nil, cfg)
	assert.Equal(t, 1.5, res.Contributions[0].Weight)
}

func TestScoreHalfLife(t *testing.T) {
	cfg := DefaultConfig(t0)
	cfg.HalfLifeHours = 12
	assert.InDelta(t, 0.5, cfg.Decay(t0.Add(-12*time.Hour)), 1e-12)
	assert.InDelta(t, 0.25, cfg.Decay(t0.Add(-24*time.Hour)), 1e-12)
}

func TestScoreMacroFanOut(t *testing.T) {
	events := []models.Event{
		models.LocationAssociation{Ticker: "CCC", Location: "L"},
		models.LocationAssociation{Ticker: "AAA", Location: "L"},
		models.LocationAssociation{Ticker: "BBB", Location: "L"},
		models.LocationAssociation{Ticker: "DDD", Location: "M"},
		macro("energy", "L", 3, t0.Add(-2*time.Hour), "pipeline", "u"),
	}

	res := Score(events, nil, DefaultConfig(t0))
	require.Len(t, res.Contributions, 3)
	assert.Empty(t, res.Misses)

	w := res.Contributions[0].Weight
	for i, want := range []string{"AAA", "BBB", "CCC"} {
		assert.Equal(t, want, res.Contributions[i].Ticker)
		assert.Equal(t, w, res.Contributions[i].Weight)
		assert.Equal(t, models.Evidence{Summary: "pipeline", Link: "u"}, res.Contributions[i].Evidence)
	}

	ranked := Rank(res.Contributions)
	require.Len(t, ranked, 3)
	for _, r := range ranked {
		assert.Equal(t, w, r.Score)
	}
}

func TestScoreDanglingMacro(t *testing.T) {
	events := []models.Event{
		asset("A", 1, t0, "s", "u"),
		models.LocationAssociation{Ticker: "A", Location: "US"},
		macro("oil", "Atlantis", -3, t0, "flood", "u2"),
	}

	res := Score(events, nil, DefaultConfig(t0))
	assert.Len(t, res.Contributions, 1)
	require.Len(t, res.Misses, 1)
	assert.Equal(t, models.EventTypeMacro, res.Misses[0].Type)
	assert.Equal(t, "Atlantis", res.Misses[0].Location)
	assert.Len(t, Rank(res.Contributions), 1)
}

func TestScoreAssociationsNeverScore(t *testing.T) {
	res := Score([]models.Event{
		models.TagAssociation{Ticker: "A", Scope: "x"},
		models.LocationAssociation{Ticker: "A", Location: "US"},
		models.ScopeRelation{Scope1: "x", Scope2: "y"},
	}, nil, DefaultConfig(t0))
	assert.Empty(t, res.Contributions)
	assert.Empty(t, res.ScopeContributions)
	assert.Empty(t, res.Misses)
}

func TestScoreScopeEvents(t *testing.T) {
	scope := models.ScopeEvent{
		Report:   models.Report{Summary: "chip ban", Link: "u", Timestamp: t0, Impact: -2},
		Scope:    "chips",
		Location: "US",
	}
	events := []models.Event{
		models.TagAssociation{Ticker: "NVX", Scope: "chips"},
		models.TagAssociation{Ticker: "TSX", Scope: "chips"},
		models.LocationAssociation{Ticker: "NVX", Location: "US"},
		models.LocationAssociation{Ticker: "TSX", Location: "TW"},
		scope,
	}

	t.Run("kept separate by default", func(t *testing.T) {
		res := Score(events, nil, DefaultConfig(t0))
		assert.Empty(t, res.Contributions)
		require.Len(t, res.ScopeContributions, 1)
		assert.Equal(t, "chips", res.ScopeContributions[0].Scope)
		assert.Equal(t, -2.0, res.ScopeContributions[0].Weight)
	})

	t.Run("propagated when enabled", func(t *testing.T) {
		cfg := DefaultConfig(t0)
		cfg.PropagateScopes = true
		res := Score(events, nil, cfg)
		require.Len(t, res.Contributions, 1)
		assert.Equal(t, "NVX", res.Contributions[0].Ticker)
		assert.Len(t, res.ScopeContributions, 1)
	})

	t.Run("propagation without location filter", func(t *testing.T) {
		cfg := DefaultConfig(t0)
		cfg.PropagateScopes = true
		noLoc := scope
		noLoc.Location = ""
		res := Score(append(events[:4:4], noLoc), nil, cfg)
		assert.Len(t, res.Contributions, 2)
	})

	t.Run("propagation miss", func(t *testing.T) {
		cfg := DefaultConfig(t0)
		cfg.PropagateScopes = true
		res := Score([]models.Event{scope}, nil, cfg)
		assert.Empty(t, res.Contributions)
		require.Len(t, res.Misses, 1)
		assert.Equal(t, models.EventTypeScope, res.Misses[0].Type)
	})
}
