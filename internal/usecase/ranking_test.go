package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	"ImpactRank/internal/services/impact"
)

func newRanking(h *fakeHistory, m *fakeMetrics) *RankingUseCase {
	var (
		history domrepo.EventHistory
		metrics domrepo.Metrics
	)
	if h != nil {
		history = h
	}
	if m != nil {
		metrics = m
	}
	uc := NewRankingUseCase(impact.DefaultConfig(time.Time{}), history, time.Second, metrics, nil)
	uc.now = func() time.Time { return refTime }
	return uc
}

func TestRank_CurrentBatchOnly(t *testing.T) {
	m := newFakeMetrics()
	uc := newRanking(nil, m)

	out, err := uc.Rank(context.Background(), RankParams{
		Records: []models.RawRecord{
			assetRec("XYZ", 1, refString),
			assetRec("ABC", 2, refString),
		},
		ReferenceTime:  refString,
		IncludeHistory: true,
	})
	require.NoError(t, err)

	require.Len(t, out.Recommendations, 2)
	assert.Equal(t, "ABC", out.Recommendations[0].Ticker)
	assert.InDelta(t, 2.0, out.Recommendations[0].Score, 1e-9)
	assert.Equal(t, "XYZ", out.Recommendations[1].Ticker)
	assert.False(t, out.History.Requested)
	assert.NotEmpty(t, out.RunID)
	assert.Empty(t, out.ParseErrors)
	assert.NotNil(t, out.Misses)
	assert.Equal(t, 2, m.events["api"])
	assert.Equal(t, 1, m.ops["rank"])
}

func TestRank_DefaultsReferenceTimeToNow(t *testing.T) {
	uc := newRanking(nil, nil)
	out, err := uc.Rank(context.Background(), RankParams{
		Records: []models.RawRecord{assetRec("XYZ", 1, "2024-05-01T11:00:00Z")},
	})
	require.NoError(t, err)
	assert.True(t, out.ReferenceTime.Equal(refTime))
	require.Len(t, out.Recommendations, 1)
	assert.InDelta(t, 0.99, out.Recommendations[0].Score, 1e-9)
}

func TestRank_HistoryWidensAssociationsAndDedupes(t *testing.T) {
	h := &fakeHistory{records: []models.RawRecord{
		locationRec("XYZ", "US"),
		assetRec("ABC", 1, refString), // same as current
	}}
	uc := newRanking(h, newFakeMetrics())

	out, err := uc.Rank(context.Background(), RankParams{
		Records: []models.RawRecord{
			macroRec("US", "banking", 2, refString),
			assetRec("ABC", 1, refString),
		},
		ReferenceTime:  refString,
		IncludeHistory: true,
	})
	require.NoError(t, err)

	require.Len(t, h.cutoffs, 1)
	assert.True(t, h.cutoffs[0].Equal(refTime.Add(-24*time.Hour)))
	assert.True(t, out.History.Available)
	assert.Equal(t, 1, out.History.Events)
	assert.Equal(t, 1, out.History.Duplicates)

	require.Len(t, out.Recommendations, 2)
	assert.Equal(t, "XYZ", out.Recommendations[0].Ticker)
	assert.InDelta(t, 2.0, out.Recommendations[0].Score, 1e-9)
	assert.Equal(t, "ABC", out.Recommendations[1].Ticker)
	assert.InDelta(t, 1.0, out.Recommendations[1].Score, 1e-9)
	assert.Empty(t, out.Misses)
}

func TestRank_HistoryCutoffUsesMostRecentEvent(t *testing.T) {
	h := &fakeHistory{}
	uc := newRanking(h, nil)
	_, err := uc.Rank(context.Background(), RankParams{
		Records:        []models.RawRecord{assetRec("XYZ", 1, "2024-04-30T12:00:00Z")},
		ReferenceTime:  refString,
		MaxAgeHours:    ptr(10.0),
		IncludeHistory: true,
	})
	require.NoError(t, err)
	require.Len(t, h.cutoffs, 1)
	assert.True(t, h.cutoffs[0].Equal(time.Date(2024, 4, 30, 7, 0, 0, 0, time.UTC)))
}

func TestRank_HistoryFailureIsFailOpen(t *testing.T) {
	m := newFakeMetrics()
	h := &fakeHistory{err: errors.New("clickhouse down")}
	uc := newRanking(h, m)

	out, err := uc.Rank(context.Background(), RankParams{
		Records:        []models.RawRecord{macroRec("US", "banking", 2, refString)},
		ReferenceTime:  refString,
		IncludeHistory: true,
	})
	require.NoError(t, err)
	assert.True(t, out.History.Requested)
	assert.False(t, out.History.Available)
	assert.Empty(t, out.Recommendations)
	require.Len(t, out.Misses, 1)
	assert.Equal(t, "US", out.Misses[0].Location)
	assert.Equal(t, 1, m.errors["history_unavailable"])
}

func TestRank_HistoryNotRequested(t *testing.T) {
	h := &fakeHistory{}
	uc := newRanking(h, nil)
	out, err := uc.Rank(context.Background(), RankParams{
		Records:       []models.RawRecord{assetRec("XYZ", 1, refString)},
		ReferenceTime: refString,
	})
	require.NoError(t, err)
	assert.Empty(t, h.cutoffs)
	assert.False(t, out.History.Requested)
}

func TestRank_ParseErrorsDoNotFailBatch(t *testing.T) {
	m := newFakeMetrics()
	uc := newRanking(nil, m)
	out, err := uc.Rank(context.Background(), RankParams{
		Records: []models.RawRecord{
			assetRec("XYZ", 1, refString),
			{"type": "Asset", "Ticker": "BAD", "impact": 9, "timestamp": refString},
			{"type": "Comet"},
		},
		ReferenceTime: refString,
	})
	require.NoError(t, err)
	require.Len(t, out.Recommendations, 1)
	require.Len(t, out.ParseErrors, 2)
	assert.Equal(t, 1, out.ParseErrors[0].Index)
	assert.Equal(t, impact.ReasonImpactOutOfRange, out.ParseErrors[0].Reason)
	assert.Equal(t, impact.ReasonUnknownType, out.ParseErrors[1].Reason)
	assert.Equal(t, 1, m.errors["parse_impact_out_of_range"])
	assert.Equal(t, 1, m.errors["parse_unknown_type"])
}

func TestRank_InvalidConfig(t *testing.T) {
	uc := newRanking(nil, newFakeMetrics())
	cases := map[string]RankParams{
		"decay base above one": {DecayBase: ptr(1.5)},
		"zero max age":         {MaxAgeHours: ptr(0.0)},
		"negative half life":   {HalfLifeHours: ptr(-1.0)},
		"bad reference time":   {ReferenceTime: "yesterday-ish"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Rank(context.Background(), p)
			require.Error(t, err)
			assert.ErrorIs(t, err, impact.ErrInvalidConfig)
		})
	}
}

func TestRank_LimitAndScopes(t *testing.T) {
	uc := newRanking(nil, nil)
	out, err := uc.Rank(context.Background(), RankParams{
		Records: []models.RawRecord{
			assetRec("A", 3, refString),
			assetRec("B", 2, refString),
			assetRec("C", 1, refString),
			{"type": "Scope", "Scope": "banking", "Summary": "s", "link": "l", "impact": 1, "timestamp": refString},
		},
		ReferenceTime: refString,
		IncludeScopes: true,
		Limit:         2,
	})
	require.NoError(t, err)
	require.Len(t, out.Recommendations, 2)
	assert.Equal(t, "A", out.Recommendations[0].Ticker)
	assert.Equal(t, "B", out.Recommendations[1].Ticker)
	require.Len(t, out.Scopes, 1)
	assert.Equal(t, "banking", out.Scopes[0].Scope)
}

func TestRank_PropagateScopesOverride(t *testing.T) {
	uc := newRanking(nil, nil)
	records := []models.RawRecord{
		{"type": "Tag", "Asset": "XYZ", "Scope": "banking"},
		{"type": "Scope", "Scope": "banking", "Summary": "s", "link": "l", "impact": 1, "timestamp": refString},
	}

	off, err := uc.Rank(context.Background(), RankParams{Records: records, ReferenceTime: refString})
	require.NoError(t, err)
	assert.Empty(t, off.Recommendations)

	on, err := uc.Rank(context.Background(), RankParams{Records: records, ReferenceTime: refString, PropagateScopes: ptr(true)})
	require.NoError(t, err)
	require.Len(t, on.Recommendations, 1)
	assert.Equal(t, "XYZ", on.Recommendations[0].Ticker)
}

func TestRankOutput_Ranking(t *testing.T) {
	out := &RankOutput{
		RunID:           "r1",
		ReferenceTime:   refTime,
		Recommendations: []models.Recommendation{{Ticker: "XYZ", Score: 1}},
		CreatedAt:       refTime,
	}
	r := out.Ranking()
	assert.Equal(t, "r1", r.RunID)
	require.Len(t, r.Records(), 1)
	assert.Equal(t, 1, r.Records()[0].Rank)
}

func ptr[T any](v T) *T { return &v }
