package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ImpactRank/internal/domain/models"
)

func TestCutoffTime(t *testing.T) {
	assert.Equal(t, t0.Add(-24*time.Hour), CutoffTime(t0, 48))
	assert.Equal(t, t0.Add(-90*time.Minute), CutoffTime(t0, 3))
}

func TestWindowMergeConcatenates(t *testing.T) {
	a := asset("A", 1, t0, "s", "u")
	b := asset("B", 1, t0, "s", "u")
	w := Window{
		Current: []models.Event{a},
		History: []models.Event{b, a},
		Cutoff:  CutoffTime(t0, 48),
	}

	merged := w.Merge()
	assert.Equal(t, []models.Event{a, b, a}, merged)
	assert.Len(t, w.Current, 1)

	assert.Empty(t, Window{}.Merge())
}
