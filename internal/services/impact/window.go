package impact

import (
	"time"

	"ImpactRank/internal/domain/models"
	"ImpactRank/pkg/util"
)

// Window is the current batch plus the history fetched for it.
type Window struct {
	Current []models.Event
	History []models.Event
	Cutoff  time.Time
}

// CutoffTime returns mostRecent - maxAgeHours/2.
func CutoffTime(mostRecent time.Time, maxAgeHours float64) time.Time {
	return mostRecent.Add(-util.HoursToDuration(maxAgeHours / 2))
}

// Merge concatenates current then history. It does not de-duplicate.
func (w Window) Merge() []models.Event {
	out := make([]models.Event, 0, len(w.Current)+len(w.History))
	out = append(out, w.Current...)
	return append(out, w.History...)
}
