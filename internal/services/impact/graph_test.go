package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ImpactRank/internal/domain/models"
)

func TestBuildAssociations(t *testing.T) {
	assoc := BuildAssociations([]models.Event{
		models.LocationAssociation{Ticker: "ZED", Location: "US"},
		models.LocationAssociation{Ticker: "ABC", Location: "US"},
		models.LocationAssociation{Ticker: "ABC", Location: "US"},
		models.LocationAssociation{Ticker: "ABC", Location: "DE"},
		models.TagAssociation{Ticker: "ABC", Scope: "autos"},
		models.TagAssociation{Ticker: "ZED", Scope: "autos"},
		models.ScopeRelation{Scope1: "autos", Scope2: "steel"},
		models.AssetEvent{Report: models.Report{Timestamp: t0, Impact: 1}, Ticker: "NOPE"},
	})

	assert.Equal(t, []string{"ABC", "ZED"}, assoc.TickersAt("US"))
	assert.Equal(t, []string{"ABC"}, assoc.TickersAt("DE"))
	assert.Empty(t, assoc.TickersAt("FR"))
	assert.Equal(t, []string{"DE", "US"}, assoc.LocationsOf("ABC"))
	assert.Equal(t, []string{"autos"}, assoc.ScopesOf("ABC"))
	assert.Equal(t, []string{"ABC", "ZED"}, assoc.TickersIn("autos"))
	assert.True(t, assoc.IsLocatedAt("ZED", "US"))
	assert.False(t, assoc.IsLocatedAt("ZED", "DE"))
	assert.Empty(t, assoc.LocationsOf("NOPE"))
	assert.Equal(t, 5, assoc.Len())
}

func TestBuildAssociationsEmpty(t *testing.T) {
	assoc := BuildAssociations(nil)
	assert.Equal(t, 0, assoc.Len())
	assert.Empty(t, assoc.TickersAt("US"))
}
