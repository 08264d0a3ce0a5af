package labels

import (
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estuarymap/salinity-etl/internal/domain"
)

func segmentAt(id string, lon, lat float64) domain.Segment {
	return domain.Segment{
		ID:       id,
		Region:   domain.RegionEurope,
		Geometry: orb.LineString{{lon, lat}, {lon + 0.001, lat}},
	}
}

func newTestResolver(t *testing.T, stations []*Station) *Resolver {
	t.Helper()
	r, err := NewResolver(stations, 10, domain.DefaultVeniceThresholds(), slog.Default())
	require.NoError(t, err)
	return r
}

func TestResolve_MatchWithinBuffer(t *testing.T) {
	stations := []*Station{
		{ID: "st-1", Location: orb.Point{0, 0}, ReadingsPSU: []float64{6.0, 7.5, 8.0}},
	}
	r := newTestResolver(t, stations)

	// ~5.5 km east of the station at the equator.
	set := r.Resolve([]domain.Segment{segmentAt("seg-near", 0.05, 0)})

	require.Contains(t, set, "seg-near")
	label := set["seg-near"]
	assert.Equal(t, "st-1", label.StationID)
	assert.Equal(t, 7.5, label.MedianPSU)
	assert.Equal(t, domain.Mesohaline, label.Class)
}

func TestResolve_NoMatchOutsideBuffer(t *testing.T) {
	stations := []*Station{
		{ID: "st-1", Location: orb.Point{0, 0}, ReadingsPSU: []float64{2.0}},
	}
	r := newTestResolver(t, stations)

	// ~55 km away: outside the 10 km buffer.
	set := r.Resolve([]domain.Segment{segmentAt("seg-far", 0.5, 0)})
	assert.NotContains(t, set, "seg-far")
}

func TestResolve_DiscardsFillValueReadings(t *testing.T) {
	stations := []*Station{
		// 999 is a common source-grid sentinel; it must not poison the median.
		{ID: "st-1", Location: orb.Point{0, 0}, ReadingsPSU: []float64{0.2, 0.4, 999.0, -1.0}},
	}
	r := newTestResolver(t, stations)

	set := r.Resolve([]domain.Segment{segmentAt("seg-1", 0.01, 0)})
	require.Contains(t, set, "seg-1")
	label := set["seg-1"]
	assert.InDelta(t, 0.3, label.MedianPSU, 1e-9)
	assert.Equal(t, domain.Freshwater, label.Class)
}

func TestNewResolver_DropsAllSentinelStation(t *testing.T) {
	stations := []*Station{
		{ID: "st-bad", Location: orb.Point{0, 0}, ReadingsPSU: []float64{9999, 9999}},
		{ID: "st-good", Location: orb.Point{1, 1}, ReadingsPSU: []float64{1.0}},
	}
	r := newTestResolver(t, stations)
	assert.Equal(t, 1, r.Stations())

	// The dropped station must not match anything.
	set := r.Resolve([]domain.Segment{segmentAt("seg-1", 0.01, 0)})
	assert.Empty(t, set)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(nil, 0, domain.DefaultVeniceThresholds(), slog.Default())
	assert.Error(t, err)

	_, err = NewResolver(nil, 10, domain.VeniceThresholds{}, slog.Default())
	assert.Error(t, err)
}

func TestResolve_EmptyStationTable(t *testing.T) {
	r := newTestResolver(t, nil)
	set := r.Resolve([]domain.Segment{segmentAt("seg-1", 0, 0)})
	assert.Empty(t, set)
}

func TestSet_Apply(t *testing.T) {
	set := Set{"seg-1": {StationID: "st-1", MedianPSU: 0.3, Class: domain.Freshwater}}

	segments := []domain.Segment{segmentAt("seg-1", 0, 0), segmentAt("seg-2", 1, 1)}
	out := set.Apply(segments)

	require.NotNil(t, out[0].MeasuredSalinityPSU)
	assert.Equal(t, 0.3, *out[0].MeasuredSalinityPSU)
	assert.True(t, out[0].HasGroundTruth())
	assert.Nil(t, out[1].MeasuredSalinityPSU)

	// Inputs must not be mutated.
	assert.Nil(t, segments[0].MeasuredSalinityPSU)
}

func TestSanitizeReadings(t *testing.T) {
	clean := sanitizeReadings([]float64{0.1, 45.1, 30.0, -0.5})
	assert.Equal(t, []float64{0.1, 30.0}, clean)
}
