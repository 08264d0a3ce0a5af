package domain

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Region is one of the seven disjoint geographic partitions of the global
// river network. Membership is fixed upstream and never changes between runs;
// it is the partition key for the spatial holdout.
type Region string

const (
	RegionAfrica         Region = "africa"
	RegionAsia           Region = "asia"
	RegionEurope         Region = "europe"
	RegionNorthAmerica   Region = "north_america"
	RegionSouthAmerica   Region = "south_america"
	RegionOceania        Region = "oceania"
	RegionSiberianArctic Region = "siberian_arctic"
)

// Regions returns all seven partitions in a stable order.
func Regions() []Region {
	return []Region{
		RegionAfrica, RegionAsia, RegionEurope, RegionNorthAmerica,
		RegionSouthAmerica, RegionOceania, RegionSiberianArctic,
	}
}

// ParseRegion validates a region name from external input.
func ParseRegion(s string) (Region, error) {
	for _, r := range Regions() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// GeomorphType is the estuary-typology category of the catchment a segment
// falls in. GeomorphNone is the sentinel for segments outside all catchments;
// it is a real category, never imputed away.
type GeomorphType string

const (
	GeomorphDelta       GeomorphType = "delta"
	GeomorphTidalSystem GeomorphType = "tidal_system"
	GeomorphLagoon      GeomorphType = "lagoon"
	GeomorphFjord       GeomorphType = "fjord"
	GeomorphNone        GeomorphType = "none"
)

// GeomorphTypes returns every typology category including the sentinel, in
// the stable order used for one-hot encoding.
func GeomorphTypes() []GeomorphType {
	return []GeomorphType{GeomorphDelta, GeomorphTidalSystem, GeomorphLagoon, GeomorphFjord, GeomorphNone}
}

// ParseGeomorphType validates a typology name from external input.
func ParseGeomorphType(s string) (GeomorphType, error) {
	for _, g := range GeomorphTypes() {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown geomorphology type %q", s)
}

// Segment is the atomic unit of classification: one river-network edge with
// its topology, hydrology, and geomorphology context. Segments are created
// once during feature extraction and enriched additively; no stage mutates
// what an earlier stage wrote.
type Segment struct {
	ID       string         `json:"id"`
	Geometry orb.LineString `json:"-"`
	Region   Region         `json:"region"`

	StreamOrder             int     `json:"stream_order"`
	IsMainstem              bool    `json:"is_mainstem"`
	DistanceToCoastKm       float64 `json:"distance_to_coast_km"`
	UpstreamDrainageAreaKm2 float64 `json:"upstream_drainage_area_km2"`

	InEstuaryCatchment bool         `json:"in_estuary_catchment"`
	GeomorphType       GeomorphType `json:"estuary_geomorphology_type"`

	PhysicsSalinityPSU  float64 `json:"physics_model_salinity_psu"`
	PhysicsDischargeM3s float64 `json:"physics_model_discharge_m3s"`
	PhysicsTemperatureC float64 `json:"physics_model_temperature_c"`

	// MeasuredSalinityPSU is set only when a field station matched within
	// the configured buffer.
	MeasuredSalinityPSU *float64 `json:"measured_salinity_psu,omitempty"`
}

// HasGroundTruth reports whether a field measurement exists for the segment.
func (s Segment) HasGroundTruth() bool {
	return s.MeasuredSalinityPSU != nil
}

// RepresentativePoint returns the location used for spatial joins and grid
// sampling: the midpoint vertex of the polyline.
func (s Segment) RepresentativePoint() orb.Point {
	if len(s.Geometry) == 0 {
		return orb.Point{}
	}
	return s.Geometry[len(s.Geometry)/2]
}

// ClassifiedSegment is the final per-segment output record, the single source
// of truth for downstream consumers.
type ClassifiedSegment struct {
	SegmentID string `json:"segment_id"`
	Region    Region `json:"region"`

	Class      SalinityClass `json:"salinity_class"`
	Method     Method        `json:"classification_method"`
	Confidence Confidence    `json:"confidence_level"`

	// Probability is set only when Method is model_predicted: the ensemble's
	// probability for the predicted class before any override.
	Probability *float64 `json:"prediction_probability,omitempty"`

	// Carried through so the standalone validator can re-check the distance
	// properties without reloading the hydrography.
	DistanceToCoastKm  float64 `json:"distance_to_coast_km"`
	HasGroundTruth     bool    `json:"has_ground_truth"`
	InEstuaryCatchment bool    `json:"in_estuary_catchment"`

	ProcessedAt time.Time `json:"processed_at"`
}
