// Package labels resolves ground-truth salinity labels by matching segments
// to field measurement stations and classifying the aggregated readings
// against Venice-System thresholds.
package labels

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
	"gonum.org/v1/gonum/stat"

	"github.com/estuarymap/salinity-etl/internal/domain"
)

// MaxPlausiblePSU is the cap above which a raw reading is treated as a
// fill-value artifact and discarded before aggregation. Open-ocean salinity
// tops out around 42 PSU; source grids use sentinels like 999 or 9999.
const MaxPlausiblePSU = 45.0

// Station is one field measurement station with its temporal salinity readings.
type Station struct {
	ID          string
	Location    orb.Point
	ReadingsPSU []float64
}

// Point implements orb.Pointer for quadtree indexing.
func (s *Station) Point() orb.Point { return s.Location }

// Label is a resolved ground-truth label for one segment.
type Label struct {
	StationID string
	MedianPSU float64
	Class     domain.SalinityClass
}

// Set maps segment IDs to their resolved labels. Segments absent from the
// set have no ground truth and become prediction targets.
type Set map[string]Label

// Resolver matches segments to stations within a fixed spatial buffer.
type Resolver struct {
	tree       *quadtree.Quadtree
	bufferKm   float64
	thresholds domain.VeniceThresholds
	logger     *slog.Logger

	stations  int
	discarded int // stations dropped entirely: no plausible readings
}

// NewResolver indexes the station table. Stations whose readings are all
// implausible are dropped with a warning; they would otherwise match
// segments with a garbage label.
func NewResolver(stations []*Station, bufferKm float64, thresholds domain.VeniceThresholds, logger *slog.Logger) (*Resolver, error) {
	if bufferKm <= 0 {
		return nil, fmt.Errorf("station buffer must be positive, got %g km", bufferKm)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	r := &Resolver{bufferKm: bufferKm, thresholds: thresholds, logger: logger}

	var points orb.MultiPoint
	kept := make([]*Station, 0, len(stations))
	for _, s := range stations {
		clean := sanitizeReadings(s.ReadingsPSU)
		if len(clean) == 0 {
			r.discarded++
			logger.Warn("station has no plausible readings, dropping",
				"station", s.ID, "raw_readings", len(s.ReadingsPSU))
			continue
		}
		kept = append(kept, &Station{ID: s.ID, Location: s.Location, ReadingsPSU: clean})
		points = append(points, s.Location)
	}

	if len(kept) > 0 {
		r.tree = quadtree.New(points.Bound())
		for _, s := range kept {
			if err := r.tree.Add(s); err != nil {
				return nil, fmt.Errorf("index station %s: %w", s.ID, err)
			}
		}
	}
	r.stations = len(kept)
	return r, nil
}

// Stations returns the number of usable indexed stations.
func (r *Resolver) Stations() int { return r.stations }

// Resolve labels every segment with a station match within the buffer.
// Unmatched segments are simply absent from the returned set.
func (r *Resolver) Resolve(segments []domain.Segment) Set {
	set := make(Set)
	if r.tree == nil {
		return set
	}

	for _, seg := range segments {
		point := seg.RepresentativePoint()
		nearest := r.tree.KNearest(nil, point, 1)
		if len(nearest) == 0 {
			continue
		}
		station := nearest[0].(*Station)
		if geo.Distance(point, station.Location) > r.bufferKm*1000 {
			continue
		}

		median := medianPSU(station.ReadingsPSU)
		set[seg.ID] = Label{
			StationID: station.ID,
			MedianPSU: median,
			Class:     domain.ClassifySalinity(median, r.thresholds),
		}
	}

	r.logger.Info("ground-truth labels resolved",
		"segments", len(segments),
		"labeled", len(set),
		"stations", r.stations,
		"stations_discarded", r.discarded,
	)
	return set
}

// Apply writes the measured salinity back onto matched segments, returning
// the enriched copy.
func (s Set) Apply(segments []domain.Segment) []domain.Segment {
	out := make([]domain.Segment, len(segments))
	for i, seg := range segments {
		if label, ok := s[seg.ID]; ok {
			psu := label.MedianPSU
			seg.MeasuredSalinityPSU = &psu
		}
		out[i] = seg
	}
	return out
}

// sanitizeReadings drops negative values and fill-value artifacts before
// aggregation.
func sanitizeReadings(readings []float64) []float64 {
	clean := make([]float64, 0, len(readings))
	for _, v := range readings {
		if v < 0 || v > MaxPlausiblePSU {
			continue
		}
		clean = append(clean, v)
	}
	return clean
}

// medianPSU aggregates a station's temporal readings into one representative
// value. Median rather than mean: station records mix tidal phases and the
// distribution is heavy-tailed toward spring-tide intrusion events.
func medianPSU(readings []float64) float64 {
	sorted := append([]float64(nil), readings...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return stat.Mean(sorted[n/2-1:n/2+1], nil)
	}
	return sorted[n/2]
}
