package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/grid"
)

// Catchment is one estuary catchment polygon with its typology label.
type Catchment struct {
	ID      string
	Type    domain.GeomorphType
	Polygon orb.Polygon
}

// AuxiliaryFeature is an optional sparse per-segment feature set keyed by
// segment ID. It must clear the coverage gate before it becomes a column.
type AuxiliaryFeature struct {
	Name   string
	Values map[string]float64
}

// MinAuxCoverage is the fraction of the segment population an auxiliary
// dataset must cover before it may be used as a model feature. Below this,
// models effectively learn from "missing" and bias toward the majority
// class; such datasets are for post-hoc characterization only.
const MinAuxCoverage = 0.5

// CheckAuxCoverage applies the coverage gate to an auxiliary feature set.
func CheckAuxCoverage(aux AuxiliaryFeature, totalSegments int) error {
	if totalSegments <= 0 {
		return fmt.Errorf("auxiliary feature %s: segment population is empty", aux.Name)
	}
	coverage := float64(len(aux.Values)) / float64(totalSegments)
	if coverage < MinAuxCoverage {
		return fmt.Errorf("auxiliary feature %s covers %.0f%% of segments, below the %.0f%% floor for model features",
			aux.Name, coverage*100, MinAuxCoverage*100)
	}
	return nil
}

// Extractor produces one fixed-width feature row per segment, enriching the
// segment with the catchment join on the way. The same extractor instance is
// used for every region so the schema cannot drift between them.
type Extractor struct {
	catchments []Catchment
	physics    *grid.Grid
	aux        []AuxiliaryFeature
	schema     Schema
	logger     *slog.Logger
}

// NewExtractor builds an extractor over the catchment polygon set and the
// gridded physics model. Auxiliary features must have passed the coverage
// gate before being handed in.
func NewExtractor(catchments []Catchment, physics *grid.Grid, aux []AuxiliaryFeature, logger *slog.Logger) (*Extractor, error) {
	for _, layer := range []grid.Layer{grid.LayerSalinity, grid.LayerDischarge, grid.LayerTemperature} {
		if !physics.HasLayer(layer) {
			return nil, fmt.Errorf("physics grid is missing layer %s", layer)
		}
	}

	// The reference schema sorts auxiliary columns by name; the value loop
	// must walk them in the same order.
	aux = append([]AuxiliaryFeature(nil), aux...)
	sort.Slice(aux, func(i, j int) bool { return aux[i].Name < aux[j].Name })

	names := make([]string, len(aux))
	seen := make(map[string]bool, len(aux))
	for i, a := range aux {
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate auxiliary feature %s", a.Name)
		}
		seen[a.Name] = true
		names[i] = a.Name
	}

	return &Extractor{
		catchments: catchments,
		physics:    physics,
		aux:        aux,
		schema:     Reference(names),
		logger:     logger,
	}, nil
}

// Schema returns the reference schema every region table must match.
func (e *Extractor) Schema() Schema { return e.schema }

// ExtractRegion enriches the region's segments with the catchment join and
// physics samples, and builds the region feature table. The returned segments
// replace the inputs downstream; inputs are not mutated.
func (e *Extractor) ExtractRegion(ctx context.Context, region domain.Region, segments []domain.Segment) ([]domain.Segment, Table, error) {
	enriched := make([]domain.Segment, 0, len(segments))
	table := Table{
		Region: region,
		Schema: e.schema,
		Rows:   make([]Row, 0, len(segments)),
	}

	joined := 0
	for i, seg := range segments {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, Table{}, ctx.Err()
		}
		if seg.Region != region {
			return nil, Table{}, fmt.Errorf("segment %s belongs to region %s, not %s", seg.ID, seg.Region, region)
		}

		point := seg.RepresentativePoint()
		seg.InEstuaryCatchment, seg.GeomorphType = e.locateCatchment(point)
		if seg.InEstuaryCatchment {
			joined++
		}

		var err error
		if seg.PhysicsSalinityPSU, err = e.physics.Sample(grid.LayerSalinity, point); err != nil {
			return nil, Table{}, fmt.Errorf("region %s segment %s: %w", region, seg.ID, err)
		}
		if seg.PhysicsDischargeM3s, err = e.physics.Sample(grid.LayerDischarge, point); err != nil {
			return nil, Table{}, fmt.Errorf("region %s segment %s: %w", region, seg.ID, err)
		}
		if seg.PhysicsTemperatureC, err = e.physics.Sample(grid.LayerTemperature, point); err != nil {
			return nil, Table{}, fmt.Errorf("region %s segment %s: %w", region, seg.ID, err)
		}

		table.Rows = append(table.Rows, Row{SegmentID: seg.ID, Values: e.vector(seg)})
		enriched = append(enriched, seg)
	}

	if err := table.ValidateAgainst(e.schema); err != nil {
		return nil, Table{}, err
	}

	e.logger.Info("region features extracted",
		"region", region,
		"segments", len(enriched),
		"in_catchment", joined,
		"columns", len(e.schema.Columns),
	)
	return enriched, table, nil
}

// locateCatchment returns whether the point falls inside any estuary
// catchment and, if so, its typology. Segments outside all catchments get
// the "none" sentinel category, never a guess.
func (e *Extractor) locateCatchment(p orb.Point) (bool, domain.GeomorphType) {
	for _, c := range e.catchments {
		if !c.Polygon.Bound().Contains(p) {
			continue
		}
		if planar.PolygonContains(c.Polygon, p) {
			return true, c.Type
		}
	}
	return false, domain.GeomorphNone
}

// vector builds the feature row for an enriched segment, aligned with the
// reference schema.
func (e *Extractor) vector(seg domain.Segment) []float64 {
	values := make([]float64, 0, len(e.schema.Columns))
	values = append(values,
		float64(seg.StreamOrder),
		boolToFloat(seg.IsMainstem),
		seg.DistanceToCoastKm,
		logDrainageArea(seg.UpstreamDrainageAreaKm2),
		boolToFloat(seg.InEstuaryCatchment),
	)
	for _, g := range domain.GeomorphTypes() {
		values = append(values, boolToFloat(seg.GeomorphType == g))
	}
	values = append(values,
		seg.PhysicsSalinityPSU,
		seg.PhysicsDischargeM3s,
		seg.PhysicsTemperatureC,
	)
	for _, a := range e.aux {
		values = append(values, a.Values[seg.ID])
	}
	return values
}

// logDrainageArea log10-transforms the drainage area, which spans seven
// orders of magnitude across the network. Areas are > 0 by construction
// upstream; the floor guards against degenerate headwater records.
func logDrainageArea(areaKm2 float64) float64 {
	return math.Log10(math.Max(areaKm2, 1e-3))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
