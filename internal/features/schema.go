// Package features builds the per-segment feature table consumed by the
// trainer and predictor.
//
// The column schema is defined once, here, and shared by every region. The
// original workflow this replaces grew features piecemeal per script, which
// silently produced region tables with drifting column sets; the single
// versioned schema plus the explicit mismatch check removes that failure
// mode. A region whose table does not match the reference schema aborts the
// run before training.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/estuarymap/salinity-etl/internal/domain"
)

// SchemaVersion increments whenever the base column set changes. Persisted
// model artifacts record the version they were trained against.
const SchemaVersion = 3

// Base column names, in table order. Geomorphology is one-hot encoded with
// every category present in every region, including the "none" sentinel, even
// when a region has no catchments of that type.
const (
	ColStreamOrder        = "stream_order"
	ColIsMainstem         = "is_mainstem"
	ColDistanceToCoastKm  = "distance_to_coast_km"
	ColLogDrainageAreaKm2 = "log_drainage_area_km2"
	ColInEstuaryCatchment = "in_estuary_catchment"
	ColPhysicsSalinity    = "physics_salinity_psu"
	ColPhysicsDischarge   = "physics_discharge_m3s"
	ColPhysicsTemperature = "physics_temperature_c"
)

// Schema is the fixed, versioned column layout of a feature table.
type Schema struct {
	Version int      `json:"version"`
	Columns []string `json:"columns"`
}

// Reference returns the canonical schema: base columns, the geomorphology
// one-hot block, then any auxiliary columns in sorted order.
func Reference(auxColumns []string) Schema {
	cols := []string{
		ColStreamOrder,
		ColIsMainstem,
		ColDistanceToCoastKm,
		ColLogDrainageAreaKm2,
		ColInEstuaryCatchment,
	}
	for _, g := range domain.GeomorphTypes() {
		cols = append(cols, "geomorph_"+string(g))
	}
	cols = append(cols,
		ColPhysicsSalinity,
		ColPhysicsDischarge,
		ColPhysicsTemperature,
	)

	aux := append([]string(nil), auxColumns...)
	sort.Strings(aux)
	for _, a := range aux {
		cols = append(cols, "aux_"+a)
	}

	return Schema{Version: SchemaVersion, Columns: cols}
}

// Index returns the position of a column, or -1 if absent.
func (s Schema) Index(col string) int {
	for i, c := range s.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have the same version and column sets in
// the same order.
func (s Schema) Equal(other Schema) bool {
	if s.Version != other.Version || len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// SchemaMismatchError reports a region table whose columns diverge from the
// reference schema. It is fatal for the run: the trainer must never silently
// drop or zero-fill columns.
type SchemaMismatchError struct {
	Region  domain.Region
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "feature schema mismatch for region %s", e.Region)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing columns %v", e.Missing)
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ": unexpected columns %v", e.Extra)
	}
	return b.String()
}

// Row is one segment's feature vector, aligned with the table schema.
type Row struct {
	SegmentID string
	Values    []float64
}

// Table is the per-region feature table, one row per segment.
type Table struct {
	Region domain.Region
	Schema Schema
	Rows   []Row
}

// ValidateAgainst checks the table's schema against the reference, returning
// a SchemaMismatchError naming the diverging columns.
func (t Table) ValidateAgainst(ref Schema) error {
	if t.Schema.Equal(ref) {
		return nil
	}

	have := make(map[string]bool, len(t.Schema.Columns))
	for _, c := range t.Schema.Columns {
		have[c] = true
	}
	want := make(map[string]bool, len(ref.Columns))
	for _, c := range ref.Columns {
		want[c] = true
	}

	mismatch := &SchemaMismatchError{Region: t.Region}
	for _, c := range ref.Columns {
		if !have[c] {
			mismatch.Missing = append(mismatch.Missing, c)
		}
	}
	for _, c := range t.Schema.Columns {
		if !want[c] {
			mismatch.Extra = append(mismatch.Extra, c)
		}
	}
	return mismatch
}
