// Package source loads the pipeline's inputs from the data directory:
// per-region segment hydrography and estuary catchments as GeoJSON, field
// stations and the gridded physics model as CSV, plus any optional
// auxiliary feature files.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
	"github.com/estuarymap/salinity-etl/internal/grid"
	"github.com/estuarymap/salinity-etl/internal/labels"
)

// Input file names within the data directory. Segments are sharded per
// region as segments_<region>.geojson.
const (
	CatchmentsFile = "catchments.geojson"
	StationsFile   = "stations.csv"
	PhysicsFile    = "physics_grid.csv"

	segmentsPrefix = "segments_"
	auxPrefix      = "aux_"
)

// Loader reads pipeline inputs from a single data directory.
type Loader struct {
	dataDir string
	logger  *slog.Logger
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string, logger *slog.Logger) *Loader {
	return &Loader{dataDir: dataDir, logger: logger}
}

// SegmentsPath returns the segment file path for a region.
func (l *Loader) SegmentsPath(region domain.Region) string {
	return filepath.Join(l.dataDir, segmentsPrefix+string(region)+".geojson")
}

// LoadSegments reads one region's hydrography. Every feature must be a
// LineString carrying the topology properties; a malformed feature fails
// the load rather than being skipped.
func (l *Loader) LoadSegments(region domain.Region) ([]domain.Segment, error) {
	path := l.SegmentsPath(region)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load segments %s: %w", region, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("load segments %s: %w", region, err)
	}

	segments := make([]domain.Segment, 0, len(fc.Features))
	for i, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("load segments %s: feature %d is %T, want LineString", region, i, f.Geometry)
		}
		id := f.Properties.MustString("id", "")
		if id == "" {
			return nil, fmt.Errorf("load segments %s: feature %d has no id", region, i)
		}
		segments = append(segments, domain.Segment{
			ID:                      id,
			Geometry:                line,
			Region:                  region,
			StreamOrder:             f.Properties.MustInt("stream_order", 1),
			IsMainstem:              f.Properties.MustBool("is_mainstem", false),
			DistanceToCoastKm:       f.Properties.MustFloat64("distance_to_coast_km", 0),
			UpstreamDrainageAreaKm2: f.Properties.MustFloat64("upstream_drainage_area_km2", 0),
		})
	}
	l.logger.Info("loaded segments", "region", region, "count", len(segments))
	return segments, nil
}

// LoadCatchments reads the estuary catchment polygons with their
// geomorphology typology.
func (l *Loader) LoadCatchments() ([]features.Catchment, error) {
	raw, err := os.ReadFile(filepath.Join(l.dataDir, CatchmentsFile))
	if err != nil {
		return nil, fmt.Errorf("load catchments: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("load catchments: %w", err)
	}

	catchments := make([]features.Catchment, 0, len(fc.Features))
	for i, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("load catchments: feature %d is %T, want Polygon", i, f.Geometry)
		}
		id := f.Properties.MustString("id", "")
		if id == "" {
			return nil, fmt.Errorf("load catchments: feature %d has no id", i)
		}
		gt, err := domain.ParseGeomorphType(f.Properties.MustString("geomorph_type", ""))
		if err != nil {
			return nil, fmt.Errorf("load catchments: feature %d: %w", i, err)
		}
		catchments = append(catchments, features.Catchment{ID: id, Type: gt, Polygon: poly})
	}
	l.logger.Info("loaded catchments", "count", len(catchments))
	return catchments, nil
}

// LoadStations reads field-station salinity readings. The CSV carries one
// reading per row (station_id, lon, lat, salinity_psu); rows are grouped by
// station. Sentinel and out-of-range readings are left in place for the
// label resolver to sanitize.
func (l *Loader) LoadStations() ([]labels.Station, error) {
	f, err := os.Open(filepath.Join(l.dataDir, StationsFile))
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	col, err := columnIndex(header, "station_id", "lon", "lat", "salinity_psu")
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}

	byID := make(map[string]*labels.Station)
	var order []string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load stations: %w", err)
		}
		id := rec[col["station_id"]]
		lon, errLon := strconv.ParseFloat(rec[col["lon"]], 64)
		lat, errLat := strconv.ParseFloat(rec[col["lat"]], 64)
		psu, errPSU := strconv.ParseFloat(rec[col["salinity_psu"]], 64)
		if errLon != nil || errLat != nil || errPSU != nil {
			return nil, fmt.Errorf("load stations: line %d: malformed numeric field", line)
		}

		st, ok := byID[id]
		if !ok {
			st = &labels.Station{ID: id, Location: orb.Point{lon, lat}}
			byID[id] = st
			order = append(order, id)
		}
		st.ReadingsPSU = append(st.ReadingsPSU, psu)
	}

	stations := make([]labels.Station, 0, len(order))
	for _, id := range order {
		stations = append(stations, *byID[id])
	}
	l.logger.Info("loaded stations", "count", len(stations))
	return stations, nil
}

// LoadPhysicsGrid reads the gridded physics model export: one row per cell
// (lon, lat, salinity_psu, discharge_m3s, temperature_c) on a regular grid.
// Grid geometry is inferred from the distinct coordinates; a row set that
// does not fill a complete rectangle is an error.
func (l *Loader) LoadPhysicsGrid() (*grid.Grid, error) {
	f, err := os.Open(filepath.Join(l.dataDir, PhysicsFile))
	if err != nil {
		return nil, fmt.Errorf("load physics grid: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("load physics grid: %w", err)
	}
	col, err := columnIndex(header, "lon", "lat", "salinity_psu", "discharge_m3s", "temperature_c")
	if err != nil {
		return nil, fmt.Errorf("load physics grid: %w", err)
	}

	var cells []physicsCell
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load physics grid: %w", err)
		}
		var c physicsCell
		fields := []struct {
			name string
			dst  *float64
		}{
			{"lon", &c.lon}, {"lat", &c.lat}, {"salinity_psu", &c.sal},
			{"discharge_m3s", &c.discharge}, {"temperature_c", &c.temper},
		}
		for _, fd := range fields {
			v, err := strconv.ParseFloat(rec[col[fd.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("load physics grid: line %d: bad %s: %w", line, fd.name, err)
			}
			*fd.dst = v
		}
		cells = append(cells, c)
	}

	lons := distinctSorted(cells, func(c physicsCell) float64 { return c.lon })
	lats := distinctSorted(cells, func(c physicsCell) float64 { return c.lat })
	nx, ny := len(lons), len(lats)
	if nx < 2 || ny < 2 {
		return nil, fmt.Errorf("load physics grid: need at least 2x2 cells, got %dx%d", nx, ny)
	}
	if len(cells) != nx*ny {
		return nil, fmt.Errorf("load physics grid: %d rows do not fill a %dx%d rectangle", len(cells), nx, ny)
	}
	cellSize := lons[1] - lons[0]

	g, err := grid.New(lons[0], lats[0], cellSize, nx, ny)
	if err != nil {
		return nil, fmt.Errorf("load physics grid: %w", err)
	}

	lonIdx := indexOf(lons)
	latIdx := indexOf(lats)
	sal := make([]float64, nx*ny)
	discharge := make([]float64, nx*ny)
	temper := make([]float64, nx*ny)
	for _, c := range cells {
		i := latIdx[c.lat]*nx + lonIdx[c.lon]
		sal[i] = c.sal
		discharge[i] = c.discharge
		temper[i] = c.temper
	}
	if err := g.SetLayer(grid.LayerSalinity, sal); err != nil {
		return nil, err
	}
	if err := g.SetLayer(grid.LayerDischarge, discharge); err != nil {
		return nil, err
	}
	if err := g.SetLayer(grid.LayerTemperature, temper); err != nil {
		return nil, err
	}
	l.logger.Info("loaded physics grid", "nx", nx, "ny", ny, "cell_size_deg", cellSize)
	return g, nil
}

// LoadAuxiliary discovers aux_<name>.csv files (segment_id, value) in the
// data directory. A missing aux directory entry is not an error; auxiliary
// features are optional.
func (l *Loader) LoadAuxiliary() ([]features.AuxiliaryFeature, error) {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		return nil, fmt.Errorf("load auxiliary: %w", err)
	}

	var aux []features.AuxiliaryFeature
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, auxPrefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		feat, err := l.loadAuxFile(filepath.Join(l.dataDir, name),
			strings.TrimSuffix(strings.TrimPrefix(name, auxPrefix), ".csv"))
		if err != nil {
			return nil, err
		}
		aux = append(aux, feat)
	}
	sort.Slice(aux, func(i, j int) bool { return aux[i].Name < aux[j].Name })
	return aux, nil
}

func (l *Loader) loadAuxFile(path, name string) (features.AuxiliaryFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return features.AuxiliaryFeature{}, fmt.Errorf("load auxiliary %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return features.AuxiliaryFeature{}, fmt.Errorf("load auxiliary %s: %w", name, err)
	}
	col, err := columnIndex(header, "segment_id", "value")
	if err != nil {
		return features.AuxiliaryFeature{}, fmt.Errorf("load auxiliary %s: %w", name, err)
	}

	values := make(map[string]float64)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return features.AuxiliaryFeature{}, fmt.Errorf("load auxiliary %s: %w", name, err)
		}
		v, err := strconv.ParseFloat(rec[col["value"]], 64)
		if err != nil {
			return features.AuxiliaryFeature{}, fmt.Errorf("load auxiliary %s: line %d: %w", name, line, err)
		}
		values[rec[col["segment_id"]]] = v
	}
	l.logger.Info("loaded auxiliary feature", "name", name, "coverage", len(values))
	return features.AuxiliaryFeature{Name: name, Values: values}, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, r := range required {
		if _, ok := idx[r]; !ok {
			return nil, fmt.Errorf("missing column %q", r)
		}
	}
	return idx, nil
}

type physicsCell struct {
	lon, lat               float64
	sal, discharge, temper float64
}

func distinctSorted(cells []physicsCell, key func(physicsCell) float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, c := range cells {
		v := key(c)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func indexOf(sorted []float64) map[float64]int {
	idx := make(map[float64]int, len(sorted))
	for i, v := range sorted {
		idx[v] = i
	}
	return idx
}
