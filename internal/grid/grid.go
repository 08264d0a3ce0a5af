// Package grid samples a coarse regular lat/lon grid of hydrological model
// outputs (salinity, discharge, water temperature) at arbitrary points.
// The grid is continuous and global, so sampling never produces a missing
// value; out-of-bounds points clamp to the nearest cell.
package grid

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Layer identifies one variable of the gridded physics model.
type Layer string

const (
	LayerSalinity    Layer = "salinity_psu"
	LayerDischarge   Layer = "discharge_m3s"
	LayerTemperature Layer = "temperature_c"
)

// Grid is a regular lat/lon raster with one value slab per layer, stored
// row-major from the south-west corner.
type Grid struct {
	MinLon, MinLat float64
	CellSize       float64 // degrees per cell, same in both axes
	NX, NY         int

	layers map[Layer][]float64
}

// New creates an empty grid covering NX x NY cells from the south-west corner.
func New(minLon, minLat, cellSize float64, nx, ny int) (*Grid, error) {
	if cellSize <= 0 || nx <= 1 || ny <= 1 {
		return nil, fmt.Errorf("grid requires cell size > 0 and at least 2x2 cells, got %g %dx%d", cellSize, nx, ny)
	}
	return &Grid{
		MinLon:   minLon,
		MinLat:   minLat,
		CellSize: cellSize,
		NX:       nx,
		NY:       ny,
		layers:   make(map[Layer][]float64),
	}, nil
}

// SetLayer installs the value slab for a layer. The slab length must equal
// NX*NY.
func (g *Grid) SetLayer(layer Layer, values []float64) error {
	if len(values) != g.NX*g.NY {
		return fmt.Errorf("layer %s: expected %d values, got %d", layer, g.NX*g.NY, len(values))
	}
	g.layers[layer] = values
	return nil
}

// HasLayer reports whether the layer has been installed.
func (g *Grid) HasLayer(layer Layer) bool {
	_, ok := g.layers[layer]
	return ok
}

// Sample returns the bilinearly interpolated layer value at a point.
// Points outside the grid clamp to the edge cells, so coverage is total.
func (g *Grid) Sample(layer Layer, p orb.Point) (float64, error) {
	values, ok := g.layers[layer]
	if !ok {
		return 0, fmt.Errorf("grid layer %s not loaded", layer)
	}

	// Fractional cell coordinates of the point, clamped inside the grid.
	fx := clamp((p[0]-g.MinLon)/g.CellSize, 0, float64(g.NX-1))
	fy := clamp((p[1]-g.MinLat)/g.CellSize, 0, float64(g.NY-1))

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	if x0 >= g.NX-1 {
		x0 = g.NX - 2
	}
	if y0 >= g.NY-1 {
		y0 = g.NY - 2
	}
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	v00 := values[y0*g.NX+x0]
	v10 := values[y0*g.NX+x0+1]
	v01 := values[(y0+1)*g.NX+x0]
	v11 := values[(y0+1)*g.NX+x0+1]

	top := v01*(1-tx) + v11*tx
	bottom := v00*(1-tx) + v10*tx
	return bottom*(1-ty) + top*ty, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
