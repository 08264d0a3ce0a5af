package grid

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	// 3x3 cells from (0,0), 1 degree each; salinity increases west to east.
	g, err := New(0, 0, 1.0, 3, 3)
	require.NoError(t, err)
	require.NoError(t, g.SetLayer(LayerSalinity, []float64{
		0, 10, 20,
		0, 10, 20,
		0, 10, 20,
	}))
	return g
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(0, 0, 0, 3, 3)
	assert.Error(t, err)
	_, err = New(0, 0, 1, 1, 3)
	assert.Error(t, err)
}

func TestGrid_SetLayer_LengthMismatch(t *testing.T) {
	g, err := New(0, 0, 1, 3, 3)
	require.NoError(t, err)
	assert.Error(t, g.SetLayer(LayerDischarge, []float64{1, 2, 3}))
}

func TestGrid_Sample(t *testing.T) {
	g := newTestGrid(t)

	t.Run("exact node", func(t *testing.T) {
		v, err := g.Sample(LayerSalinity, orb.Point{1, 1})
		require.NoError(t, err)
		assert.InDelta(t, 10.0, v, 1e-9)
	})

	t.Run("interpolates between nodes", func(t *testing.T) {
		v, err := g.Sample(LayerSalinity, orb.Point{0.5, 0})
		require.NoError(t, err)
		assert.InDelta(t, 5.0, v, 1e-9)
	})

	t.Run("clamps outside the grid", func(t *testing.T) {
		v, err := g.Sample(LayerSalinity, orb.Point{-40, 7})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, v, 1e-9)

		v, err = g.Sample(LayerSalinity, orb.Point{99, -99})
		require.NoError(t, err)
		assert.InDelta(t, 20.0, v, 1e-9)
	})

	t.Run("missing layer errors", func(t *testing.T) {
		_, err := g.Sample(LayerTemperature, orb.Point{1, 1})
		assert.Error(t, err)
	})
}
