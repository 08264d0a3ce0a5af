package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separableExamples builds a two-feature, three-class dataset with cleanly
// separated clusters plus mild noise.
func separableExamples(n int, seed int64) []Example {
	rng := rand.New(rand.NewSource(seed))
	centers := [][2]float64{{0, 0}, {10, 0}, {0, 10}}
	examples := make([]Example, 0, n*len(centers))
	for label, c := range centers {
		for i := 0; i < n; i++ {
			examples = append(examples, Example{
				Features: []float64{c[0] + rng.NormFloat64(), c[1] + rng.NormFloat64()},
				Label:    label,
			})
		}
	}
	return examples
}

func smallConfig(numClasses int, seed int64) Config {
	return Config{Trees: 25, MaxDepth: 8, MinLeafSamples: 2, NumClasses: numClasses, Seed: seed}
}

func TestTrain_SeparableData(t *testing.T) {
	examples := separableExamples(60, 1)
	f, err := Train(smallConfig(3, 42), examples)
	require.NoError(t, err)

	correct := 0
	for _, ex := range examples {
		pred, probs := f.Predict(ex.Features)
		if pred == ex.Label {
			correct++
		}
		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "probabilities must sum to 1")
	}
	assert.Greater(t, float64(correct)/float64(len(examples)), 0.95)
}

func TestTrain_DeterministicForFixedSeed(t *testing.T) {
	examples := separableExamples(30, 7)

	f1, err := Train(smallConfig(3, 99), examples)
	require.NoError(t, err)
	f2, err := Train(smallConfig(3, 99), examples)
	require.NoError(t, err)

	sample := []float64{5, 5}
	c1, p1 := f1.Predict(sample)
	c2, p2 := f2.Predict(sample)
	assert.Equal(t, c1, c2)
	assert.Equal(t, p1, p2)

	// A different seed should produce a different ensemble (probabilities
	// almost surely differ even when the argmax agrees).
	f3, err := Train(smallConfig(3, 100), examples)
	require.NoError(t, err)
	_, p3 := f3.Predict(sample)
	assert.NotEqual(t, p1, p3)
}

func TestBalancedWeights(t *testing.T) {
	// 8 freshwater, 2 oligohaline: minority class gets 4x the weight.
	labels := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1}
	w := BalancedWeights(labels, 2)
	assert.InDelta(t, 0.625, w[0], 1e-9)
	assert.InDelta(t, 2.5, w[1], 1e-9)
	assert.InDelta(t, 4.0, w[1]/w[0], 1e-9)
}

func TestTrain_ClassWeightsLiftMinorityRecall(t *testing.T) {
	// Overlapping clusters with a 20:1 imbalance. Balanced weights should
	// recover clearly more minority examples than uniform weights.
	rng := rand.New(rand.NewSource(3))
	var examples []Example
	for i := 0; i < 400; i++ {
		examples = append(examples, Example{Features: []float64{rng.NormFloat64() * 2}, Label: 0})
	}
	for i := 0; i < 20; i++ {
		examples = append(examples, Example{Features: []float64{3 + rng.NormFloat64()*2}, Label: 1})
	}

	labels := make([]int, len(examples))
	for i, ex := range examples {
		labels[i] = ex.Label
	}

	recallOf := func(f *Forest) float64 {
		hit, total := 0, 0
		for _, ex := range examples {
			if ex.Label != 1 {
				continue
			}
			total++
			if pred, _ := f.Predict(ex.Features); pred == 1 {
				hit++
			}
		}
		return float64(hit) / float64(total)
	}

	uniform, err := Train(smallConfig(2, 5), examples)
	require.NoError(t, err)

	weighted := smallConfig(2, 5)
	weighted.ClassWeights = BalancedWeights(labels, 2)
	balanced, err := Train(weighted, examples)
	require.NoError(t, err)

	assert.Greater(t, recallOf(balanced), recallOf(uniform))
}

func TestTrain_InputValidation(t *testing.T) {
	t.Run("empty examples", func(t *testing.T) {
		_, err := Train(smallConfig(2, 1), nil)
		assert.Error(t, err)
	})

	t.Run("ragged features", func(t *testing.T) {
		_, err := Train(smallConfig(2, 1), []Example{
			{Features: []float64{1, 2}, Label: 0},
			{Features: []float64{1}, Label: 1},
		})
		assert.Error(t, err)
	})

	t.Run("label out of range", func(t *testing.T) {
		_, err := Train(smallConfig(2, 1), []Example{{Features: []float64{1}, Label: 5}})
		assert.Error(t, err)
	})

	t.Run("bad hyperparameters", func(t *testing.T) {
		cfg := smallConfig(2, 1)
		cfg.Trees = 0
		_, err := Train(cfg, []Example{{Features: []float64{1}, Label: 0}})
		assert.Error(t, err)
	})
}

func TestForest_EncodeDecodeRoundTrip(t *testing.T) {
	examples := separableExamples(20, 11)
	f, err := Train(smallConfig(3, 17), examples)
	require.NoError(t, err)

	blob, err := f.Encode()
	require.NoError(t, err)

	restored, err := Decode(blob)
	require.NoError(t, err)

	sample := []float64{9.5, 0.5}
	c1, p1 := f.Predict(sample)
	c2, p2 := restored.Predict(sample)
	assert.Equal(t, c1, c2)
	require.Len(t, p2, len(p1))
	for i := range p1 {
		assert.False(t, math.IsNaN(p2[i]))
		assert.InDelta(t, p1[i], p2[i], 1e-12)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"config":{"trees":1,"max_depth":1,"min_leaf_samples":1,"num_classes":2,"seed":1},"trees":[]}`))
	assert.Error(t, err)
}
