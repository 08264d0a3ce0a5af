// Package forest implements a seeded bagged ensemble of CART decision trees
// with per-class sample weighting and calibrated-by-averaging class
// probabilities.
//
// Bagging over a deliberately correlated, partially redundant feature set
// keeps variance down without feature pruning; per-class weights inversely
// proportional to class frequency handle the heavy freshwater imbalance
// without resampling away signal. A fixed master seed makes training fully
// reproducible: the same inputs always yield the same ensemble.
package forest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Config holds the ensemble hyperparameters.
type Config struct {
	Trees          int       `json:"trees"`            // number of bagged trees
	MaxDepth       int       `json:"max_depth"`        // depth limit per tree
	MinLeafSamples int       `json:"min_leaf_samples"` // minimum samples per leaf
	NumClasses     int       `json:"num_classes"`
	Seed           int64     `json:"seed"`
	ClassWeights   []float64 `json:"class_weights,omitempty"` // nil = uniform
}

// DefaultConfig returns the hyperparameters used by the pipeline.
func DefaultConfig(numClasses int, seed int64) Config {
	return Config{
		Trees:          200,
		MaxDepth:       12,
		MinLeafSamples: 5,
		NumClasses:     numClasses,
		Seed:           seed,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	if c.Trees <= 0 || c.MaxDepth <= 0 || c.MinLeafSamples <= 0 {
		return fmt.Errorf("forest config requires positive trees/depth/leaf, got %d/%d/%d",
			c.Trees, c.MaxDepth, c.MinLeafSamples)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("forest requires at least 2 classes, got %d", c.NumClasses)
	}
	if c.ClassWeights != nil && len(c.ClassWeights) != c.NumClasses {
		return fmt.Errorf("class weights length %d does not match %d classes", len(c.ClassWeights), c.NumClasses)
	}
	return nil
}

// Example is one training sample: a feature vector and its integer-encoded
// class label.
type Example struct {
	Features []float64
	Label    int
}

// Forest is a trained ensemble.
type Forest struct {
	Config Config `json:"config"`
	Trees  []tree `json:"trees"`
}

// BalancedWeights returns per-class weights inversely proportional to class
// frequency, normalized so the mean weight is 1 (scikit-learn's "balanced"
// scheme).
func BalancedWeights(labels []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, l := range labels {
		counts[l]++
	}
	weights := make([]float64, numClasses)
	n := float64(len(labels))
	k := float64(numClasses)
	for c := range weights {
		if counts[c] > 0 {
			weights[c] = n / (k * counts[c])
		}
	}
	return weights
}

// Train fits the ensemble on the examples.
func Train(cfg Config, examples []Example) (*Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no training examples")
	}

	width := len(examples[0].Features)
	for _, ex := range examples {
		if len(ex.Features) != width {
			return nil, fmt.Errorf("ragged feature vectors: %d vs %d", len(ex.Features), width)
		}
		if ex.Label < 0 || ex.Label >= cfg.NumClasses {
			return nil, fmt.Errorf("label %d out of range for %d classes", ex.Label, cfg.NumClasses)
		}
	}

	weights := cfg.ClassWeights
	if weights == nil {
		weights = make([]float64, cfg.NumClasses)
		for i := range weights {
			weights[i] = 1
		}
	}

	mtry := int(math.Sqrt(float64(width)))
	if mtry < 1 {
		mtry = 1
	}

	f := &Forest{Config: cfg, Trees: make([]tree, cfg.Trees)}
	for t := 0; t < cfg.Trees; t++ {
		// Per-tree rng derived from the master seed keeps training
		// reproducible regardless of tree count changes elsewhere.
		rng := rand.New(rand.NewSource(cfg.Seed + int64(t)*0x9E3779B9))

		indices := make([]int, len(examples))
		for i := range indices {
			indices[i] = rng.Intn(len(examples))
		}

		builder := &treeBuilder{
			cfg:      cfg,
			examples: examples,
			weights:  weights,
			mtry:     mtry,
			rng:      rng,
		}
		f.Trees[t] = builder.grow(indices)
	}
	return f, nil
}

// Predict returns the predicted class and the ensemble-averaged probability
// distribution for a feature vector. Ties break toward the lower class
// index, which in the salinity encoding is the fresher class.
func (f *Forest) Predict(x []float64) (int, []float64) {
	probs := make([]float64, f.Config.NumClasses)
	for i := range f.Trees {
		leaf := f.Trees[i].predict(x)
		for c, p := range leaf {
			probs[c] += p
		}
	}
	n := float64(len(f.Trees))
	best := 0
	for c := range probs {
		probs[c] /= n
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best, probs
}

// Encode serializes the trained ensemble for persistence.
func (f *Forest) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode restores a persisted ensemble.
func Decode(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := f.Config.Validate(); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("decode forest: no trees")
	}
	return &f, nil
}
