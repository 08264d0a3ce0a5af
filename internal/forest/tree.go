package forest

import (
	"math"
	"math/rand"
	"sort"
)

// node is one decision node in flattened form. Leaves have left == -1 and
// carry the weighted class distribution of their training samples.
type node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Probs     []float64 `json:"p,omitempty"`
}

// tree is a single CART classifier stored as a flat node slice, root at 0.
type tree struct {
	Nodes []node `json:"nodes"`
}

// predict walks the tree and returns the leaf class distribution.
func (t *tree) predict(x []float64) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Probs
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree on a bootstrap sample.
type treeBuilder struct {
	cfg      Config
	examples []Example
	weights  []float64 // per-class weights
	mtry     int
	rng      *rand.Rand
	nodes    []node
}

// grow builds the tree from the given bootstrap indices and returns it.
func (b *treeBuilder) grow(indices []int) tree {
	b.nodes = b.nodes[:0]
	b.build(indices, 0)
	return tree{Nodes: append([]node(nil), b.nodes...)}
}

// build appends the subtree for the given sample indices and returns its
// node index.
func (b *treeBuilder) build(indices []int, depth int) int {
	counts := b.classWeightSums(indices)

	if depth >= b.cfg.MaxDepth || len(indices) < 2*b.cfg.MinLeafSamples || isPure(counts) {
		return b.leaf(counts)
	}

	feature, threshold, ok := b.bestSplit(indices, counts)
	if !ok {
		return b.leaf(counts)
	}

	var left, right []int
	for _, i := range indices {
		if b.examples[i].Features[feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.cfg.MinLeafSamples || len(right) < b.cfg.MinLeafSamples {
		return b.leaf(counts)
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: feature, Threshold: threshold, Left: -1, Right: -1})
	b.nodes[idx].Left = b.build(left, depth+1)
	b.nodes[idx].Right = b.build(right, depth+1)
	return idx
}

// leaf appends a leaf node holding the normalized weighted class distribution.
func (b *treeBuilder) leaf(counts []float64) int {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			probs[i] = c / total
		}
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Probs: probs})
	return idx
}

// classWeightSums accumulates per-class sample weight over the index set.
func (b *treeBuilder) classWeightSums(indices []int) []float64 {
	counts := make([]float64, b.cfg.NumClasses)
	for _, i := range indices {
		counts[b.examples[i].Label] += b.weights[b.examples[i].Label]
	}
	return counts
}

// bestSplit searches a random subset of mtry features for the split with the
// lowest weighted Gini impurity.
func (b *treeBuilder) bestSplit(indices []int, parentCounts []float64) (int, float64, bool) {
	d := len(b.examples[indices[0]].Features)
	candidates := b.rng.Perm(d)[:b.mtry]
	sort.Ints(candidates) // deterministic evaluation order for a fixed seed

	bestGini := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	parentTotal := 0.0
	for _, c := range parentCounts {
		parentTotal += c
	}

	sorted := append([]int(nil), indices...)
	for _, feature := range candidates {
		sort.Slice(sorted, func(i, j int) bool {
			return b.examples[sorted[i]].Features[feature] < b.examples[sorted[j]].Features[feature]
		})

		leftCounts := make([]float64, b.cfg.NumClasses)
		leftTotal := 0.0
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			w := b.weights[b.examples[i].Label]
			leftCounts[b.examples[i].Label] += w
			leftTotal += w

			v := b.examples[i].Features[feature]
			next := b.examples[sorted[pos+1]].Features[feature]
			if v == next {
				continue
			}

			g := weightedGini(leftCounts, leftTotal, parentCounts, parentTotal)
			if g < bestGini {
				bestGini = g
				bestFeature = feature
				bestThreshold = (v + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// weightedGini computes the split impurity: the weight-proportional mean of
// the Gini impurities of both children.
func weightedGini(leftCounts []float64, leftTotal float64, parentCounts []float64, parentTotal float64) float64 {
	rightTotal := parentTotal - leftTotal
	if leftTotal <= 0 || rightTotal <= 0 {
		return math.Inf(1)
	}

	giniOf := func(counts []float64, complement []float64, total float64) float64 {
		sumSq := 0.0
		for c := range counts {
			w := counts[c]
			if complement != nil {
				w = complement[c] - counts[c]
			}
			p := w / total
			sumSq += p * p
		}
		return 1 - sumSq
	}

	left := giniOf(leftCounts, nil, leftTotal)
	right := giniOf(leftCounts, parentCounts, rightTotal)
	return (leftTotal*left + rightTotal*right) / parentTotal
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
