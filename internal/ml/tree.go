package ml

import (
	"math/rand"
	"sort"
)

// TreeNode is one node of a regression tree stored in a flat slice.
// Leaves have Feature == -1.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// RegressionTree is a depth-limited least-squares tree whose leaf values are
// replaced by a caller-supplied estimate after fitting.
type RegressionTree struct {
	Nodes []TreeNode
}

type treeBuilder struct {
	X              [][]float64
	target         []float64
	maxDepth       int
	minSamplesLeaf int
	rng            *rand.Rand
	importances    []float64
	leafValue      func(idx []int) float64
	nodes          []TreeNode
}

// fitTree grows a tree on target with variance-reduction splits.
// importances accumulates the weighted impurity decrease per feature.
func fitTree(X [][]float64, target []float64, idx []int, maxDepth, minSamplesLeaf int, rng *rand.Rand, importances []float64, leafValue func(idx []int) float64) *RegressionTree {
	b := &treeBuilder{
		X:              X,
		target:         target,
		maxDepth:       maxDepth,
		minSamplesLeaf: minSamplesLeaf,
		rng:            rng,
		importances:    importances,
		leafValue:      leafValue,
	}
	b.grow(idx, 0)
	return &RegressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	node := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: -1})

	if depth >= b.maxDepth || len(idx) < 2*b.minSamplesLeaf {
		b.nodes[node].Value = b.leafValue(idx)
		return node
	}

	feature, threshold, gain, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[node].Value = b.leafValue(idx)
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if b.importances != nil {
		b.importances[feature] += gain
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[node] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return node
}

// bestSplit scans every feature in a seeded random order and returns the
// split with the largest reduction in squared error
func (b *treeBuilder) bestSplit(idx []int) (int, float64, float64, bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += b.target[i]
		totalSq += b.target[i] * b.target[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 1e-12 {
		return 0, 0, 0, false
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, len(idx))
	features := b.rng.Perm(len(b.X[idx[0]]))

	for _, f := range features {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			v := b.target[order[k]]
			leftSum += v
			leftSq += v * v

			nl := float64(k + 1)
			nr := n - nl
			if k+1 < b.minSamplesLeaf || int(nr) < b.minSamplesLeaf {
				continue
			}
			x, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if next <= x {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > bestGain+1e-12 {
				bestFeature, bestThreshold, bestGain = f, (x+next)/2, gain
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

// Predict walks the tree for a single row
func (t *RegressionTree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	node := t.Nodes[0]
	for node.Feature >= 0 {
		if node.Feature < len(x) && x[node.Feature] > node.Threshold {
			node = t.Nodes[node.Right]
		} else {
			node = t.Nodes[node.Left]
		}
	}
	return node.Value
}
