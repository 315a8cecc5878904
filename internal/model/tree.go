// internal/model/tree.go
package model

import "sort"

// TreeNode is one node of a regression tree in the flattened array layout
// used for serialization. Leaf nodes carry the prediction in Value.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

// Tree is a CART-style regression tree grown by greedy variance reduction.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	// maxFeatures limits the candidate features per split (0 = all);
	// the forest uses it for decorrelation.
	maxFeatures int
	featurePick func(n int) []int
}

func growTree(x [][]float64, y []float64, indices []int, params treeParams) *Tree {
	t := &Tree{}
	t.build(x, y, indices, 0, params)
	return t
}

// build appends the subtree for the given sample indices and returns its
// root position in the node array.
func (t *Tree) build(x [][]float64, y []float64, indices []int, depth int, params treeParams) int {
	node := TreeNode{Leaf: true, Value: meanAt(y, indices), Left: -1, Right: -1}
	pos := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)

	if depth >= params.maxDepth || len(indices) < 2*params.minSamplesLeaf {
		return pos
	}

	feature, threshold, ok := bestSplit(x, y, indices, params)
	if !ok {
		return pos
	}

	var left, right []int
	for _, i := range indices {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < params.minSamplesLeaf || len(right) < params.minSamplesLeaf {
		return pos
	}

	t.Nodes[pos].Leaf = false
	t.Nodes[pos].Feature = feature
	t.Nodes[pos].Threshold = threshold
	t.Nodes[pos].Left = t.build(x, y, left, depth+1, params)
	t.Nodes[pos].Right = t.build(x, y, right, depth+1, params)
	return pos
}

func bestSplit(x [][]float64, y []float64, indices []int, params treeParams) (int, float64, bool) {
	p := len(x[indices[0]])
	candidates := make([]int, p)
	for j := range candidates {
		candidates[j] = j
	}
	if params.maxFeatures > 0 && params.maxFeatures < p && params.featurePick != nil {
		candidates = params.featurePick(p)
	}

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	parentSSE := sseAt(y, indices)

	for _, j := range candidates {
		values := make([]float64, 0, len(indices))
		for _, i := range indices {
			values = append(values, x[i][j])
		}
		sort.Float64s(values)

		// Midpoints between distinct consecutive values.
		for k := 0; k+1 < len(values); k++ {
			if values[k] == values[k+1] {
				continue
			}
			threshold := (values[k] + values[k+1]) / 2

			var lSum, lSq, rSum, rSq float64
			var lN, rN int
			for _, i := range indices {
				v := y[i]
				if x[i][j] <= threshold {
					lSum += v
					lSq += v * v
					lN++
				} else {
					rSum += v
					rSq += v * v
					rN++
				}
			}
			if lN < params.minSamplesLeaf || rN < params.minSamplesLeaf {
				continue
			}
			childSSE := (lSq - lSum*lSum/float64(lN)) + (rSq - rSum*rSum/float64(rN))
			gain := parentSSE - childSSE
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = j
				bestThreshold = threshold
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *Tree) predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	pos := 0
	for {
		node := t.Nodes[pos]
		if node.Leaf {
			return node.Value
		}
		if node.Feature < len(x) && x[node.Feature] <= node.Threshold {
			pos = node.Left
		} else {
			pos = node.Right
		}
	}
}

func meanAt(y []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range indices {
		sum += y[i]
	}
	return sum / float64(len(indices))
}

func sseAt(y []float64, indices []int) float64 {
	mean := meanAt(y, indices)
	sse := 0.0
	for _, i := range indices {
		d := y[i] - mean
		sse += d * d
	}
	return sse
}
