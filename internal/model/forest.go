// internal/model/forest.go
package model

import (
	"errors"
	"math/rand"
)

// Forest is a random forest regressor: bagged regression trees with
// per-split feature subsampling, predictions averaged across trees.
type Forest struct {
	Trees []Tree `json:"trees"`
}

// ForestParams configures TrainForest. Zero values fall back to the
// defaults below.
type ForestParams struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64
}

func (p ForestParams) withDefaults() ForestParams {
	if p.Trees <= 0 {
		p.Trees = 50
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 8
	}
	if p.MinSamplesLeaf <= 0 {
		p.MinSamplesLeaf = 2
	}
	return p
}

// TrainForest fits a random forest. The RNG is seeded from params so a
// training run over identical data is reproducible.
func TrainForest(x [][]float64, y []float64, params ForestParams) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("forest: empty or mismatched training data")
	}
	params = params.withDefaults()
	rng := rand.New(rand.NewSource(params.Seed))

	n := len(x)
	p := len(x[0])
	// Standard regression default: a third of the features per split.
	maxFeatures := p / 3
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	forest := &Forest{Trees: make([]Tree, 0, params.Trees)}
	for i := 0; i < params.Trees; i++ {
		sample := make([]int, n)
		for j := range sample {
			sample[j] = rng.Intn(n)
		}

		tree := growTree(x, y, sample, treeParams{
			maxDepth:       params.MaxDepth,
			minSamplesLeaf: params.MinSamplesLeaf,
			maxFeatures:    maxFeatures,
			featurePick: func(total int) []int {
				return rng.Perm(total)[:maxFeatures]
			},
		})
		forest.Trees = append(forest.Trees, *tree)
	}
	return forest, nil
}

func (f *Forest) Kind() Kind { return KindRandomForest }

func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}
