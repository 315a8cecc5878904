// internal/model/gbm.go
package model

import "errors"

// GBM is a gradient-boosted regression model: shallow trees fit
// sequentially to residuals, shrunk by the learning rate.
type GBM struct {
	Base      float64 `json:"base"`
	LearnRate float64 `json:"learn_rate"`
	Trees     []Tree  `json:"trees"`
}

// GBMParams configures TrainGBM. Zero values fall back to the defaults
// below.
type GBMParams struct {
	Rounds         int
	MaxDepth       int
	MinSamplesLeaf int
	LearnRate      float64
}

func (p GBMParams) withDefaults() GBMParams {
	if p.Rounds <= 0 {
		p.Rounds = 100
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	if p.MinSamplesLeaf <= 0 {
		p.MinSamplesLeaf = 5
	}
	if p.LearnRate <= 0 {
		p.LearnRate = 0.1
	}
	return p
}

// TrainGBM fits squared-loss gradient boosting: the base prediction is the
// target mean and each round fits a tree to the current residuals.
func TrainGBM(x [][]float64, y []float64, params GBMParams) (*GBM, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("gbm: empty or mismatched training data")
	}
	params = params.withDefaults()

	n := len(x)
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	indices := make([]int, n)
	residuals := make([]float64, n)
	for i := range indices {
		indices[i] = i
		residuals[i] = y[i] - base
	}

	gbm := &GBM{Base: base, LearnRate: params.LearnRate}
	tp := treeParams{maxDepth: params.MaxDepth, minSamplesLeaf: params.MinSamplesLeaf}
	for round := 0; round < params.Rounds; round++ {
		tree := growTree(x, residuals, indices, tp)
		// A root-only tree adds nothing; residuals have flattened out.
		if len(tree.Nodes) == 1 {
			break
		}
		gbm.Trees = append(gbm.Trees, *tree)
		for i := range residuals {
			residuals[i] -= params.LearnRate * tree.predict(x[i])
		}
	}
	return gbm, nil
}

func (g *GBM) Kind() Kind { return KindGradientBoosting }

func (g *GBM) Predict(x []float64) float64 {
	pred := g.Base
	for i := range g.Trees {
		pred += g.LearnRate * g.Trees[i].predict(x)
	}
	return pred
}
