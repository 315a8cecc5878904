// internal/forecast/forecaster.go

// Package forecast orchestrates per-product model training and horizon
// generation. Training picks the model tier from data volume, evaluates on
// a chronological 80/20 hold-out, and cross-validates with expanding
// windows; forecasting feeds each day's prediction back into the lag
// features for the following days, with residual-based normal-approximation
// confidence intervals that widen with the horizon.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/features"
	"github.com/stockwise/forecast-engine/internal/model"
	"github.com/stockwise/forecast-engine/internal/stat"
)

var errTooFewRows = errors.New("too few rows for cross-validation")

// Config carries the tunable training knobs. Zero values fall back to the
// defaults from DefaultConfig.
type Config struct {
	MinObservations   int
	FullBankThreshold int
	CVFolds           int
	RidgeAlpha        float64
	ForestTrees       int
	ForestMaxDepth    int
	BoostingRounds    int
	BoostingDepth     int
	BoostingLearnRate float64
	Seed              int64
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MinObservations:   30,
		FullBankThreshold: 90,
		CVFolds:           5,
		RidgeAlpha:        1.0,
		ForestTrees:       50,
		ForestMaxDepth:    8,
		BoostingRounds:    100,
		BoostingDepth:     3,
		BoostingLearnRate: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinObservations <= 0 {
		c.MinObservations = d.MinObservations
	}
	if c.FullBankThreshold <= 0 {
		c.FullBankThreshold = d.FullBankThreshold
	}
	if c.CVFolds <= 0 {
		c.CVFolds = d.CVFolds
	}
	if c.RidgeAlpha <= 0 {
		c.RidgeAlpha = d.RidgeAlpha
	}
	if c.ForestTrees <= 0 {
		c.ForestTrees = d.ForestTrees
	}
	if c.ForestMaxDepth <= 0 {
		c.ForestMaxDepth = d.ForestMaxDepth
	}
	if c.BoostingRounds <= 0 {
		c.BoostingRounds = d.BoostingRounds
	}
	if c.BoostingDepth <= 0 {
		c.BoostingDepth = d.BoostingDepth
	}
	if c.BoostingLearnRate <= 0 {
		c.BoostingLearnRate = d.BoostingLearnRate
	}
	return c
}

// BankEntry is one trained candidate kept alongside the winner so every
// successful kind can be persisted.
type BankEntry struct {
	Kind        model.Kind
	Model       model.Model
	Metrics     domain.ModelMetrics
	ResidualStd float64
}

// TrainedProduct bundles the winning model with everything needed to
// generate forecasts: hold-out metrics, the residual spread for confidence
// bounds, and the dense quantity history that seeds the recursive lags.
type TrainedProduct struct {
	ProductID     string
	Model         model.Model
	Metrics       domain.ModelMetrics
	ResidualStd   float64
	LowConfidence bool
	Notes         []string
	Bank          []BankEntry

	history  []float64
	lastDate time.Time
	external features.External
}

// History returns a copy of the dense daily quantity history.
func (tp *TrainedProduct) History() []float64 {
	out := make([]float64, len(tp.history))
	copy(out, tp.history)
	return out
}

// Restore rebuilds a TrainedProduct around a model loaded from the store,
// re-densifying the caller's observations to seed the recursive lags.
func Restore(productID string, m model.Model, metrics domain.ModelMetrics,
	residStd float64, observations []domain.SalesObservation) *TrainedProduct {

	tp := &TrainedProduct{
		ProductID:     productID,
		Model:         m,
		Metrics:       metrics,
		ResidualStd:   residStd,
		LowConfidence: m.Kind() == model.KindNaive,
	}
	tp.seedHistory(observations)
	return tp
}

// TrainAndEvaluate runs the full per-product pipeline. Data-volume tiers:
// fewer usable rows than MinObservations falls back to the naive model
// (flagged low-confidence rather than erroring, the caller needs a number);
// below FullBankThreshold only the ridge model trains; otherwise the full
// bank trains and an inverse-CV-MAE weighted ensemble joins the candidates.
// A single kind failing to train is excluded and noted; only all kinds
// failing is an error.
func TrainAndEvaluate(productID string, observations []domain.SalesObservation, cfg Config) (*TrainedProduct, error) {
	cfg = cfg.withDefaults()

	matrix, err := features.Build(observations)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return naiveFallback(productID, observations,
				fmt.Sprintf("insufficient history (%d observations), naive fallback", len(observations))), nil
		}
		return nil, err
	}

	usable := len(matrix.Y)
	if usable < cfg.MinObservations {
		return naiveFallback(productID, observations,
			fmt.Sprintf("only %d usable rows after warm-up (minimum %d), naive fallback",
				usable, cfg.MinObservations)), nil
	}

	trainN := usable * 4 / 5
	if usable-trainN < 1 {
		trainN = usable - 1
	}
	xTrain, yTrain := matrix.X[:trainN], matrix.Y[:trainN]
	xTest, yTest := matrix.X[trainN:], matrix.Y[trainN:]

	trainers := map[model.Kind]trainFunc{
		model.KindRidge: func(x [][]float64, y []float64) (model.Model, error) {
			return model.TrainRidge(x, y, cfg.RidgeAlpha)
		},
	}
	order := []model.Kind{model.KindRidge}
	if usable >= cfg.FullBankThreshold {
		trainers[model.KindRandomForest] = func(x [][]float64, y []float64) (model.Model, error) {
			return model.TrainForest(x, y, model.ForestParams{
				Trees:    cfg.ForestTrees,
				MaxDepth: cfg.ForestMaxDepth,
				Seed:     cfg.Seed,
			})
		}
		trainers[model.KindGradientBoosting] = func(x [][]float64, y []float64) (model.Model, error) {
			return model.TrainGBM(x, y, model.GBMParams{
				Rounds:    cfg.BoostingRounds,
				MaxDepth:  cfg.BoostingDepth,
				LearnRate: cfg.BoostingLearnRate,
			})
		}
		order = []model.Kind{model.KindRidge, model.KindRandomForest, model.KindGradientBoosting}
	}

	type candidate struct {
		kind    model.Kind
		m       model.Model
		metrics domain.ModelMetrics
		preds   []float64
		cv      cvOutcome
	}

	var (
		candidates []candidate
		notes      []string
	)
	for _, kind := range order {
		train := trainers[kind]

		m, err := train(xTrain, yTrain)
		if err != nil {
			log.Warn().Err(err).Str("product_id", productID).Str("model", string(kind)).
				Msg("model training failed, excluding from bank")
			notes = append(notes, fmt.Sprintf("%s excluded: %v", kind, err))
			continue
		}

		preds := make([]float64, len(yTest))
		for i, row := range xTest {
			preds[i] = m.Predict(row)
		}
		mae, rmse, r2 := evaluate(yTest, preds)

		cv, err := crossValidate(xTrain, yTrain, cfg.CVFolds, train)
		if err != nil {
			// CV is a stability signal, not a gate; keep the model with
			// hold-out MAE standing in for the CV error.
			log.Warn().Err(err).Str("product_id", productID).Str("model", string(kind)).
				Msg("cross-validation failed")
			cv = cvOutcome{mae: mae}
		}

		candidates = append(candidates, candidate{
			kind: kind,
			m:    m,
			metrics: domain.ModelMetrics{
				MAE: mae, RMSE: rmse, R2: r2,
				CVMAE: cv.mae, CVStd: cv.std,
			},
			preds: preds,
			cv:    cv,
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: product %s", domain.ErrTrainingFailure, productID)
	}

	// With at least two surviving members, add the weighted ensemble. Its
	// CV error is the weighted combination of the member fold predictions.
	if len(candidates) >= 2 && usable >= cfg.FullBankThreshold {
		members := make([]model.Model, len(candidates))
		cvMAEs := make([]float64, len(candidates))
		for i, c := range candidates {
			members[i] = c.m
			cvMAEs[i] = c.cv.mae
		}
		if ens, err := model.NewEnsemble(members, cvMAEs); err == nil {
			preds := make([]float64, len(yTest))
			for i, row := range xTest {
				preds[i] = ens.Predict(row)
			}
			mae, rmse, r2 := evaluate(yTest, preds)

			memberCV := make([]cvOutcome, len(candidates))
			for i, c := range candidates {
				memberCV[i] = c.cv
			}
			cvMAE, cvStd := combineCV(memberCV, ens.Weights())
			candidates = append(candidates, candidate{
				kind: model.KindEnsemble,
				m:    ens,
				metrics: domain.ModelMetrics{
					MAE: mae, RMSE: rmse, R2: r2,
					CVMAE: cvMAE, CVStd: cvStd,
				},
				preds: preds,
			})
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.metrics.MAE < best.metrics.MAE {
			best = c
		}
	}

	log.Debug().Str("product_id", productID).Str("model", string(best.kind)).
		Float64("mae", best.metrics.MAE).Float64("r2", best.metrics.R2).
		Int("usable_rows", usable).Msg("model selected")

	bank := make([]BankEntry, 0, len(candidates))
	for _, c := range candidates {
		bank = append(bank, BankEntry{
			Kind:        c.kind,
			Model:       c.m,
			Metrics:     c.metrics,
			ResidualStd: residualStd(yTest, c.preds),
		})
	}

	tp := &TrainedProduct{
		ProductID:   productID,
		Model:       best.m,
		Metrics:     best.metrics,
		ResidualStd: residualStd(yTest, best.preds),
		Notes:       notes,
		Bank:        bank,
	}
	tp.seedHistory(observations)
	return tp, nil
}

// Forecast generates horizonDays of demand with two-sided confidence
// bounds at the requested level. Future lag features are unobserved at
// request time, so each day's prediction is appended to the history and
// feeds the following days' lags; predicted values are used rather than
// waiting for realized ones, which do not exist yet. Bounds are
// point +/- z*sigma*sqrt(h), the residual-sigma normal approximation with
// random-walk widening over the horizon step h.
func (tp *TrainedProduct) Forecast(horizonDays int, confidence float64) (*domain.ForecastResult, error) {
	if horizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon_days must be positive", domain.ErrInvalidParameters)
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("%w: confidence_level must be in (0, 1)", domain.ErrInvalidParameters)
	}

	z := stat.NormalQuantile(0.5 + confidence/2)
	quantities := tp.History()

	points := make([]domain.ForecastPoint, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		date := tp.lastDate.AddDate(0, 0, h)
		x := features.FutureVector(quantities, date, tp.external)
		pred := tp.Model.Predict(x)
		if pred < 0 {
			pred = 0
		}

		sigma := tp.ResidualStd * math.Sqrt(float64(h))
		lower := pred - z*sigma
		if lower < 0 {
			lower = 0
		}
		points = append(points, domain.ForecastPoint{
			Date:     date,
			Forecast: pred,
			Lower:    lower,
			Upper:    pred + z*sigma,
		})

		quantities = append(quantities, pred)
	}

	return &domain.ForecastResult{
		ProductID:     tp.ProductID,
		ModelKind:     string(tp.Model.Kind()),
		Points:        points,
		Metrics:       tp.Metrics,
		ResidualStd:   tp.ResidualStd,
		LowConfidence: tp.LowConfidence,
		Notes:         tp.Notes,
	}, nil
}

func naiveFallback(productID string, observations []domain.SalesObservation, note string) *TrainedProduct {
	dense := features.Densify(observations)
	quantities := make([]float64, len(dense))
	for i, obs := range dense {
		quantities[i] = obs.QuantitySold
	}

	naive := model.TrainNaive(quantities, 30)
	residStd := stat.Std(quantities)
	tp := &TrainedProduct{
		ProductID:     productID,
		Model:         naive,
		ResidualStd:   residStd,
		LowConfidence: true,
		Notes:         []string{note},
		Bank:          []BankEntry{{Kind: model.KindNaive, Model: naive, ResidualStd: residStd}},
	}
	tp.seedHistory(observations)
	return tp
}

// seedHistory records the densified demand series and the external
// features used for horizon days. Future prices and economic index are
// unknown at forecast time, so the last observed day's values carry
// forward and promotions are assumed off for the whole horizon.
func (tp *TrainedProduct) seedHistory(observations []domain.SalesObservation) {
	dense := features.Densify(observations)
	tp.history = make([]float64, len(dense))
	for i, obs := range dense {
		tp.history[i] = obs.QuantitySold
	}
	if len(dense) > 0 {
		last := dense[len(dense)-1]
		tp.lastDate = last.Date
		tp.external = features.External{
			UnitPrice:     last.UnitPrice,
			Promotion:     false,
			EconomicIndex: last.EconomicIndex,
		}
	}
}

// combineCV derives the ensemble's CV error from the members' fold
// predictions, which share one fold layout, so no per-fold retraining is
// needed. If any member's fold predictions are missing (its CV failed),
// fall back to the weighted mean of member CV MAEs.
func combineCV(members []cvOutcome, weights []float64) (float64, float64) {
	if len(members) == 0 {
		return 0, 0
	}
	ref := members[0]
	n := len(ref.actual)
	for _, m := range members {
		if len(m.predicted) != n || n == 0 {
			var mae float64
			for i, mm := range members {
				mae += weights[i] * mm.mae
			}
			return mae, 0
		}
	}

	combined := make([]float64, n)
	for i, m := range members {
		for j, p := range m.predicted {
			combined[j] += weights[i] * p
		}
	}

	foldMAEs := make([]float64, 0, len(ref.foldSizes))
	idx := 0
	for _, size := range ref.foldSizes {
		var absSum float64
		for j := idx; j < idx+size; j++ {
			absSum += math.Abs(combined[j] - ref.actual[j])
		}
		foldMAEs = append(foldMAEs, absSum/float64(size))
		idx += size
	}
	return stat.Mean(foldMAEs), stat.Std(foldMAEs)
}
