// internal/model/model.go

// Package model implements the closed set of regression learners the
// forecaster trains per product: a regularized linear model, two tree
// ensembles, a naive moving-average fallback, and a weighted-average
// ensemble combiner. Training is side-effect-free: each Train* function
// returns a fresh model and shares no state with previous runs.
package model

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the model variants. The set is closed: serialization and
// selection switch over these values rather than inspecting types at runtime.
type Kind string

const (
	KindRidge            Kind = "ridge"
	KindRandomForest     Kind = "random_forest"
	KindGradientBoosting Kind = "gradient_boosting"
	KindNaive            Kind = "naive"
	KindEnsemble         Kind = "ensemble"
)

// Model is a trained regressor. Predict maps one feature vector to a
// point demand estimate and must be safe for concurrent use.
type Model interface {
	Kind() Kind
	Predict(x []float64) float64
}

// Encode serializes a trained model to a JSON payload for the model store.
func Encode(m Model) (json.RawMessage, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s model: %w", m.Kind(), err)
	}
	return payload, nil
}

// Decode reconstructs a trained model from its stored payload.
func Decode(kind Kind, payload json.RawMessage) (Model, error) {
	var m Model
	switch kind {
	case KindRidge:
		m = &Ridge{}
	case KindRandomForest:
		m = &Forest{}
	case KindGradientBoosting:
		m = &GBM{}
	case KindNaive:
		m = &Naive{}
	case KindEnsemble:
		return decodeEnsemble(payload)
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", kind, err)
	}
	return m, nil
}
