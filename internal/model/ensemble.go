// internal/model/ensemble.go
package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Ensemble averages member predictions, weighted by the inverse of each
// member's cross-validated MAE so more stable members count for more.
type Ensemble struct {
	members []Model
	weights []float64
}

// NewEnsemble builds an ensemble from trained members and their
// cross-validated MAEs. A member with zero error would dominate, so errors
// are floored at a small epsilon before inversion.
func NewEnsemble(members []Model, cvMAEs []float64) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble: no members")
	}
	if len(members) != len(cvMAEs) {
		return nil, errors.New("ensemble: members and errors length mismatch")
	}

	weights := make([]float64, len(members))
	total := 0.0
	for i, mae := range cvMAEs {
		if mae < 1e-9 {
			mae = 1e-9
		}
		weights[i] = 1 / mae
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}

	return &Ensemble{members: members, weights: weights}, nil
}

func (e *Ensemble) Kind() Kind { return KindEnsemble }

func (e *Ensemble) Predict(x []float64) float64 {
	pred := 0.0
	for i, m := range e.members {
		pred += e.weights[i] * m.Predict(x)
	}
	return pred
}

// Weights returns the normalized member weights in member order.
func (e *Ensemble) Weights() []float64 {
	out := make([]float64, len(e.weights))
	copy(out, e.weights)
	return out
}

// Members returns the member kinds in weight order.
func (e *Ensemble) Members() []Kind {
	kinds := make([]Kind, len(e.members))
	for i, m := range e.members {
		kinds[i] = m.Kind()
	}
	return kinds
}

type ensembleMemberPayload struct {
	Kind    Kind            `json:"kind"`
	Weight  float64         `json:"weight"`
	Payload json.RawMessage `json:"payload"`
}

type ensemblePayload struct {
	Members []ensembleMemberPayload `json:"members"`
}

// MarshalJSON serializes the ensemble with each member's own payload
// embedded, so a stored ensemble round-trips without its members being
// stored separately.
func (e *Ensemble) MarshalJSON() ([]byte, error) {
	payload := ensemblePayload{Members: make([]ensembleMemberPayload, 0, len(e.members))}
	for i, m := range e.members {
		raw, err := Encode(m)
		if err != nil {
			return nil, err
		}
		payload.Members = append(payload.Members, ensembleMemberPayload{
			Kind:    m.Kind(),
			Weight:  e.weights[i],
			Payload: raw,
		})
	}
	return json.Marshal(payload)
}

func decodeEnsemble(raw json.RawMessage) (*Ensemble, error) {
	var payload ensemblePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode ensemble: %w", err)
	}
	if len(payload.Members) == 0 {
		return nil, errors.New("decode ensemble: no members")
	}

	e := &Ensemble{}
	for _, mp := range payload.Members {
		if mp.Kind == KindEnsemble {
			return nil, errors.New("decode ensemble: nested ensembles not supported")
		}
		member, err := Decode(mp.Kind, mp.Payload)
		if err != nil {
			return nil, err
		}
		e.members = append(e.members, member)
		e.weights = append(e.weights, mp.Weight)
	}
	return e, nil
}
