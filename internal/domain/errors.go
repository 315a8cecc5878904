// internal/domain/errors.go
package domain

import "errors"

var (
	// ErrInsufficientData means the product has fewer observations than the
	// largest lag window, so no complete feature vector can be produced.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrSchemaMismatch means a stored model was trained against a different
	// feature schema version and must be retrained before serving.
	ErrSchemaMismatch = errors.New("model feature schema mismatch")

	// ErrInvalidParameters covers non-positive horizons, costs or lead times
	// and confidence/service levels outside (0, 1).
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrTrainingFailure means every configured model kind failed to train.
	// A single kind failing is absorbed and reported in result notes.
	ErrTrainingFailure = errors.New("all models failed to train")

	// ErrModelNotFound means no artifact exists for the requested key.
	ErrModelNotFound = errors.New("model not found")

	// ErrStaleModel means a save carried an older training timestamp than
	// the stored artifact; last writer (by timestamp) wins.
	ErrStaleModel = errors.New("stale model artifact")
)
