package engine

import (
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
)

// Errors surfaced to callers. Storage sentinels are wrapped alongside them so
// errors.Is works against either.
var (
	// ErrNotFound indicates an unknown memory, a memory owned by someone else,
	// or no eligible memory to answer from.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation error")

	// ErrIngestionFailure indicates the capture was stored but could not be
	// processed.
	ErrIngestionFailure = errors.New("ingestion failure")

	// ErrRetrievalUnavailable indicates embedding or answer generation failed.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrNotStarted is returned when the engine is used before Start.
	ErrNotStarted = errors.New("engine not started")
)

// mapStoreError translates storage sentinels into engine sentinels.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrInvalidInput):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
