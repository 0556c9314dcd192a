package annoy

import (
	"errors"
	"fmt"
)

// Sentinel errors for index operations. Use errors.Is() to check error types.
var (
	// ErrNotBuilt is returned when querying an index that was never built or
	// loaded, or has been closed.
	ErrNotBuilt = errors.New("annoy: index not built")

	ErrCorrupt = errors.New("annoy: index file corrupt")

	// ErrFingerprintMismatch indicates a persisted index was built for a
	// different corpus or encoder than the one it is being loaded for.
	ErrFingerprintMismatch = errors.New("annoy: index fingerprint mismatch")

	ErrOutOfOrder        = errors.New("annoy: items must be added in slot order")
	ErrDimensionMismatch = errors.New("annoy: vector dimension mismatch")
	ErrAlreadyBuilt      = errors.New("annoy: builder already finalised")
)

// MismatchError describes which part of a fingerprint differs.
type MismatchError struct {
	Path     string
	Expected Fingerprint
	Actual   Fingerprint
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("annoy: index %s was built for %d x %d (%s), expected %d x %d (%s)",
		e.Path, e.Actual.Count, e.Actual.Dim, e.Actual.Encoder,
		e.Expected.Count, e.Expected.Dim, e.Expected.Encoder)
}

func (e *MismatchError) Unwrap() error {
	return ErrFingerprintMismatch
}
