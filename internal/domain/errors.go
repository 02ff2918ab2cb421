package domain

import "github.com/cockroachdb/errors"

// Sentinel errors shared across the store, the reconciliation engine and the
// outer surfaces. Callers wrap them with context and test with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrOutOfOrder        = errors.New("reconciliation date precedes recorded history")
	ErrUnsupportedKind   = errors.New("operation not supported for entity kind")
	ErrNotEmpty          = errors.New("table is not empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrConflict          = errors.New("conflicting versions")
)
