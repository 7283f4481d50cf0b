package domain

import "errors"

// Sentinel errors shared across storage and service layers. Callers
// match with errors.Is after %w wrapping.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
