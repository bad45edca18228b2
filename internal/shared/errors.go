package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks payloads rejected before any write happens.
	ErrInvalidInput = errors.New("invalid input")
)
