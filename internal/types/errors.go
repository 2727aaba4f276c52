package types

import "errors"

var (
	// ErrValidation marks malformed caller input (feedback, context fields).
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)
