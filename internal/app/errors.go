package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrValidation        = errors.New("validation failed")
	ErrEvaluatorNotFound = errors.New("evaluator not found")
	ErrSessionNotFound   = errors.New("session not found")
)

// ValidationError carries a user-facing message naming the missing input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
