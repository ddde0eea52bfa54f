package model

import (
	"errors"
	"strings"
)

// Sentinel errors for model decoding and validation.
var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidNumber = errors.New("invalid number")
	ErrInvalidTags   = errors.New("invalid source tags")
)

// MissingFieldsError names the required fields absent from a request.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return strings.Join(e.Fields, ", ") + " required"
}

// Is matches ErrMissingFields.
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}
