package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrConflict      = errors.New("record already exists")
	ErrUnknownDriver = errors.New("unknown store driver")
)
