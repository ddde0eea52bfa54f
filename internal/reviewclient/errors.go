package reviewclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrServerUnreachable = errors.New("server unreachable")
	ErrValidation        = errors.New("rejected by server")
	ErrNotFound          = errors.New("not found on server")
	ErrServer            = errors.New("server error")
	ErrBadTarget         = errors.New("invalid export target")
	ErrIncomplete        = errors.New("stored evaluations fewer than saved")
	ErrMissingIdentity   = errors.New("evaluator id and name are required")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Code    string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Is maps the status to ErrValidation, ErrNotFound or ErrServer.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return target == ErrValidation
	case http.StatusNotFound:
		return target == ErrNotFound
	default:
		return target == ErrServer
	}
}
