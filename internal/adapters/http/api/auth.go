package api

import (
	"context"
	"net/http"

	"github.com/okian/geneva/internal/domain/model"
)

// LoginDependencies is the subset of Dependencies used by AuthHandler.
type LoginDependencies interface {
	Login(ctx context.Context, evaluatorID, name, email string) (*model.Evaluator, error)
}

// AuthHandler handles evaluator login.
type AuthHandler struct {
	deps LoginDependencies
	responder
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(deps LoginDependencies, r responder) *AuthHandler {
	return &AuthHandler{deps: deps, responder: r}
}

type loginRequest struct {
	EvaluatorID string `json:"evaluatorId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

type loginResponse struct {
	Success   bool             `json:"success"`
	Evaluator *model.Evaluator `json:"evaluator"`
}

// HandleLogin handles POST /api/auth/login. There is no credential check;
// the evaluator id is self-asserted.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, op, err, "Login failed")
		return
	}
	ev, err := h.deps.Login(r.Context(), req.EvaluatorID, req.Name, req.Email)
	if err != nil {
		h.fail(w, r, op, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Evaluator: ev})
}
