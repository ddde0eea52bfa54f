package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/geneva/internal/app"
	"github.com/okian/geneva/internal/domain/model"
)

// EvaluationDependencies is the subset of Dependencies used by EvaluationHandler.
type EvaluationDependencies interface {
	SaveEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error)
	ListEvaluations(ctx context.Context, sessionID string) ([]model.Evaluation, error)
}

// EvaluationHandler handles evaluation saves and listings.
type EvaluationHandler struct {
	deps EvaluationDependencies
	responder
}

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(deps EvaluationDependencies, r responder) *EvaluationHandler {
	return &EvaluationHandler{deps: deps, responder: r}
}

type saveRequest struct {
	SessionID  string                 `json:"sessionId"`
	Evaluation *model.EvaluationInput `json:"evaluation"`
}

type saveResponse struct {
	Success      bool   `json:"success"`
	EvaluationID int64  `json:"evaluationId"`
	Message      string `json:"message"`
}

type evaluationsResponse struct {
	Success     bool               `json:"success"`
	Count       int                `json:"count"`
	Evaluations []model.Evaluation `json:"evaluations"`
}

// HandleSave handles POST /api/evaluation.
func (h *EvaluationHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_evaluation"
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, op, err, "Failed to save evaluation")
		return
	}
	if req.SessionID == "" || req.Evaluation == nil {
		h.fail(w, r, op, &service.ValidationError{Msg: "Session ID and evaluation data are required"}, "Failed to save evaluation")
		return
	}
	id, err := h.deps.SaveEvaluation(r.Context(), req.SessionID, *req.Evaluation)
	if err != nil {
		h.fail(w, r, op, err, "Failed to save evaluation")
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, EvaluationID: id, Message: "Evaluation saved successfully"})
}

// HandleList handles GET /api/evaluations/{sessionId}.
func (h *EvaluationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_evaluations"
	evals, err := h.deps.ListEvaluations(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, r, op, err, "Failed to retrieve evaluations")
		return
	}
	writeJSON(w, http.StatusOK, evaluationsResponse{Success: true, Count: len(evals), Evaluations: nonNil(evals)})
}
