package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/geneva/internal/app"
	"github.com/okian/geneva/internal/domain/model"
)

// SessionDependencies is the subset of Dependencies used by SessionHandler.
type SessionDependencies interface {
	ResolveSession(ctx context.Context, req service.SessionRequest) (*service.Resolution, error)
	GetSession(ctx context.Context, sessionID string) (*service.SessionView, error)
	ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error)
}

// SessionHandler handles session resolution and lookup.
type SessionHandler struct {
	deps SessionDependencies
	responder
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies, r responder) *SessionHandler {
	return &SessionHandler{deps: deps, responder: r}
}

type resolveRequest struct {
	EvaluatorID     string          `json:"evaluatorId"`
	DetailedContent string          `json:"detailedContent"`
	SummaryContent  string          `json:"summaryContent"`
	Filenames       model.Filenames `json:"filenames"`
}

type resolveResponse struct {
	Success     bool               `json:"success"`
	Session     *model.Session     `json:"session"`
	Evaluations []model.Evaluation `json:"evaluations"`
	Created     bool               `json:"created"`
}

type sessionResponse struct {
	Success          bool               `json:"success"`
	Session          *model.Session     `json:"session"`
	EvaluationsCount int                `json:"evaluationsCount"`
	Evaluations      []model.Evaluation `json:"evaluations"`
}

type sessionsResponse struct {
	Success  bool            `json:"success"`
	Sessions []model.Session `json:"sessions"`
}

// HandleResolve handles POST /api/session.
func (h *SessionHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_session"
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, op, err, "Failed to create/retrieve session")
		return
	}
	res, err := h.deps.ResolveSession(r.Context(), service.SessionRequest{
		EvaluatorID:     req.EvaluatorID,
		DetailedContent: req.DetailedContent,
		SummaryContent:  req.SummaryContent,
		Filenames:       req.Filenames,
	})
	if err != nil {
		h.fail(w, r, op, err, "Failed to create/retrieve session")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Success:     true,
		Session:     res.Session,
		Evaluations: nonNil(res.Evaluations),
		Created:     res.Created,
	})
}

// HandleGet handles GET /api/session/{sessionId}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	view, err := h.deps.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, r, op, err, "Failed to retrieve session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:          true,
		Session:          view.Session,
		EvaluationsCount: len(view.Evaluations),
		Evaluations:      nonNil(view.Evaluations),
	})
}

// HandleList handles GET /api/sessions/{evaluatorId}.
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_sessions"
	sessions, err := h.deps.ListSessions(r.Context(), chi.URLParam(r, "evaluatorId"))
	if err != nil {
		h.fail(w, r, op, err, "Failed to retrieve sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Success: true, Sessions: nonNil(sessions)})
}
