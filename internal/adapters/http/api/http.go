// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/geneva/internal/adapters/repository"
	service "github.com/okian/geneva/internal/app"
	"github.com/okian/geneva/internal/domain/model"
	"github.com/okian/geneva/pkg/logger"
)

// DefaultMaxBodyBytes caps JSON request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 50 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Login(ctx context.Context, evaluatorID, name, email string) (*model.Evaluator, error)
	ResolveSession(ctx context.Context, req service.SessionRequest) (*service.Resolution, error)
	GetSession(ctx context.Context, sessionID string) (*service.SessionView, error)
	ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error)
	SaveEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error)
	ListEvaluations(ctx context.Context, sessionID string) ([]model.Evaluation, error)

	// Export writers return the attachment filename.
	ExportEvaluator(ctx context.Context, w io.Writer, evaluatorID string) (string, error)
	ExportAll(ctx context.Context, w io.Writer) (string, error)

	Stats(ctx context.Context) (repository.Stats, error)
}

// Server wires HTTP routes for the evaluation API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	authHandler       *AuthHandler
	sessionHandler    *SessionHandler
	evaluationHandler *EvaluationHandler
	exportHandler     *ExportHandler

	maxBodyBytes int64
	logger       logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBodyBytes caps request bodies. Non-positive values keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	r := responder{logger: s.logger}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps, r)
	s.authHandler = NewAuthHandler(deps, r)
	s.sessionHandler = NewSessionHandler(deps, r)
	s.evaluationHandler = NewEvaluationHandler(deps, r)
	s.exportHandler = NewExportHandler(deps, r)
	return s
}

// Routes returns the /api sub-router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer, Metrics, LimitBody(s.maxBodyBytes))

	r.Get("/health", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Post("/auth/login", s.authHandler.HandleLogin)
	r.Post("/session", s.sessionHandler.HandleResolve)
	r.Get("/session/{sessionId}", s.sessionHandler.HandleGet)
	r.Get("/sessions/{evaluatorId}", s.sessionHandler.HandleList)
	r.Post("/evaluation", s.evaluationHandler.HandleSave)
	r.Get("/evaluations/{sessionId}", s.evaluationHandler.HandleList)
	r.Get("/export/{evaluatorId}", s.exportHandler.HandleEvaluator)
	r.Get("/export-all", s.exportHandler.HandleAll)
	return r
}

// Register mounts the API under /api on r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Mount("/api", s.Routes())
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return WrapKind("decode", ErrBadRequest, err)
	}
	return nil
}

// responder writes error bodies and logs server-side failures.
type responder struct {
	logger logger.Logger
}

// fail writes err as a structured error body. msg is the user-facing text
// for storage failures; validation and not-found errors carry their own.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, op string, err error, msg string) {
	wrapped := err
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		wrapped = Wrap(op, err)
	}
	code, kind := status(wrapped)

	body := errorResponse{Success: false, Error: msg, Code: kind}
	switch code {
	case http.StatusBadRequest:
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			body.Error = verr.Msg
		} else {
			body.Error = "Invalid request body"
			body.Details = err.Error()
		}
	case http.StatusNotFound:
		body.Error = notFoundMessage(err)
	case http.StatusRequestEntityTooLarge:
		body.Error = "Request body too large"
	default:
		body.Details = err.Error()
		rs.logger.Error(r.Context(), msg, logger.String("op", op), logger.Error(err))
	}
	writeJSON(w, code, body)
}

func notFoundMessage(err error) string {
	if errors.Is(err, service.ErrEvaluatorNotFound) {
		return "Evaluator not found. Please login first."
	}
	return "Session not found"
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
