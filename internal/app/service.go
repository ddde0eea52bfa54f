// Package service provides the evaluation workflow behind the HTTP API:
// evaluator login, content-addressed session resolution, evaluation upserts
// and CSV export.
package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/okian/geneva/internal/adapters/repository"
	"github.com/okian/geneva/internal/domain/export"
	"github.com/okian/geneva/internal/domain/fingerprint"
	"github.com/okian/geneva/internal/domain/model"
	"github.com/okian/geneva/pkg/logger"
	"github.com/okian/geneva/pkg/metrics"
	"github.com/rotisserie/eris"
)

// Session resolution outcomes, used as metric labels.
const (
	OutcomeCreated = "created"
	OutcomeResumed = "resumed"
)

// Service implements the API dependencies for the evaluation workflow.
// It holds no mutable state; every mutation is a single atomic store call.
type Service struct {
	store  repository.Store
	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for export filenames.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// SessionRequest is an upload of the two core datasets by one evaluator.
type SessionRequest struct {
	EvaluatorID     string
	DetailedContent string
	SummaryContent  string
	Filenames       model.Filenames
}

// Resolution is a resolved session with every evaluation stored for it.
type Resolution struct {
	Session     *model.Session
	Evaluations []model.Evaluation
	Created     bool
}

// SessionView is a session with its stored evaluations.
type SessionView struct {
	Session     *model.Session
	Evaluations []model.Evaluation
}

// Login registers the evaluator on first use and returns the stored record.
// A repeated login never changes the name or email recorded first.
func (s *Service) Login(ctx context.Context, evaluatorID, name, email string) (*model.Evaluator, error) {
	if strings.TrimSpace(evaluatorID) == "" || strings.TrimSpace(name) == "" {
		return nil, invalid("evaluatorId and name are required")
	}
	if err := s.store.CreateEvaluator(ctx, evaluatorID, name, email); err != nil {
		return nil, eris.Wrap(err, "login: create evaluator")
	}
	ev, err := s.store.GetEvaluator(ctx, evaluatorID)
	if err != nil {
		return nil, eris.Wrap(err, "login: get evaluator")
	}
	if ev == nil {
		return nil, eris.Wrapf(ErrEvaluatorNotFound, "login: %s vanished after create", evaluatorID)
	}
	metrics.RecordLogin()
	s.logger.Info(ctx, "evaluator logged in", logger.String("evaluatorId", evaluatorID))
	return ev, nil
}

// ResolveSession maps an upload to its session, creating it on first sight.
// Identical detailed and summary content from the same evaluator always
// resolves to the same session; metadata and filenames do not participate.
func (s *Service) ResolveSession(ctx context.Context, req SessionRequest) (*Resolution, error) {
	var missing []string
	if strings.TrimSpace(req.EvaluatorID) == "" {
		missing = append(missing, "evaluatorId")
	}
	if req.DetailedContent == "" {
		missing = append(missing, "detailedContent")
	}
	if req.SummaryContent == "" {
		missing = append(missing, "summaryContent")
	}
	if len(missing) > 0 {
		return nil, invalid(strings.Join(missing, ", ") + " required")
	}

	ev, err := s.store.GetEvaluator(ctx, req.EvaluatorID)
	if err != nil {
		return nil, eris.Wrap(err, "resolve session: get evaluator")
	}
	if ev == nil {
		return nil, eris.Wrapf(ErrEvaluatorNotFound, "evaluator %s", req.EvaluatorID)
	}

	fp := fingerprint.Compute(req.DetailedContent, req.SummaryContent)
	sess, err := s.store.FindSessionByFingerprint(ctx, req.EvaluatorID, fp)
	if err != nil {
		return nil, eris.Wrap(err, "resolve session: find")
	}

	created := false
	if sess == nil {
		key := model.SessionKey(req.EvaluatorID, fp)
		sess, err = s.store.CreateSession(ctx, key, req.EvaluatorID, fp, req.Filenames)
		switch {
		case errors.Is(err, repository.ErrConflict):
			// lost a race with a concurrent upload of the same content
			sess, err = s.store.GetSession(ctx, key)
			if err != nil {
				return nil, eris.Wrap(err, "resolve session: reread")
			}
			if sess == nil {
				return nil, eris.Wrapf(ErrSessionNotFound, "session %s after conflict", key)
			}
		case err != nil:
			return nil, eris.Wrap(err, "resolve session: create")
		default:
			created = true
		}
	}

	evals, err := s.store.ListEvaluationsForSession(ctx, sess.SessionID)
	if err != nil {
		return nil, eris.Wrap(err, "resolve session: list evaluations")
	}

	outcome := OutcomeResumed
	if created {
		outcome = OutcomeCreated
	}
	metrics.RecordSessionResolved(outcome)
	s.logger.Info(ctx, "session resolved",
		logger.String("sessionId", sess.SessionID),
		logger.String("outcome", outcome),
		logger.Int("evaluations", len(evals)),
	)
	return &Resolution{Session: sess, Evaluations: evals, Created: created}, nil
}

// GetSession returns a session and its evaluations.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "get session")
	}
	if sess == nil {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}
	evals, err := s.store.ListEvaluationsForSession(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "get session: list evaluations")
	}
	return &SessionView{Session: sess, Evaluations: evals}, nil
}

// ListSessions returns an evaluator's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error) {
	out, err := s.store.ListSessions(ctx, evaluatorID)
	return out, eris.Wrap(err, "list sessions")
}

// SaveEvaluation stores the complete evaluation state for one
// (session, patient, gene) triple and returns the row id.
func (s *Service) SaveEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, invalid("sessionId required")
	}
	if err := in.Validate(); err != nil {
		return 0, invalid(err.Error())
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, eris.Wrap(err, "save evaluation: get session")
	}
	if sess == nil {
		return 0, eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}

	id, err := s.store.UpsertEvaluation(ctx, sessionID, in)
	if err != nil {
		return 0, eris.Wrap(err, "save evaluation: upsert")
	}
	metrics.RecordEvaluationSaved()
	s.logger.Debug(ctx, "evaluation saved",
		logger.String("sessionId", sessionID),
		logger.String("patientId", in.PatientID),
		logger.String("gene", in.GeneName),
		logger.Int64("id", id),
	)
	return id, nil
}

// ListEvaluations returns the evaluations stored for a session.
func (s *Service) ListEvaluations(ctx context.Context, sessionID string) ([]model.Evaluation, error) {
	out, err := s.store.ListEvaluationsForSession(ctx, sessionID)
	return out, eris.Wrap(err, "list evaluations")
}

// ExportEvaluator writes one evaluator's evaluations as CSV and returns the
// attachment filename.
func (s *Service) ExportEvaluator(ctx context.Context, w io.Writer, evaluatorID string) (string, error) {
	rows, err := s.store.ListEvaluationsForEvaluator(ctx, evaluatorID)
	if err != nil {
		return "", eris.Wrap(err, "export evaluator: list")
	}
	n, err := export.WriteEvaluator(w, rows)
	if err != nil {
		return "", err
	}
	metrics.RecordExport("evaluator", n)
	return export.EvaluatorFilename(evaluatorID, s.now()), nil
}

// ExportAll writes every evaluation as CSV and returns the attachment filename.
func (s *Service) ExportAll(ctx context.Context, w io.Writer) (string, error) {
	rows, err := s.store.ListAllEvaluations(ctx)
	if err != nil {
		return "", eris.Wrap(err, "export all: list")
	}
	n, err := export.WriteAll(w, rows)
	if err != nil {
		return "", err
	}
	metrics.RecordExport("all", n)
	return export.AllFilename(s.now()), nil
}

// Stats returns record counts and refreshes the record gauges.
func (s *Service) Stats(ctx context.Context) (repository.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return repository.Stats{}, eris.Wrap(err, "stats")
	}
	metrics.UpdateRecordCounts(st.Evaluators, st.Sessions, st.Evaluations)
	return st, nil
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return eris.Wrap(s.store.Ping(ctx), "ping store")
}
