package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	"github.com/rotisserie/eris"
)

type evalKey struct {
	session string
	patient string
	gene    string
}

// MemoryStore is an in-process Store guarded by a single mutex. Every
// operation runs under the lock, so each one is atomic.
type MemoryStore struct {
	mu sync.RWMutex

	clock  *Clock
	nextID int64

	evaluators  map[string]model.Evaluator
	sessions    map[string]model.Session
	evaluations map[evalKey]model.Evaluation
	closed      bool
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *MemoryStore {
	s := newSettings(opts)
	return &MemoryStore{
		clock:       s.clock,
		evaluators:  make(map[string]model.Evaluator),
		sessions:    make(map[string]model.Session),
		evaluations: make(map[evalKey]model.Evaluation),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed {
		return eris.New("memory: store closed")
	}
	return ctx.Err()
}

// Migrate is a no-op.
func (s *MemoryStore) Migrate(ctx context.Context) error { return ctx.Err() }

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) CreateEvaluator(ctx context.Context, evaluatorID, name, email string) error {
	defer observe(BackendMemory, "create_evaluator", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.evaluators[evaluatorID]; ok {
		return nil
	}
	s.evaluators[evaluatorID] = model.Evaluator{
		ID:          s.id(),
		EvaluatorID: evaluatorID,
		Name:        name,
		Email:       optional(email),
		CreatedAt:   s.clock.Now(),
	}
	return nil
}

func (s *MemoryStore) GetEvaluator(ctx context.Context, evaluatorID string) (*model.Evaluator, error) {
	defer observe(BackendMemory, "get_evaluator", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	e, ok := s.evaluators[evaluatorID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, sessionID, evaluatorID, fingerprint string, files model.Filenames) (*model.Session, error) {
	defer observe(BackendMemory, "create_session", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.sessions[sessionID]; ok {
		return nil, eris.Wrapf(ErrConflict, "memory: session %s", sessionID)
	}
	sess := model.Session{
		ID:          s.id(),
		SessionID:   sessionID,
		EvaluatorID: evaluatorID,
		FilesHash:   fingerprint,
		Filenames:   files,
		CreatedAt:   s.clock.Now(),
	}
	s.sessions[sessionID] = sess
	return &sess, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	defer observe(BackendMemory, "get_session", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *MemoryStore) FindSessionByFingerprint(ctx context.Context, evaluatorID, fingerprint string) (*model.Session, error) {
	defer observe(BackendMemory, "find_session", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var best *model.Session
	for _, sess := range s.sessions {
		if sess.EvaluatorID != evaluatorID || sess.FilesHash != fingerprint {
			continue
		}
		if best == nil || sessionNewer(sess, *best) {
			cp := sess
			best = &cp
		}
	}
	return best, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error) {
	defer observe(BackendMemory, "list_sessions", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := []model.Session{}
	for _, sess := range s.sessions {
		if sess.EvaluatorID == evaluatorID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return sessionNewer(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) UpsertEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error) {
	defer observe(BackendMemory, "upsert_evaluation", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	key := evalKey{session: sessionID, patient: in.PatientID, gene: in.GeneName}
	next := in.ToEvaluation(sessionID, s.clock.Now())
	if prev, ok := s.evaluations[key]; ok {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
	} else {
		next.ID = s.id()
	}
	s.evaluations[key] = next
	return next.ID, nil
}

func (s *MemoryStore) ListEvaluationsForSession(ctx context.Context, sessionID string) ([]model.Evaluation, error) {
	defer observe(BackendMemory, "list_session_evaluations", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := []model.Evaluation{}
	for k, e := range s.evaluations {
		if k.session == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListEvaluationsForEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error) {
	defer observe(BackendMemory, "list_evaluator_evaluations", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := []model.Evaluation{}
	for k, e := range s.evaluations {
		if sess, ok := s.sessions[k.session]; ok && sess.EvaluatorID == evaluatorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return evaluationNewer(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) ListAllEvaluations(ctx context.Context) ([]model.ExportRow, error) {
	defer observe(BackendMemory, "list_all_evaluations", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := []model.ExportRow{}
	for k, e := range s.evaluations {
		sess, ok := s.sessions[k.session]
		if !ok {
			continue
		}
		out = append(out, model.ExportRow{
			Evaluation:       e,
			EvaluatorID:      sess.EvaluatorID,
			DetailedFilename: sess.Filenames.Detailed,
			SummaryFilename:  sess.Filenames.Summary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return evaluationNewer(out[i].Evaluation, out[j].Evaluation) })
	return out, nil
}

func (s *MemoryStore) CountEvaluations(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for k := range s.evaluations {
		if k.session == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Evaluators:  len(s.evaluators),
		Sessions:    len(s.sessions),
		Evaluations: len(s.evaluations),
	}, nil
}

func sessionNewer(a, b model.Session) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func evaluationNewer(a, b model.Evaluation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
