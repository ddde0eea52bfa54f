package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/okian/geneva/internal/domain/model"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool  Pool
	clock *Clock
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts ...Option) (*PostgresStore, error) {
	s := newSettings(opts)
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = s.maxConns
	cfg.MinConns = s.minConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, clock: s.clock}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool, opts ...Option) *PostgresStore {
	s := newSettings(opts)
	return &PostgresStore{pool: pool, clock: s.clock}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS evaluators (
	id           BIGSERIAL PRIMARY KEY,
	evaluator_id TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	email        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id                BIGSERIAL PRIMARY KEY,
	session_id        TEXT NOT NULL UNIQUE,
	evaluator_id      TEXT NOT NULL REFERENCES evaluators(evaluator_id),
	files_hash        TEXT NOT NULL,
	detailed_filename TEXT,
	summary_filename  TEXT,
	metadata_filename TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evaluations (
	id               BIGSERIAL PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(session_id),
	patient_id       TEXT NOT NULL,
	gene_name        TEXT NOT NULL,
	is_causal        BOOLEAN NOT NULL DEFAULT false,
	final_rank       INTEGER,
	traceability     TEXT,
	phenotype_match  TEXT,
	factuality       TEXT,
	actionability    TEXT,
	confidence       INTEGER,
	interpretability INTEGER,
	preferred_source TEXT,
	notes            TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, patient_id, gene_name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_evaluator_hash ON sessions(evaluator_id, files_hash);
CREATE INDEX IF NOT EXISTS idx_evaluations_updated_at ON evaluations(updated_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateEvaluator(ctx context.Context, evaluatorID, name, email string) error {
	defer observe(BackendPostgres, "create_evaluator", time.Now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluators (evaluator_id, name, email, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (evaluator_id) DO NOTHING`,
		evaluatorID, name, optional(email), s.clock.Now(),
	)
	return fault(BackendPostgres, eris.Wrapf(err, "postgres: insert evaluator %s", evaluatorID))
}

func (s *PostgresStore) GetEvaluator(ctx context.Context, evaluatorID string) (*model.Evaluator, error) {
	defer observe(BackendPostgres, "get_evaluator", time.Now())
	var e model.Evaluator
	err := s.pool.QueryRow(ctx,
		`SELECT id, evaluator_id, name, email, created_at FROM evaluators WHERE evaluator_id = $1`,
		evaluatorID,
	).Scan(&e.ID, &e.EvaluatorID, &e.Name, &e.Email, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrapf(err, "postgres: get evaluator %s", evaluatorID))
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

const pgSessionColumns = `id, session_id, evaluator_id, files_hash, detailed_filename, summary_filename, metadata_filename, created_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sessionID, evaluatorID, fingerprint string, files model.Filenames) (*model.Session, error) {
	defer observe(BackendPostgres, "create_session", time.Now())
	now := s.clock.Now()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (session_id, evaluator_id, files_hash, detailed_filename, summary_filename, metadata_filename, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sessionID, evaluatorID, fingerprint,
		optional(files.Detailed), optional(files.Summary), optional(files.Metadata), now,
	).Scan(&id)
	if isPgUnique(err) {
		return nil, eris.Wrapf(ErrConflict, "postgres: session %s", sessionID)
	}
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrapf(err, "postgres: insert session %s", sessionID))
	}
	return &model.Session{
		ID:          id,
		SessionID:   sessionID,
		EvaluatorID: evaluatorID,
		FilesHash:   fingerprint,
		Filenames:   files,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	defer observe(BackendPostgres, "get_session", time.Now())
	row := s.pool.QueryRow(ctx, `SELECT `+pgSessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return scanPgSession(row)
}

func (s *PostgresStore) FindSessionByFingerprint(ctx context.Context, evaluatorID, fingerprint string) (*model.Session, error) {
	defer observe(BackendPostgres, "find_session", time.Now())
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSessionColumns+` FROM sessions
		 WHERE evaluator_id = $1 AND files_hash = $2
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		evaluatorID, fingerprint)
	return scanPgSession(row)
}

func (s *PostgresStore) ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error) {
	defer observe(BackendPostgres, "list_sessions", time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSessionColumns+` FROM sessions WHERE evaluator_id = $1 ORDER BY created_at DESC, id DESC`,
		evaluatorID)
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrap(err, "postgres: list sessions"))
	}
	defer rows.Close()

	out := []model.Session{}
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) UpsertEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error) {
	defer observe(BackendPostgres, "upsert_evaluation", time.Now())
	e := in.ToEvaluation(sessionID, s.clock.Now())
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO evaluations
		 (session_id, patient_id, gene_name, is_causal, final_rank,
		  traceability, phenotype_match, factuality, actionability,
		  confidence, interpretability, preferred_source, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (session_id, patient_id, gene_name) DO UPDATE SET
		   is_causal = EXCLUDED.is_causal,
		   final_rank = EXCLUDED.final_rank,
		   traceability = EXCLUDED.traceability,
		   phenotype_match = EXCLUDED.phenotype_match,
		   factuality = EXCLUDED.factuality,
		   actionability = EXCLUDED.actionability,
		   confidence = EXCLUDED.confidence,
		   interpretability = EXCLUDED.interpretability,
		   preferred_source = EXCLUDED.preferred_source,
		   notes = EXCLUDED.notes,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		e.SessionID, e.PatientID, e.GeneName, e.IsCausal, e.FinalRank,
		e.Traceability, e.PhenotypeMatch, e.Factuality, e.Actionability,
		e.Confidence, e.Interpretability, e.PreferredSource, e.Notes,
		e.CreatedAt, e.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fault(BackendPostgres, eris.Wrapf(err, "postgres: upsert evaluation %s/%s/%s", sessionID, in.PatientID, in.GeneName))
	}
	return id, nil
}

const pgEvaluationColumns = `e.id, e.session_id, e.patient_id, e.gene_name, e.is_causal, e.final_rank,
	e.traceability, e.phenotype_match, e.factuality, e.actionability,
	e.confidence, e.interpretability, e.preferred_source, e.notes, e.created_at, e.updated_at`

func (s *PostgresStore) ListEvaluationsForSession(ctx context.Context, sessionID string) ([]model.Evaluation, error) {
	defer observe(BackendPostgres, "list_session_evaluations", time.Now())
	return s.queryEvaluations(ctx, "session",
		`SELECT `+pgEvaluationColumns+` FROM evaluations e WHERE e.session_id = $1 ORDER BY e.id`, sessionID)
}

func (s *PostgresStore) ListEvaluationsForEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error) {
	defer observe(BackendPostgres, "list_evaluator_evaluations", time.Now())
	return s.queryEvaluations(ctx, "evaluator",
		`SELECT `+pgEvaluationColumns+` FROM evaluations e
		 JOIN sessions s ON e.session_id = s.session_id
		 WHERE s.evaluator_id = $1
		 ORDER BY e.updated_at DESC, e.id DESC`, evaluatorID)
}

func (s *PostgresStore) queryEvaluations(ctx context.Context, scope, query string, args ...any) ([]model.Evaluation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrapf(err, "postgres: list %s evaluations", scope))
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		e, err := scanPgEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: list %s evaluations iterate", scope)
}

func (s *PostgresStore) ListAllEvaluations(ctx context.Context) ([]model.ExportRow, error) {
	defer observe(BackendPostgres, "list_all_evaluations", time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgEvaluationColumns+`, s.evaluator_id, s.detailed_filename, s.summary_filename
		 FROM evaluations e
		 JOIN sessions s ON e.session_id = s.session_id
		 ORDER BY e.updated_at DESC, e.id DESC`)
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrap(err, "postgres: list all evaluations"))
	}
	defer rows.Close()

	out := []model.ExportRow{}
	for rows.Next() {
		var (
			r                 model.ExportRow
			detailed, summary *string
		)
		e, err := scanPgEvaluation(rows, &r.EvaluatorID, &detailed, &summary)
		if err != nil {
			return nil, err
		}
		r.Evaluation = *e
		r.DetailedFilename = deref(detailed)
		r.SummaryFilename = deref(summary)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list all evaluations iterate")
}

func (s *PostgresStore) CountEvaluations(ctx context.Context, sessionID string) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluations WHERE session_id = $1`, sessionID).Scan(&n)
	return int(n), fault(BackendPostgres, eris.Wrapf(err, "postgres: count evaluations %s", sessionID))
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var ev, se, ea int64
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM evaluators), (SELECT COUNT(*) FROM sessions), (SELECT COUNT(*) FROM evaluations)`,
	).Scan(&ev, &se, &ea)
	return Stats{Evaluators: int(ev), Sessions: int(se), Evaluations: int(ea)}, eris.Wrap(err, "postgres: stats")
}

func scanPgSession(row pgx.Row) (*model.Session, error) {
	var (
		sess                        model.Session
		detailed, summary, metadata *string
	)
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.EvaluatorID, &sess.FilesHash,
		&detailed, &summary, &metadata, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault(BackendPostgres, eris.Wrap(err, "postgres: scan session"))
	}
	sess.Filenames = model.Filenames{Detailed: deref(detailed), Summary: deref(summary), Metadata: deref(metadata)}
	sess.CreatedAt = sess.CreatedAt.UTC()
	return &sess, nil
}

func scanPgEvaluation(row pgx.Row, extra ...any) (*model.Evaluation, error) {
	var (
		e             model.Evaluation
		source, notes *string
	)
	dest := []any{
		&e.ID, &e.SessionID, &e.PatientID, &e.GeneName, &e.IsCausal, &e.FinalRank,
		&e.Traceability, &e.PhenotypeMatch, &e.Factuality, &e.Actionability,
		&e.Confidence, &e.Interpretability, &source, &notes, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, fault(BackendPostgres, eris.Wrap(err, "postgres: scan evaluation"))
	}
	e.PreferredSource = deref(source)
	e.Notes = deref(notes)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
