package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/geneva/internal/domain/model"
)

// sqliteTimeFormat keeps a fixed width so text ordering matches time ordering.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	clock *Clock
}

// sqlitePragmas apply to every pooled connection via the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, eris.New("sqlite: empty path")
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	s := newSettings(opts)
	return &SQLiteStore{db: db, clock: s.clock}, nil
}

func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evaluators (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	evaluator_id TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	email        TEXT,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        TEXT NOT NULL UNIQUE,
	evaluator_id      TEXT NOT NULL REFERENCES evaluators(evaluator_id),
	files_hash        TEXT NOT NULL,
	detailed_filename TEXT,
	summary_filename  TEXT,
	metadata_filename TEXT,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL REFERENCES sessions(session_id),
	patient_id       TEXT NOT NULL,
	gene_name        TEXT NOT NULL,
	is_causal        INTEGER NOT NULL DEFAULT 0,
	final_rank       INTEGER,
	traceability     TEXT,
	phenotype_match  TEXT,
	factuality       TEXT,
	actionability    TEXT,
	confidence       INTEGER,
	interpretability INTEGER,
	preferred_source TEXT,
	notes            TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (session_id, patient_id, gene_name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_evaluator_hash ON sessions(evaluator_id, files_hash);
CREATE INDEX IF NOT EXISTS idx_evaluations_updated_at ON evaluations(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateEvaluator(ctx context.Context, evaluatorID, name, email string) error {
	defer observe(BackendSQLite, "create_evaluator", time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluators (evaluator_id, name, email, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(evaluator_id) DO NOTHING`,
		evaluatorID, name, nullString(email), sqliteTime(s.clock.Now()),
	)
	return fault(BackendSQLite, eris.Wrapf(err, "sqlite: insert evaluator %s", evaluatorID))
}

func (s *SQLiteStore) GetEvaluator(ctx context.Context, evaluatorID string) (*model.Evaluator, error) {
	defer observe(BackendSQLite, "get_evaluator", time.Now())
	var (
		e       model.Evaluator
		email   sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, evaluator_id, name, email, created_at FROM evaluators WHERE evaluator_id = ?`,
		evaluatorID,
	).Scan(&e.ID, &e.EvaluatorID, &e.Name, &email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrapf(err, "sqlite: get evaluator %s", evaluatorID))
	}
	if email.Valid {
		e.Email = optional(email.String)
	}
	if e.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

const sqliteSessionColumns = `id, session_id, evaluator_id, files_hash, detailed_filename, summary_filename, metadata_filename, created_at`

func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID, evaluatorID, fingerprint string, files model.Filenames) (*model.Session, error) {
	defer observe(BackendSQLite, "create_session", time.Now())
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, evaluator_id, files_hash, detailed_filename, summary_filename, metadata_filename, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, evaluatorID, fingerprint,
		nullString(files.Detailed), nullString(files.Summary), nullString(files.Metadata),
		sqliteTime(now),
	)
	if isSQLiteUnique(err) {
		return nil, eris.Wrapf(ErrConflict, "sqlite: session %s", sessionID)
	}
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrapf(err, "sqlite: insert session %s", sessionID))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: session id")
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

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	defer observe(BackendSQLite, "get_session", time.Now())
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	return scanSQLiteSession(row)
}

func (s *SQLiteStore) FindSessionByFingerprint(ctx context.Context, evaluatorID, fingerprint string) (*model.Session, error) {
	defer observe(BackendSQLite, "find_session", time.Now())
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions
		 WHERE evaluator_id = ? AND files_hash = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		evaluatorID, fingerprint)
	return scanSQLiteSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error) {
	defer observe(BackendSQLite, "list_sessions", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions
		 WHERE evaluator_id = ? ORDER BY created_at DESC, id DESC`, evaluatorID)
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrap(err, "sqlite: list sessions"))
	}
	defer rows.Close()

	out := []model.Session{}
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) UpsertEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error) {
	defer observe(BackendSQLite, "upsert_evaluation", time.Now())
	e := in.ToEvaluation(sessionID, s.clock.Now())
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO evaluations
		 (session_id, patient_id, gene_name, is_causal, final_rank,
		  traceability, phenotype_match, factuality, actionability,
		  confidence, interpretability, preferred_source, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, patient_id, gene_name) DO UPDATE SET
		   is_causal = excluded.is_causal,
		   final_rank = excluded.final_rank,
		   traceability = excluded.traceability,
		   phenotype_match = excluded.phenotype_match,
		   factuality = excluded.factuality,
		   actionability = excluded.actionability,
		   confidence = excluded.confidence,
		   interpretability = excluded.interpretability,
		   preferred_source = excluded.preferred_source,
		   notes = excluded.notes,
		   updated_at = excluded.updated_at
		 RETURNING id`,
		e.SessionID, e.PatientID, e.GeneName, e.IsCausal, e.FinalRank,
		e.Traceability, e.PhenotypeMatch, e.Factuality, e.Actionability,
		e.Confidence, e.Interpretability, e.PreferredSource, e.Notes,
		sqliteTime(e.CreatedAt), sqliteTime(e.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fault(BackendSQLite, eris.Wrapf(err, "sqlite: upsert evaluation %s/%s/%s", sessionID, in.PatientID, in.GeneName))
	}
	return id, nil
}

const sqliteEvaluationColumns = `e.id, e.session_id, e.patient_id, e.gene_name, e.is_causal, e.final_rank,
	e.traceability, e.phenotype_match, e.factuality, e.actionability,
	e.confidence, e.interpretability, e.preferred_source, e.notes, e.created_at, e.updated_at`

func (s *SQLiteStore) ListEvaluationsForSession(ctx context.Context, sessionID string) ([]model.Evaluation, error) {
	defer observe(BackendSQLite, "list_session_evaluations", time.Now())
	return s.queryEvaluations(ctx, "session",
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations e WHERE e.session_id = ? ORDER BY e.id`, sessionID)
}

func (s *SQLiteStore) ListEvaluationsForEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error) {
	defer observe(BackendSQLite, "list_evaluator_evaluations", time.Now())
	return s.queryEvaluations(ctx, "evaluator",
		`SELECT `+sqliteEvaluationColumns+` FROM evaluations e
		 JOIN sessions s ON e.session_id = s.session_id
		 WHERE s.evaluator_id = ?
		 ORDER BY e.updated_at DESC, e.id DESC`, evaluatorID)
}

func (s *SQLiteStore) queryEvaluations(ctx context.Context, scope, query string, args ...any) ([]model.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrapf(err, "sqlite: list %s evaluations", scope))
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		e, err := scanSQLiteEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list %s evaluations iterate", scope)
}

func (s *SQLiteStore) ListAllEvaluations(ctx context.Context) ([]model.ExportRow, error) {
	defer observe(BackendSQLite, "list_all_evaluations", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEvaluationColumns+`, s.evaluator_id, s.detailed_filename, s.summary_filename
		 FROM evaluations e
		 JOIN sessions s ON e.session_id = s.session_id
		 ORDER BY e.updated_at DESC, e.id DESC`)
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrap(err, "sqlite: list all evaluations"))
	}
	defer rows.Close()

	out := []model.ExportRow{}
	for rows.Next() {
		var (
			r                 model.ExportRow
			detailed, summary sql.NullString
		)
		e, err := scanSQLiteEvaluation(rows, &r.EvaluatorID, &detailed, &summary)
		if err != nil {
			return nil, err
		}
		r.Evaluation = *e
		r.DetailedFilename = detailed.String
		r.SummaryFilename = summary.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list all evaluations iterate")
}

func (s *SQLiteStore) CountEvaluations(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evaluations WHERE session_id = ?`, sessionID).Scan(&n)
	return n, fault(BackendSQLite, eris.Wrapf(err, "sqlite: count evaluations %s", sessionID))
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM evaluators), (SELECT COUNT(*) FROM sessions), (SELECT COUNT(*) FROM evaluations)`,
	).Scan(&st.Evaluators, &st.Sessions, &st.Evaluations)
	return st, eris.Wrap(err, "sqlite: stats")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row scannable) (*model.Session, error) {
	var (
		sess                        model.Session
		detailed, summary, metadata sql.NullString
		created                     string
	)
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.EvaluatorID, &sess.FilesHash,
		&detailed, &summary, &metadata, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault(BackendSQLite, eris.Wrap(err, "sqlite: scan session"))
	}
	sess.Filenames = model.Filenames{Detailed: detailed.String, Summary: summary.String, Metadata: metadata.String}
	if sess.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSQLiteEvaluation(row scannable, extra ...any) (*model.Evaluation, error) {
	var (
		e                    model.Evaluation
		finalRank            sql.NullInt64
		confidence, interp   sql.NullInt64
		trace, pheno         sql.NullString
		fact, action         sql.NullString
		source, notes        sql.NullString
		createdAt, updatedAt string
	)
	dest := []any{
		&e.ID, &e.SessionID, &e.PatientID, &e.GeneName, &e.IsCausal, &finalRank,
		&trace, &pheno, &fact, &action,
		&confidence, &interp, &source, &notes, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, fault(BackendSQLite, eris.Wrap(err, "sqlite: scan evaluation"))
	}
	e.FinalRank = intPtr(finalRank)
	e.Confidence = intPtr(confidence)
	e.Interpretability = intPtr(interp)
	e.Traceability = strPtr(trace)
	e.PhenotypeMatch = strPtr(pheno)
	e.Factuality = strPtr(fact)
	e.Actionability = strPtr(action)
	e.PreferredSource = source.String
	e.Notes = notes.String

	var err error
	if e.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeFormat, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
