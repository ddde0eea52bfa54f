// Package repository defines the record store for evaluators, sessions and
// evaluations, with SQLite, Postgres and in-memory backends.
package repository

import (
	"context"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	"github.com/okian/geneva/pkg/metrics"
)

// Store is the durable record store. Uniqueness is enforced by the backend:
// one evaluator per id, one session per key, one evaluation per
// (session, patient, gene).
//
// Get-style lookups return nil, nil when the record is absent and an error
// only for faults.
type Store interface {
	// CreateEvaluator inserts the evaluator if absent. An existing evaluator
	// is left untouched and no error is returned.
	CreateEvaluator(ctx context.Context, evaluatorID, name, email string) error
	GetEvaluator(ctx context.Context, evaluatorID string) (*model.Evaluator, error)

	// CreateSession inserts a new session. A duplicate key fails with ErrConflict.
	CreateSession(ctx context.Context, sessionID, evaluatorID, fingerprint string, files model.Filenames) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	// FindSessionByFingerprint returns the most recently created match.
	FindSessionByFingerprint(ctx context.Context, evaluatorID, fingerprint string) (*model.Session, error)
	ListSessions(ctx context.Context, evaluatorID string) ([]model.Session, error)

	// UpsertEvaluation atomically inserts or fully replaces the evaluation for
	// (sessionID, patient, gene) and returns its row id. created_at is kept
	// on replace; updated_at advances.
	UpsertEvaluation(ctx context.Context, sessionID string, in model.EvaluationInput) (int64, error)
	ListEvaluationsForSession(ctx context.Context, sessionID string) ([]model.Evaluation, error)
	// ListEvaluationsForEvaluator and ListAllEvaluations order by most
	// recently updated first.
	ListEvaluationsForEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error)
	ListAllEvaluations(ctx context.Context) ([]model.ExportRow, error)
	CountEvaluations(ctx context.Context, sessionID string) (int, error)

	Stats(ctx context.Context) (Stats, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Stats holds record counts per entity kind.
type Stats struct {
	Evaluators  int `json:"evaluators"`
	Sessions    int `json:"sessions"`
	Evaluations int `json:"evaluations"`
}

// Backend names used in metrics labels and configuration.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// observe records the latency of one store operation.
func observe(backend, op string, start time.Time) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}

// fault counts a storage failure and passes err through.
func fault(backend string, err error) error {
	if err != nil {
		metrics.RecordErrorByComponent("repository_"+backend, "storage")
	}
	return err
}
