// Package model contains domain models passed between layers.
package model

import "time"

// Evaluator is a reviewer identified by a self-asserted unique id.
// Email is nil when none was given.
type Evaluator struct {
	ID          int64     `json:"id"`
	EvaluatorID string    `json:"evaluatorId"`
	Name        string    `json:"name"`
	Email       *string   `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Filenames holds the original names of the uploaded datasets.
type Filenames struct {
	Detailed string `json:"detailed"`
	Summary  string `json:"summary"`
	Metadata string `json:"metadata"`
}

// Session is one reviewing pass over a pair of datasets by one evaluator.
// SessionID is always {EvaluatorID}_{FilesHash}.
type Session struct {
	ID          int64     `json:"-"`
	SessionID   string    `json:"sessionId"`
	EvaluatorID string    `json:"evaluatorId"`
	FilesHash   string    `json:"filesHash"`
	Filenames   Filenames `json:"filenames"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SessionKey builds the session identifier for an evaluator and fingerprint.
func SessionKey(evaluatorID, fingerprint string) string {
	return evaluatorID + "_" + fingerprint
}

// Evaluation is a stored rating of one gene for one patient within a session.
type Evaluation struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	PatientID        string    `json:"patient_id"`
	GeneName         string    `json:"gene_name"`
	IsCausal         bool      `json:"is_causal"`
	FinalRank        *int      `json:"final_rank"`
	Traceability     *string   `json:"traceability"`
	PhenotypeMatch   *string   `json:"phenotype_match"`
	Factuality       *string   `json:"factuality"`
	Actionability    *string   `json:"actionability"`
	Confidence       *int      `json:"confidence"`
	Interpretability *int      `json:"interpretability"`
	PreferredSource  string    `json:"preferred_source"`
	Notes            string    `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CacheKey identifies an evaluation within its session.
func (e Evaluation) CacheKey() string {
	return e.PatientID + "_" + e.GeneName
}

// ExportRow is an evaluation joined with its owning session, as used by
// the global listing and CSV export.
type ExportRow struct {
	Evaluation
	EvaluatorID      string `json:"evaluator_id"`
	DetailedFilename string `json:"detailed_filename"`
	SummaryFilename  string `json:"summary_filename"`
}
