package model

import (
	"strings"
	"time"
)

// EvaluationInput is the complete client-submitted state of one evaluation.
// Every save replaces all rating fields of the stored row.
type EvaluationInput struct {
	PatientID        string     `json:"patient_id"`
	GeneName         string     `json:"gene_name"`
	IsCausal         bool       `json:"is_causal"`
	FinalRank        NullInt    `json:"final_rank"`
	Traceability     NullString `json:"traceability"`
	PhenotypeMatch   NullString `json:"phenotype_match"`
	Factuality       NullString `json:"factuality"`
	Actionability    NullString `json:"actionability"`
	Confidence       NullInt    `json:"confidence"`
	Interpretability NullInt    `json:"interpretability"`
	PreferredSource  SourceTags `json:"preferred_source"`
	Notes            string     `json:"notes"`
}

// Validate reports the first missing identity field.
func (in EvaluationInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.PatientID) == "" {
		missing = append(missing, "patient_id")
	}
	if strings.TrimSpace(in.GeneName) == "" {
		missing = append(missing, "gene_name")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// ToEvaluation materialises the input as a stored row for the given session.
func (in EvaluationInput) ToEvaluation(sessionID string, now time.Time) Evaluation {
	return Evaluation{
		SessionID:        sessionID,
		PatientID:        in.PatientID,
		GeneName:         in.GeneName,
		IsCausal:         in.IsCausal,
		FinalRank:        in.FinalRank.Ptr(),
		Traceability:     in.Traceability.Ptr(),
		PhenotypeMatch:   in.PhenotypeMatch.Ptr(),
		Factuality:       in.Factuality.Ptr(),
		Actionability:    in.Actionability.Ptr(),
		Confidence:       in.Confidence.Ptr(),
		Interpretability: in.Interpretability.Ptr(),
		PreferredSource:  in.PreferredSource.String(),
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// InputFromEvaluation converts a stored evaluation back into a submission.
func InputFromEvaluation(e Evaluation) EvaluationInput {
	return EvaluationInput{
		PatientID:        e.PatientID,
		GeneName:         e.GeneName,
		IsCausal:         e.IsCausal,
		FinalRank:        NullIntFromPtr(e.FinalRank),
		Traceability:     NullStringFromPtr(e.Traceability),
		PhenotypeMatch:   NullStringFromPtr(e.PhenotypeMatch),
		Factuality:       NullStringFromPtr(e.Factuality),
		Actionability:    NullStringFromPtr(e.Actionability),
		Confidence:       NullIntFromPtr(e.Confidence),
		Interpretability: NullIntFromPtr(e.Interpretability),
		PreferredSource:  ParseSourceTags(e.PreferredSource),
		Notes:            e.Notes,
	}
}
