// Package export serialises evaluation sets as CSV.
//
// encoding/csv only quotes fields that need it; the notes column is always
// quoted here so the output is read the same way by spreadsheet tools
// whether or not a note contains delimiters.
package export

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	"github.com/rotisserie/eris"
)

const (
	fieldSep  = ","
	recordSep = "\n"
	dateFmt   = "2006-01-02"
)

// EvaluatorHeader is the header of a per-evaluator export.
var EvaluatorHeader = []string{
	"session_id", "patient_id", "gene_name", "is_causal", "final_rank",
	"traceability", "phenotype_match", "factuality", "actionability",
	"confidence", "interpretability", "preferred_source", "notes",
	"created_at", "updated_at",
}

// AllHeader is the header of the global export.
var AllHeader = []string{
	"evaluator_id", "session_id", "patient_id", "gene_name", "is_causal", "final_rank",
	"traceability", "phenotype_match", "factuality", "actionability",
	"confidence", "interpretability", "preferred_source", "notes",
	"detailed_filename", "summary_filename", "created_at", "updated_at",
}

// WriteEvaluator writes one evaluator's evaluations, newest update first.
// It returns the number of data rows written.
func WriteEvaluator(w io.Writer, rows []model.Evaluation) (int, error) {
	sorted := append([]model.Evaluation(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return newer(sorted[i], sorted[j]) })

	bw := bufio.NewWriter(w)
	writeRecord(bw, EvaluatorHeader, -1)
	for _, e := range sorted {
		bw.WriteString(recordSep)
		writeRecord(bw, evaluationFields(e), notesColumn(EvaluatorHeader))
	}
	return len(sorted), eris.Wrap(bw.Flush(), "export: write evaluator csv")
}

// WriteAll writes every evaluation with its evaluator and session filenames.
func WriteAll(w io.Writer, rows []model.ExportRow) (int, error) {
	sorted := append([]model.ExportRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return newer(sorted[i].Evaluation, sorted[j].Evaluation) })

	bw := bufio.NewWriter(w)
	writeRecord(bw, AllHeader, -1)
	for _, r := range sorted {
		f := evaluationFields(r.Evaluation)
		// evaluator_id, <evaluation minus timestamps>, filenames, timestamps
		rec := make([]string, 0, len(AllHeader))
		rec = append(rec, r.EvaluatorID)
		rec = append(rec, f[:len(f)-2]...)
		rec = append(rec, r.DetailedFilename, r.SummaryFilename)
		rec = append(rec, f[len(f)-2:]...)
		bw.WriteString(recordSep)
		writeRecord(bw, rec, notesColumn(AllHeader))
	}
	return len(sorted), eris.Wrap(bw.Flush(), "export: write global csv")
}

// EvaluatorFilename is the attachment name for a per-evaluator export.
func EvaluatorFilename(evaluatorID string, now time.Time) string {
	return "evaluations_" + evaluatorID + "_" + now.UTC().Format(dateFmt) + ".csv"
}

// AllFilename is the attachment name for the global export.
func AllFilename(now time.Time) string {
	return "all_evaluations_" + now.UTC().Format(dateFmt) + ".csv"
}

func newer(a, b model.Evaluation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

func evaluationFields(e model.Evaluation) []string {
	return []string{
		e.SessionID,
		e.PatientID,
		e.GeneName,
		strconv.FormatBool(e.IsCausal),
		intField(e.FinalRank),
		strField(e.Traceability),
		strField(e.PhenotypeMatch),
		strField(e.Factuality),
		strField(e.Actionability),
		intField(e.Confidence),
		intField(e.Interpretability),
		e.PreferredSource,
		e.Notes,
		timeField(e.CreatedAt),
		timeField(e.UpdatedAt),
	}
}

func notesColumn(header []string) int {
	for i, h := range header {
		if h == "notes" {
			return i
		}
	}
	return -1
}

func writeRecord(w *bufio.Writer, fields []string, alwaysQuote int) {
	for i, f := range fields {
		if i > 0 {
			w.WriteString(fieldSep)
		}
		if i == alwaysQuote || needsQuote(f) {
			w.WriteString(Quote(f))
			continue
		}
		w.WriteString(f)
	}
}

func needsQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\r\n")
}

// Quote wraps s in double quotes, doubling embedded quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func intField(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func strField(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeField(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
