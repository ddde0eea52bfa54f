// Package dataset decodes the uploaded review datasets into row records and
// assembles them into patient cases.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SourceEvidence is one ranking source's view of a candidate gene.
type SourceEvidence struct {
	Source      string
	Rank        string
	Explanation string
	Causality   string
}

// DetailedRow is one candidate gene for one patient.
type DetailedRow struct {
	PatientID                string `csv:"patient_id"`
	GeneName                 string `csv:"gene_name"`
	FinalRank                string `csv:"final_rank"`
	BaselineRank             string `csv:"baseline_rank"`
	FinalCausalityLikelihood string `csv:"final_causality_likelihood"`
	MergeRationale           string `csv:"merge_rationale"`

	KGRank        string `csv:"kg_rank"`
	KGExplanation string `csv:"kg_explanation"`
	KGCausality   string `csv:"kg_causality_likelihood"`

	OMIMRank        string `csv:"omim_rank"`
	OMIMExplanation string `csv:"omim_explanation"`
	OMIMCausality   string `csv:"omim_causality_likelihood"`

	GRRank        string `csv:"gr_rank"`
	GRExplanation string `csv:"gr_explanation"`
	GRCausality   string `csv:"gr_causality_likelihood"`

	LLMRank        string `csv:"llm_rank"`
	LLMExplanation string `csv:"llm_explanation"`
	LLMCausality   string `csv:"llm_causality_likelihood"`

	SPRank        string `csv:"sp_rank"`
	SPExplanation string `csv:"sp_explanation"`
	SPCausality   string `csv:"sp_causality_likelihood"`
}

// Rank parses the final rank; ok is false when it is not numeric.
func (r DetailedRow) Rank() (int, bool) {
	return parseRank(r.FinalRank)
}

// Sources lists the per-source evidence that carries a rank or explanation.
func (r DetailedRow) Sources() []SourceEvidence {
	all := []SourceEvidence{
		{Source: "kg", Rank: r.KGRank, Explanation: r.KGExplanation, Causality: r.KGCausality},
		{Source: "omim", Rank: r.OMIMRank, Explanation: r.OMIMExplanation, Causality: r.OMIMCausality},
		{Source: "gr", Rank: r.GRRank, Explanation: r.GRExplanation, Causality: r.GRCausality},
		{Source: "llm", Rank: r.LLMRank, Explanation: r.LLMExplanation, Causality: r.LLMCausality},
		{Source: "sp", Rank: r.SPRank, Explanation: r.SPExplanation, Causality: r.SPCausality},
	}
	out := all[:0]
	for _, s := range all {
		if s.Rank != "" || s.Explanation != "" {
			out = append(out, s)
		}
	}
	return out
}

// SummaryRow is the per-patient summary with the ground-truth gene.
type SummaryRow struct {
	PatientID                string `csv:"patient_id"`
	TrueGene                 string `csv:"true_gene"`
	FinalPredictedRank       string `csv:"final_predicted_rank"`
	BaselinePredictedRank    string `csv:"baseline_predicted_rank"`
	TotalCandidates          string `csv:"total_candidates"`
	FinalCausalityLikelihood string `csv:"final_causality_likelihood"`
}

// Metadata is the optional per-patient phenotype record.
type Metadata struct {
	PatientID          string          `json:"patient_id"`
	PositivePhenotypes []string        `json:"positive_phenotypes"`
	Raw                json.RawMessage `json:"-"`
}

// ParseDetailed decodes the detailed candidate CSV.
func ParseDetailed(content []byte) ([]DetailedRow, error) {
	var rows []DetailedRow
	if err := decodeCSV(content, &rows); err != nil {
		return nil, eris.Wrap(err, "dataset: parse detailed")
	}
	return rows, nil
}

// ParseSummary decodes the summary CSV.
func ParseSummary(content []byte) ([]SummaryRow, error) {
	var rows []SummaryRow
	if err := decodeCSV(content, &rows); err != nil {
		return nil, eris.Wrap(err, "dataset: parse summary")
	}
	return rows, nil
}

func decodeCSV(content []byte, v interface{}) error {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return ErrEmpty
	}
	return csvutil.Unmarshal(content, v)
}

// ParseMetadata decodes JSON Lines, falling back to a single JSON array.
// Records without a patient id are skipped.
func ParseMetadata(content []byte) (map[string]Metadata, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	out := make(map[string]Metadata)

	lines, err := parseJSONLines(content)
	if err != nil {
		var arr []json.RawMessage
		if aerr := json.Unmarshal(content, &arr); aerr != nil {
			return nil, eris.Wrap(ErrMetadataFormat, err.Error())
		}
		lines = arr
	}
	for _, raw := range lines {
		var m Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrap(ErrMetadataFormat, err.Error())
		}
		if m.PatientID == "" {
			continue
		}
		m.Raw = raw
		out[m.PatientID] = m
	}
	return out, nil
}

func parseJSONLines(content []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' || !json.Valid(line) {
			return nil, ErrMetadataFormat
		}
		out = append(out, append(json.RawMessage(nil), line...))
	}
	return out, sc.Err()
}

// Case is one patient with its ground-truth gene and ranked candidates.
type Case struct {
	PatientID string
	TrueGene  string
	Summary   SummaryRow
	Genes     []DetailedRow
}

// IsCausal reports whether gene is the case's ground-truth gene.
func (c Case) IsCausal(gene string) bool {
	return gene == c.TrueGene
}

// BuildCases groups candidates under each distinct (patient, true gene)
// summary row, in summary order, with candidates sorted by final rank.
// Non-numeric ranks sort last.
func BuildCases(summary []SummaryRow, detailed []DetailedRow) []Case {
	byPatient := make(map[string][]DetailedRow)
	for _, d := range detailed {
		byPatient[d.PatientID] = append(byPatient[d.PatientID], d)
	}

	seen := make(map[string]struct{}, len(summary))
	cases := make([]Case, 0, len(summary))
	for _, s := range summary {
		key := s.PatientID + "_" + s.TrueGene
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		genes := append([]DetailedRow(nil), byPatient[s.PatientID]...)
		sort.SliceStable(genes, func(i, j int) bool {
			return rankKey(genes[i]) < rankKey(genes[j])
		})
		cases = append(cases, Case{PatientID: s.PatientID, TrueGene: s.TrueGene, Summary: s, Genes: genes})
	}
	return cases
}

func rankKey(r DetailedRow) int {
	if v, ok := r.Rank(); ok {
		return v
	}
	return math.MaxInt
}

func parseRank(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f), true
	}
	return 0, false
}
