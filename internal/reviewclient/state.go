package reviewclient

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/okian/geneva/internal/domain/dataset"
	"github.com/okian/geneva/internal/domain/model"
	"github.com/rotisserie/eris"
)

const snapshotPermission = 0o600

// State is the reviewer's position within a session. Every transition
// returns a new State; the receiver is never modified.
type State struct {
	Evaluator *model.Evaluator
	Session   *model.Session
	Cases     []dataset.Case
	CaseIndex int
	GeneIndex int
	cache     map[string]model.Evaluation
}

// NewState starts a state over the given cases with nothing evaluated.
func NewState(cases []dataset.Case) State {
	return State{Cases: cases, cache: map[string]model.Evaluation{}}
}

// WithEvaluator records the logged-in evaluator.
func (s State) WithEvaluator(ev model.Evaluator) State {
	s.Evaluator = &ev
	return s
}

// WithSession switches to a resolved session. The cache is replaced by the
// session's stored evaluations and the position resets to the first gene.
func (s State) WithSession(sess model.Session, evals []model.Evaluation) State {
	s.Session = &sess
	s.cache = make(map[string]model.Evaluation, len(evals))
	for _, e := range evals {
		s.cache[e.CacheKey()] = e
	}
	s.CaseIndex, s.GeneIndex = 0, 0
	return s
}

// SelectCase moves to case i, first gene. Out of range indexes are ignored.
func (s State) SelectCase(i int) State {
	if i < 0 || i >= len(s.Cases) {
		return s
	}
	s.CaseIndex, s.GeneIndex = i, 0
	return s
}

// SelectGene moves to gene i of the current case.
func (s State) SelectGene(i int) State {
	c, ok := s.currentCase()
	if !ok || i < 0 || i >= len(c.Genes) {
		return s
	}
	s.GeneIndex = i
	return s
}

// NextCase moves to the following case, if any.
func (s State) NextCase() State {
	return s.SelectCase(s.CaseIndex + 1)
}

// PrevCase moves to the preceding case, if any.
func (s State) PrevCase() State {
	return s.SelectCase(s.CaseIndex - 1)
}

// Advance is save-and-next navigation: the next gene of the current case,
// else the first gene of the next case. done is true when there is neither.
func (s State) Advance() (next State, done bool) {
	c, ok := s.currentCase()
	if !ok {
		return s, true
	}
	if s.GeneIndex+1 < len(c.Genes) {
		s.GeneIndex++
		return s, false
	}
	if s.CaseIndex+1 < len(s.Cases) {
		s.CaseIndex++
		s.GeneIndex = 0
		return s, false
	}
	return s, true
}

// NextPending moves to the first gene, in review order, that has no cached
// evaluation. ok is false when every gene has one.
func (s State) NextPending() (next State, ok bool) {
	cur := s.SelectCase(0)
	for {
		if c, g, found := cur.Current(); found {
			if _, seen := cur.Lookup(c.PatientID, g.GeneName); !seen {
				return cur, true
			}
		}
		moved, done := cur.Advance()
		if done {
			return s, false
		}
		cur = moved
	}
}

// ApplySaved records an evaluation the server has accepted.
func (s State) ApplySaved(e model.Evaluation) State {
	cache := make(map[string]model.Evaluation, len(s.cache)+1)
	for k, v := range s.cache {
		cache[k] = v
	}
	cache[e.CacheKey()] = e
	s.cache = cache
	return s
}

// Current returns the case and gene under review.
func (s State) Current() (dataset.Case, dataset.DetailedRow, bool) {
	c, ok := s.currentCase()
	if !ok || s.GeneIndex >= len(c.Genes) {
		return dataset.Case{}, dataset.DetailedRow{}, false
	}
	return c, c.Genes[s.GeneIndex], true
}

// Lookup returns the cached evaluation for a patient and gene.
func (s State) Lookup(patientID, gene string) (model.Evaluation, bool) {
	e, ok := s.cache[patientID+"_"+gene]
	return e, ok
}

func (s State) currentCase() (dataset.Case, bool) {
	if s.CaseIndex < 0 || s.CaseIndex >= len(s.Cases) {
		return dataset.Case{}, false
	}
	return s.Cases[s.CaseIndex], true
}

// CaseProgress counts evaluated genes within one case.
type CaseProgress struct {
	PatientID string `json:"patientId"`
	Evaluated int    `json:"evaluated"`
	Total     int    `json:"total"`
}

// Progress counts evaluated genes overall and per case.
type Progress struct {
	Evaluated int            `json:"evaluated"`
	Total     int            `json:"total"`
	Cases     []CaseProgress `json:"cases"`
}

// Progress reports how many candidate genes have a cached evaluation.
func (s State) Progress() Progress {
	p := Progress{Cases: make([]CaseProgress, 0, len(s.Cases))}
	for _, c := range s.Cases {
		cp := CaseProgress{PatientID: c.PatientID, Total: len(c.Genes)}
		for _, g := range c.Genes {
			if _, ok := s.Lookup(c.PatientID, g.GeneName); ok {
				cp.Evaluated++
			}
		}
		p.Evaluated += cp.Evaluated
		p.Total += cp.Total
		p.Cases = append(p.Cases, cp)
	}
	return p
}

// Snapshot is the part of the state kept across runs.
type Snapshot struct {
	EvaluatorID string `json:"evaluatorId"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// Snapshot extracts the persisted identity and session key.
func (s State) Snapshot() Snapshot {
	var snap Snapshot
	if s.Evaluator != nil {
		snap.EvaluatorID = s.Evaluator.EvaluatorID
		snap.Name = s.Evaluator.Name
		if s.Evaluator.Email != nil {
			snap.Email = *s.Evaluator.Email
		}
	}
	if s.Session != nil {
		snap.SessionID = s.Session.SessionID
	}
	return snap
}

// WriteSnapshot stores snap as JSON at path.
func WriteSnapshot(path string, snap Snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode snapshot")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return eris.Wrapf(err, "create %s", dir)
		}
	}
	return eris.Wrapf(os.WriteFile(path, b, snapshotPermission), "write snapshot %s", path)
}

// Restore reads a snapshot from path. A missing file yields an empty snapshot.
func Restore(path string) (Snapshot, error) {
	var snap Snapshot
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, eris.Wrapf(err, "read snapshot %s", path)
	}
	return snap, eris.Wrapf(json.Unmarshal(b, &snap), "decode snapshot %s", path)
}
