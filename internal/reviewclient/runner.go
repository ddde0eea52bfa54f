package reviewclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/okian/geneva/internal/domain/dataset"
	"github.com/okian/geneva/internal/domain/model"
	"github.com/okian/geneva/pkg/logger"
	"github.com/okian/geneva/pkg/metrics"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Export scopes.
const (
	ScopeEvaluator = "evaluator"
	ScopeAll       = "all"
)

// Submission outcomes, used as metric labels.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

const maxLineBytes = 4 << 20

// Config holds configuration for one import run.
type Config struct {
	BaseURL     string
	EvaluatorID string
	Name        string
	Email       string

	DetailedPath    string
	SummaryPath     string
	MetadataPath    string // optional
	EvaluationsPath string // JSON Lines of evaluations; optional

	Workers int
	Rate    float64 // submissions per second; 0 disables limiting
	Timeout time.Duration

	ExportTo    string // file path, directory or s3://bucket/key; empty skips export
	ExportScope string // evaluator or all
	S3          S3Options

	StatePath string // optional snapshot file
}

// Stats holds the outcome of an import run.
type Stats struct {
	SessionID      string
	SessionCreated bool
	Resumed        bool // the session matches the one in the snapshot
	Cases          int
	Read           int
	Submitted      int
	Saved          int
	Failed         int
	Skipped        int
	Stored         int
	Progress       Progress
	NextPatient    string // first unevaluated gene; empty when all are done
	NextGene       string
	ExportedTo     string
	Duration       time.Duration
}

// Run executes the health check, login, session resolution, concurrent
// submission, verification and the optional export. With a StatePath, a
// missing evaluator id, name or email is taken from the previous run's
// snapshot.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	start := time.Now()
	log := logger.Named("review")
	stats := &Stats{}

	// Step 0: identity
	var snap Snapshot
	if cfg.StatePath != "" {
		var err error
		if snap, err = Restore(cfg.StatePath); err != nil {
			return nil, err
		}
	}
	id := firstNonEmpty(cfg.EvaluatorID, snap.EvaluatorID)
	name := firstNonEmpty(cfg.Name, snap.Name)
	email := cfg.Email
	if email == "" && id == snap.EvaluatorID {
		email = snap.Email
	}
	if id == "" || name == "" {
		return nil, ErrMissingIdentity
	}

	client := NewClient(cfg.BaseURL, WithTimeout(cfg.Timeout))
	log.Info(ctx, "starting review import",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("evaluatorId", id),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate))

	// Step 1: reachability
	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	// Step 2: datasets
	up, cases, err := loadDatasets(cfg)
	if err != nil {
		return nil, err
	}
	stats.Cases = len(cases)
	state := NewState(cases)

	// Step 3: login
	ev, err := client.Login(ctx, id, name, email)
	if err != nil {
		return nil, eris.Wrap(err, "login")
	}
	state = state.WithEvaluator(*ev)

	// Step 4: session
	up.EvaluatorID = ev.EvaluatorID
	res, err := client.ResolveSession(ctx, up)
	if err != nil {
		return nil, eris.Wrap(err, "resolve session")
	}
	state = state.WithSession(res.Session, res.Evaluations)
	stats.SessionID = res.Session.SessionID
	stats.SessionCreated = res.Created
	log.Info(ctx, "session resolved",
		logger.String("sessionId", res.Session.SessionID),
		logger.Bool("created", res.Created),
		logger.Int("evaluations", len(res.Evaluations)))
	if snap.SessionID != "" {
		stats.Resumed = snap.SessionID == res.Session.SessionID
		if stats.Resumed {
			log.Info(ctx, "resuming session", logger.String("sessionId", snap.SessionID))
		} else {
			log.Info(ctx, "previous session differs, datasets changed",
				logger.String("previous", snap.SessionID),
				logger.String("sessionId", res.Session.SessionID))
		}
	}

	// Step 5: submissions
	if cfg.EvaluationsPath != "" {
		inputs, skipped, err := readEvaluations(ctx, cfg.EvaluationsPath, cases)
		if err != nil {
			return nil, err
		}
		stats.Read = len(inputs) + skipped
		stats.Skipped = skipped

		saved, err := submit(ctx, client, cfg, res.Session.SessionID, inputs, stats)
		if err != nil {
			return stats, err
		}

		for _, e := range saved {
			state = state.ApplySaved(e)
		}

		// Step 6: verification
		stored, err := client.ListEvaluations(ctx, res.Session.SessionID)
		if err != nil {
			return stats, eris.Wrap(err, "verify")
		}
		stats.Stored = len(stored)
		if missing := countMissing(saved, stored); missing > 0 {
			return stats, eris.Wrapf(ErrIncomplete, "%d saved evaluations not stored", missing)
		}
	} else {
		stats.Stored = len(res.Evaluations)
	}
	stats.Progress = state.Progress()
	if next, ok := state.NextPending(); ok {
		c, g, _ := next.Current()
		stats.NextPatient, stats.NextGene = c.PatientID, g.GeneName
		log.Info(ctx, "next unevaluated gene",
			logger.String("patientId", c.PatientID),
			logger.String("gene", g.GeneName))
	}

	// Step 7: export
	if cfg.ExportTo != "" {
		where, err := exportTo(ctx, client, cfg, ev.EvaluatorID)
		if err != nil {
			return stats, err
		}
		stats.ExportedTo = where
	}

	// Step 8: snapshot
	if cfg.StatePath != "" {
		if err := WriteSnapshot(cfg.StatePath, state.Snapshot()); err != nil {
			log.Warn(ctx, "failed to save state snapshot", logger.Error(err))
		}
	}

	stats.Duration = time.Since(start)
	log.Info(ctx, "review import complete",
		logger.String("sessionId", stats.SessionID),
		logger.Int("read", stats.Read),
		logger.Int("saved", stats.Saved),
		logger.Int("failed", stats.Failed),
		logger.Int("skipped", stats.Skipped),
		logger.Int("stored", stats.Stored),
		logger.Int("evaluated", stats.Progress.Evaluated),
		logger.Int("candidates", stats.Progress.Total),
		logger.Bool("resumed", stats.Resumed),
		logger.String("duration", stats.Duration.String()))
	return stats, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadDatasets(cfg *Config) (SessionUpload, []dataset.Case, error) {
	detailed, err := os.ReadFile(cfg.DetailedPath)
	if err != nil {
		return SessionUpload{}, nil, eris.Wrapf(err, "read %s", cfg.DetailedPath)
	}
	summary, err := os.ReadFile(cfg.SummaryPath)
	if err != nil {
		return SessionUpload{}, nil, eris.Wrapf(err, "read %s", cfg.SummaryPath)
	}
	drows, err := dataset.ParseDetailed(detailed)
	if err != nil {
		return SessionUpload{}, nil, eris.Wrapf(err, "parse %s", cfg.DetailedPath)
	}
	srows, err := dataset.ParseSummary(summary)
	if err != nil {
		return SessionUpload{}, nil, eris.Wrapf(err, "parse %s", cfg.SummaryPath)
	}

	up := SessionUpload{
		DetailedContent: string(detailed),
		SummaryContent:  string(summary),
		Filenames: model.Filenames{
			Detailed: filepath.Base(cfg.DetailedPath),
			Summary:  filepath.Base(cfg.SummaryPath),
		},
	}
	if cfg.MetadataPath != "" {
		meta, err := os.ReadFile(cfg.MetadataPath)
		if err != nil {
			return SessionUpload{}, nil, eris.Wrapf(err, "read %s", cfg.MetadataPath)
		}
		if _, err := dataset.ParseMetadata(meta); err != nil {
			return SessionUpload{}, nil, eris.Wrapf(err, "parse %s", cfg.MetadataPath)
		}
		up.Filenames.Metadata = filepath.Base(cfg.MetadataPath)
	}
	return up, dataset.BuildCases(srows, drows), nil
}

// readEvaluations decodes one evaluation per line. Lines that do not decode,
// lack identity fields or name a patient outside the datasets are skipped.
// is_causal is always taken from the case's ground truth.
func readEvaluations(ctx context.Context, path string, cases []dataset.Case) ([]model.EvaluationInput, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	byPatient := make(map[string]dataset.Case, len(cases))
	for _, c := range cases {
		if _, ok := byPatient[c.PatientID]; !ok {
			byPatient[c.PatientID] = c
		}
	}

	log := logger.Named("review")
	var (
		out     []model.EvaluationInput
		skipped int
		lineNo  int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var in model.EvaluationInput
		if err := json.Unmarshal(line, &in); err != nil {
			skip(ctx, log, &skipped, lineNo, "undecodable line", err)
			continue
		}
		if err := in.Validate(); err != nil {
			skip(ctx, log, &skipped, lineNo, "invalid evaluation", err)
			continue
		}
		c, ok := byPatient[in.PatientID]
		if !ok {
			skip(ctx, log, &skipped, lineNo, "unknown patient", eris.Errorf("patient %s not in summary", in.PatientID))
			continue
		}
		in.IsCausal = c.IsCausal(in.GeneName)
		out = append(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, eris.Wrapf(err, "scan %s", path)
	}
	return out, skipped, nil
}

func skip(ctx context.Context, log logger.Logger, n *int, line int, why string, err error) {
	*n++
	metrics.RecordImportSubmission(outcomeSkipped)
	log.Warn(ctx, "skipping evaluation", logger.Int("line", line), logger.String("reason", why), logger.Error(err))
}

// submit saves inputs concurrently. Individual failures are counted and the
// batch continues; losing the server aborts it.
func submit(ctx context.Context, client *Client, cfg *Config, sessionID string, inputs []model.EvaluationInput, stats *Stats) ([]model.Evaluation, error) {
	log := logger.Named("review")
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), workers)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var submitted, saved, failed atomic.Int64
	results := make([]*model.Evaluation, len(inputs))

	for i, in := range inputs {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}
			submitted.Add(1)
			id, err := client.SaveEvaluation(gctx, sessionID, in)
			if err != nil {
				failed.Add(1)
				metrics.RecordImportSubmission(outcomeFailed)
				log.Error(gctx, "evaluation save failed",
					logger.String("patientId", in.PatientID),
					logger.String("gene", in.GeneName),
					logger.Error(err))
				if errors.Is(err, ErrServerUnreachable) {
					return err
				}
				return nil // don't abort batch on individual failure
			}
			saved.Add(1)
			e := in.ToEvaluation(sessionID, time.Now())
			e.ID = id
			results[i] = &e
			metrics.RecordImportSubmission(outcomeOK)
			log.Debug(gctx, "evaluation saved", logger.Int64("id", id))
			return nil
		})
	}

	err := g.Wait()
	stats.Submitted = int(submitted.Load())
	stats.Saved = int(saved.Load())
	stats.Failed = int(failed.Load())
	if err != nil {
		return nil, eris.Wrap(err, "submit evaluations")
	}

	done := make([]model.Evaluation, 0, len(inputs))
	for _, e := range results {
		if e != nil {
			done = append(done, *e)
		}
	}
	return done, nil
}

// countMissing counts saved evaluations the server does not list.
func countMissing(saved, stored []model.Evaluation) int {
	have := make(map[string]struct{}, len(stored))
	for _, e := range stored {
		have[e.CacheKey()] = struct{}{}
	}
	missing := 0
	for _, e := range saved {
		if _, ok := have[e.CacheKey()]; !ok {
			missing++
		}
	}
	return missing
}

func exportTo(ctx context.Context, client *Client, cfg *Config, evaluatorID string) (string, error) {
	var (
		name string
		body []byte
		err  error
	)
	if cfg.ExportScope == ScopeAll {
		name, body, err = client.ExportAll(ctx)
	} else {
		name, body, err = client.Export(ctx, evaluatorID)
	}
	if err != nil {
		return "", eris.Wrap(err, "export")
	}
	sink, err := OpenSink(ctx, cfg.ExportTo, cfg.S3)
	if err != nil {
		return "", err
	}
	where, err := sink.Put(ctx, name, body)
	if err != nil {
		return "", err
	}
	logger.Named("review").Info(ctx, "export stored",
		logger.String("target", where),
		logger.Int("bytes", len(body)))
	return where, nil
}
