package main

import (
	"github.com/okian/geneva/internal/reviewclient"
	"github.com/okian/geneva/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	sessionsEvaluator string
	sessionsState     string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List an evaluator's sessions with their evaluation counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		evaluator := sessionsEvaluator
		var snap reviewclient.Snapshot
		if sessionsState != "" {
			var err error
			if snap, err = reviewclient.Restore(sessionsState); err != nil {
				return err
			}
			if evaluator == "" {
				evaluator = snap.EvaluatorID
			}
		}
		if evaluator == "" {
			return reviewclient.ErrMissingIdentity
		}

		c := newClient()
		sessions, err := c.ListSessions(ctx, evaluator)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			evals, err := c.ListEvaluations(ctx, s.SessionID)
			if err != nil {
				return err
			}
			logger.Get().Info(ctx, "session",
				logger.String("sessionId", s.SessionID),
				logger.String("detailed", s.Filenames.Detailed),
				logger.String("summary", s.Filenames.Summary),
				logger.String("createdAt", s.CreatedAt.Format("2006-01-02 15:04:05")),
				logger.Int("evaluations", len(evals)),
				logger.Bool("current", s.SessionID == snap.SessionID))
		}
		logger.Get().Info(ctx, "sessions listed",
			logger.String("evaluatorId", evaluator),
			logger.Int("count", len(sessions)))
		return nil
	},
}

func init() {
	f := sessionsCmd.Flags()
	f.StringVar(&sessionsEvaluator, "evaluator", "", "evaluator id (defaults to the --state snapshot)")
	f.StringVar(&sessionsState, "state", "", "state file written by import --state")
	rootCmd.AddCommand(sessionsCmd)
}
