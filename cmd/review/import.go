package main

import (
	"runtime"

	"github.com/okian/geneva/internal/reviewclient"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var importCfg reviewclient.Config

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Resolve a session for a dataset pair and submit evaluations from JSON Lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		importCfg.BaseURL = baseURL
		importCfg.Timeout = timeout
		if importCfg.ExportScope != reviewclient.ScopeEvaluator && importCfg.ExportScope != reviewclient.ScopeAll {
			return eris.Errorf("import: --export-scope must be %s or %s (got %q)",
				reviewclient.ScopeEvaluator, reviewclient.ScopeAll, importCfg.ExportScope)
		}
		_, err := reviewclient.Run(cmd.Context(), &importCfg)
		return err
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importCfg.EvaluatorID, "evaluator", "", "evaluator id (defaults to the --state snapshot)")
	f.StringVar(&importCfg.Name, "name", "", "evaluator display name (defaults to the --state snapshot)")
	f.StringVar(&importCfg.Email, "email", "", "evaluator email")
	f.StringVar(&importCfg.DetailedPath, "detailed", "", "path to the detailed candidate CSV (required)")
	f.StringVar(&importCfg.SummaryPath, "summary", "", "path to the summary CSV (required)")
	f.StringVar(&importCfg.MetadataPath, "metadata", "", "path to the patient metadata JSON Lines")
	f.StringVar(&importCfg.EvaluationsPath, "evaluations", "", "path to evaluations as JSON Lines")
	f.IntVar(&importCfg.Workers, "workers", runtime.NumCPU(), "concurrent submissions")
	f.Float64Var(&importCfg.Rate, "rate", 0, "submissions per second (0 = unlimited)")
	f.StringVar(&importCfg.ExportTo, "export-to", "", "file, directory or s3://bucket/key to store the export")
	f.StringVar(&importCfg.ExportScope, "export-scope", reviewclient.ScopeEvaluator, "export scope (evaluator, all)")
	f.StringVar(&importCfg.StatePath, "state", "", "file to keep the evaluator and session between runs")
	f.StringVar(&importCfg.S3.Region, "s3-region", envOr("AWS_REGION", ""), "S3 region")
	f.StringVar(&importCfg.S3.Endpoint, "s3-endpoint", "", "S3 endpoint override (e.g. MinIO)")
	f.BoolVar(&importCfg.S3.PathStyle, "s3-path-style", false, "use path-style S3 addressing")
	for _, name := range []string{"detailed", "summary"} {
		_ = importCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(importCmd)
}
