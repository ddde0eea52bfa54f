package main

import (
	"github.com/okian/geneva/internal/reviewclient"
	"github.com/okian/geneva/pkg/logger"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	exportEvaluator string
	exportTo        string
	exportS3        reviewclient.S3Options
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download a CSV export to a file, directory or S3",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c := newClient()

		var (
			name string
			body []byte
			err  error
		)
		if exportEvaluator == "" {
			name, body, err = c.ExportAll(ctx)
		} else {
			name, body, err = c.Export(ctx, exportEvaluator)
		}
		if err != nil {
			return eris.Wrap(err, "export")
		}

		sink, err := reviewclient.OpenSink(ctx, exportTo, exportS3)
		if err != nil {
			return err
		}
		where, err := sink.Put(ctx, name, body)
		if err != nil {
			return err
		}
		logger.Get().Info(ctx, "export stored", logger.String("target", where), logger.Int("bytes", len(body)))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportEvaluator, "evaluator", "", "evaluator id; empty exports every evaluation")
	f.StringVar(&exportTo, "to", ".", "file, directory or s3://bucket/key")
	f.StringVar(&exportS3.Region, "s3-region", envOr("AWS_REGION", ""), "S3 region")
	f.StringVar(&exportS3.Endpoint, "s3-endpoint", "", "S3 endpoint override (e.g. MinIO)")
	f.BoolVar(&exportS3.PathStyle, "s3-path-style", false, "use path-style S3 addressing")
	rootCmd.AddCommand(exportCmd)
}
