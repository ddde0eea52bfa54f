package main

import (
	"os"
	"time"

	"github.com/okian/geneva/internal/reviewclient"
	"github.com/okian/geneva/pkg/logger"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

const (
	defaultBaseURL = "http://localhost:3000"
	defaultTimeout = 30 * time.Second
)

var (
	baseURL   string
	logLevel  string
	logFormat string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "geneva-review",
	Short:        "Command line client for the GENEVA evaluation API",
	Long:         "Checks server reachability, imports evaluations for a dataset pair, lists sessions and downloads CSV exports.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.InitWith(logLevel, logFormat); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

func newClient() *reviewclient.Client {
	return reviewclient.NewClient(baseURL, reviewclient.WithTimeout(timeout))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("GENEVA_URL", defaultBaseURL), "base URL of the server")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (json, console)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "HTTP request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
