package main

import (
	"github.com/okian/geneva/pkg/logger"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := newClient().Health(ctx); err != nil {
			return err
		}
		logger.Get().Info(ctx, "server reachable", logger.String("url", baseURL))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
