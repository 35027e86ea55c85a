package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechinMama/RecipeForADisaster/internal/gateway"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued operations against the upstream once",
	Long: `Replay every queued recipe operation in timestamp order and exit.
Each operation leaves the queue whether it succeeded or not. Nothing is
replayed while the upstream health check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, log, err := setup(cmd)
		if err != nil {
			return err
		}

		result, err := gateway.SyncOnce(cmd.Context(), settings, log)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "successful: %d\nfailed: %d\ntotal: %d\n",
			result.Successful, result.Failed, result.Total)
		for _, r := range result.Results {
			if !r.Success {
				_, _ = fmt.Fprintf(out, "  %s %s: %s\n", r.Operation.Method, r.Operation.URL, r.Error)
			}
		}
		return nil
	},
}
