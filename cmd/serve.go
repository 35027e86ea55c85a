package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TechinMama/RecipeForADisaster/internal/gateway"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, log, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, err := gateway.New(ctx, settings, log)
		if err != nil {
			return err
		}
		log.Info("starting gateway",
			logger.String("listen", settings.Listen),
			logger.String("upstream", settings.Upstream),
			logger.String("version", Version))
		return g.Run(ctx)
	},
}
