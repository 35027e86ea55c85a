// Package cmd holds the recipe-gateway command line.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/telemetry"
)

// AppName is the binary and root command name.
const AppName = "recipe-gateway"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Offline gateway for the recipe app",
	Long: `recipe-gateway sits between the recipe web app and its API. It serves
cached responses while the API is unreachable, queues recipe writes and
replays them once connectivity returns.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for introspection purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, syncCmd, statusCmd, versionCmd)
}

// setup loads settings and builds the logger shared by every subcommand.
func setup(cmd *cobra.Command) (*conf.Settings, logger.Logger, error) {
	settings, err := conf.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		settings.Log.Level = logLevel
	}

	log := logger.NewSlogLogger(cmd.ErrOrStderr(), logger.ParseLevel(settings.Log.Level), time.Local)
	if err := telemetry.Init(settings, Version, log); err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	return settings, log, nil
}
