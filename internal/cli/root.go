// Package cli implements the faultline command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/faultline/internal/config"
	"github.com/telhawk-systems/faultline/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Faultline error telemetry intake",
	Long: `faultline accepts error reports from Sentry-compatible SDKs, stores them
and notifies the webhook channels configured for each project.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/faultline/config.yaml)")
}

// loadConfig reads configuration and installs the process-wide logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("faultline"))
	logging.SetDefault(logger)

	return cfg, logger, nil
}
