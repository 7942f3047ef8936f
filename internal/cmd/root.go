// Package cmd implements the ticksched command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/ticksched/internal/config"
	"github.com/Iron-Ham/ticksched/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ticksched",
	Short: "Hybrid adaptive tick scheduler",
	Long: `ticksched drives a fixed-rate tick loop that runs independent units of
work on a worker pool, keeps unsafe work on the tick goroutine, prioritizes
propagation updates by distance to reference points and meters expensive
requests with a per-tick budget.

Use 'ticksched simulate' to run the scheduler against a synthetic world and
'ticksched watch' for a live dashboard.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/ticksched/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Defaults and TICKSCHED_* environment overrides
	config.ConfigureViper(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the logger described by cfg. When quiet is set and no log
// directory is configured the logger discards output instead of writing to
// stderr.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	lc := cfg.Logging
	if !lc.Enabled || (quiet && lc.Dir == "") {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(lc.Dir, lc.Level, logging.RotationConfig{
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		Compress:   lc.Compress,
	})
}
