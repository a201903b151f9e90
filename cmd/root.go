package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ca-srg/twangy/internal/config"
)

var (
	envFile    string
	configFile string
	verbose    bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "twangy",
	Short: "Twangy - a greeting bot for Slack and Discord",
	Long: `Twangy answers any chat message that starts with "twangy" by greeting
its author. It connects to Slack (Socket Mode or RTM) or Discord.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		if configFile != "" {
			if err := config.LoadYAMLFile(configFile); err != nil {
				return err
			}
		}

		l, err := newLogger(verbose, os.Getenv("LOG_LEVEL"))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		// package-level instrument setup logs through zap.L()
		zap.ReplaceGlobals(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(understandCmd)
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&envFile, "env-file", "", "dotenv file to load (defaults to ./.env when present)")
	fs.StringVarP(&configFile, "config", "c", "", "YAML file of environment overrides")
	fs.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the production JSON logger. verbose forces debug level;
// otherwise level is parsed from LOG_LEVEL and defaults to info.
func newLogger(verbose bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case strings.TrimSpace(level) != "":
		lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
