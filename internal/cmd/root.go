package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/logging"
)

// envPrefix prefixes every configuration override read from the environment.
const envPrefix = "PARAGENT"

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paragent",
		Short: "Run a batch of dependent tasks across coding agent CLIs",
		Long: `Paragent reads a batch of task blocks, orders them by their dependencies
and runs every independent task concurrently on the codex, claude or gemini
CLI. A summary of all results is printed once the batch finishes.

Tasks are read from --file or standard input:

  ---TASK---
  id: review
  backend: claude
  dependencies: build
  ---CONTENT---
  Review the changes made by the build task.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBatch,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/paragent/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")
	root.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", root.PersistentFlags().Lookup("log-file"))

	addRunFlags(root)
	root.AddCommand(newPlanCmd(), newConfigCmd(), newLogsCmd())
	return root
}

// Execute runs the root command. Errors other than an exit status are
// printed to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.As(err, new(*ExitError)) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// Values from .env never override the real environment.
	_ = godotenv.Load()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	config.BindEnv(envPrefix)

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/paragent")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., PARAGENT_EXECUTOR_REQUIRE_OUTPUT for executor.require_output
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   cfg.File,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		},
		Writer: os.Stderr,
	})
}
