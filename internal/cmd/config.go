package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/paragent/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or modify paragent configuration",
		Long: `View or modify paragent configuration.

Without arguments, displays the effective configuration after defaults,
the config file, environment variables and flags have been applied.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  paragent config set backend claude
  paragent config set timeout 600
  paragent config set executor.require_output true

Run 'paragent config' to list every key.`,
			Args: cobra.ExactArgs(2),
			RunE: runConfigSet,
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a default config file",
			Long:  `Create a default config file at ~/.config/paragent/config.yaml with all available options.`,
			Args:  cobra.NoArgs,
			RunE:  runConfigInit,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			Args:  cobra.NoArgs,
			RunE:  runConfigPath,
		},
	)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// keyKind is the value type accepted by "config set" for a key.
type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindInt
)

var settableKeys = map[string]keyKind{
	"backend":                           kindString,
	"timeout":                           kindInt,
	"progress":                          kindBool,
	"workdir":                           kindString,
	"executor.force_kill_delay_seconds": kindInt,
	"executor.require_output":           kindBool,
	"executor.stderr_tail_bytes":        kindInt,
	"backends.codex.command":            kindString,
	"backends.codex.approval_mode":      kindString,
	"backends.claude.command":           kindString,
	"backends.claude.skip_permissions":  kindBool,
	"backends.gemini.command":           kindString,
	"compress.command":                  kindString,
	"compress.timeout_seconds":          kindInt,
	"compress.min_lines":                kindInt,
	"compress.cache_size":               kindInt,
	"logging.level":                     kindString,
	"logging.format":                    kindString,
	"logging.file":                      kindString,
	"logging.max_size_mb":               kindInt,
	"logging.max_backups":               kindInt,
	"logging.compress":                  kindBool,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	kind, ok := settableKeys[key]
	if !ok {
		keys := make([]string, 0, len(settableKeys))
		for k := range settableKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown configuration key: %s\nValid keys:\n  %s", key, strings.Join(keys, "\n  "))
	}

	var typedValue any
	switch kind {
	case kindString:
		typedValue = value
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = n
	}

	viper.Set(key, typedValue)
	// Reject values the run would refuse before touching the file.
	if _, err := config.Load(); err != nil {
		return err
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Only persist what the file already holds plus the new key, so
	// environment overrides and defaults are not frozen into it.
	file := viper.New()
	configFile := config.ConfigFile()
	file.SetConfigFile(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	file.Set(key, typedValue)
	if err := file.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigFile = `# paragent configuration

# Backend for tasks that do not name one: codex, claude, gemini
backend: codex
# Per-task timeout in seconds
timeout: 7200
# Relay [PROGRESS] markers from backends to the log
progress: false
# Working directory for tasks that do not set one
workdir: .

executor:
  # Seconds between SIGTERM and SIGKILL when a task times out
  force_kill_delay_seconds: 5
  # Fail tasks that exit 0 without any parseable output
  require_output: false
  # Bytes of backend stderr kept for the summary
  stderr_tail_bytes: 4096

backends:
  codex:
    command: codex
    # Options: bypass, full-auto, none
    approval_mode: bypass
  claude:
    command: claude
    # Pass --dangerously-skip-permissions
    skip_permissions: false
  gemini:
    command: gemini

# Dependency output compression (tasks with compress: true)
compress:
  command: gemini
  timeout_seconds: 300
  # Outputs shorter than this are passed through unchanged
  min_lines: 50
  cache_size: 128

logging:
  # Options: debug, info, warn, error
  level: info
  # Options: text, json
  format: text
  # Write logs to a rotating file instead of stderr
  file: ""
  max_size_mb: 10
  max_backups: 3
  compress: false
`

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'paragent config set' to modify values", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. $HOME/.config/paragent/config.yaml")
	fmt.Fprintln(out, "  3. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_EXECUTOR_REQUIRE_OUTPUT), %s, %s\n",
		envPrefix, envPrefix, config.EnvBackend, config.EnvTimeout)
	return nil
}
