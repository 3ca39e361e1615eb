package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete paragent configuration
type Config struct {
	// Backend is the backend used by tasks that do not name one (default: "codex")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Timeout is the per-task wall clock limit in seconds (default: 7200)
	Timeout int `mapstructure:"timeout" yaml:"timeout"`
	// Progress enables [PROGRESS] marker relaying for every task
	Progress bool `mapstructure:"progress" yaml:"progress"`
	// Workdir is the working directory used by tasks that do not set one (default: ".")
	Workdir string `mapstructure:"workdir" yaml:"workdir"`

	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Backends BackendsConfig `mapstructure:"backends" yaml:"backends"`
	Compress CompressConfig `mapstructure:"compress" yaml:"compress"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ExecutorConfig controls how backend processes are supervised
type ExecutorConfig struct {
	// ForceKillDelaySeconds is how long a timed-out process group gets between
	// SIGTERM and SIGKILL (default: 5)
	ForceKillDelaySeconds int `mapstructure:"force_kill_delay_seconds" yaml:"force_kill_delay_seconds"`
	// RequireOutput fails tasks that exit 0 without emitting a single
	// parseable event line (default: false)
	RequireOutput bool `mapstructure:"require_output" yaml:"require_output"`
	// StderrTailBytes bounds how much of a backend's stderr is kept; must be positive (default: 4096)
	StderrTailBytes int `mapstructure:"stderr_tail_bytes" yaml:"stderr_tail_bytes"`
}

// BackendsConfig holds per-backend settings
type BackendsConfig struct {
	Codex  CodexBackendConfig  `mapstructure:"codex" yaml:"codex"`
	Claude ClaudeBackendConfig `mapstructure:"claude" yaml:"claude"`
	Gemini GeminiBackendConfig `mapstructure:"gemini" yaml:"gemini"`
}

// CodexBackendConfig controls the Codex CLI invocation
type CodexBackendConfig struct {
	// Command is the executable name or path (default: "codex")
	Command string `mapstructure:"command" yaml:"command"`
	// ApprovalMode selects the approval flag
	// Options: "bypass" (default), "full-auto", "none"
	ApprovalMode string `mapstructure:"approval_mode" yaml:"approval_mode"`
}

// ClaudeBackendConfig controls the Claude CLI invocation
type ClaudeBackendConfig struct {
	// Command is the executable name or path (default: "claude")
	Command string `mapstructure:"command" yaml:"command"`
	// SkipPermissions passes --dangerously-skip-permissions (default: false)
	SkipPermissions bool `mapstructure:"skip_permissions" yaml:"skip_permissions"`
}

// GeminiBackendConfig controls the Gemini CLI invocation
type GeminiBackendConfig struct {
	// Command is the executable name or path (default: "gemini")
	Command string `mapstructure:"command" yaml:"command"`
}

// CompressConfig controls dependency output compression
type CompressConfig struct {
	// Command is the Gemini CLI used for summarizing (default: "gemini")
	Command string `mapstructure:"command" yaml:"command"`
	// TimeoutSeconds bounds each compression call (default: 300)
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// MinLines is the smallest input that is worth compressing (default: 50)
	MinLines int `mapstructure:"min_lines" yaml:"min_lines"`
	// CacheSize is the number of compressed outputs kept in memory (default: 128)
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "text" for console output or "json" (default: "text")
	Format string `mapstructure:"format" yaml:"format"`
	// File redirects logs from stderr to a rotating file when set
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated backups (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Backend:  "codex",
		Timeout:  7200,
		Progress: false,
		Workdir:  ".",
		Executor: ExecutorConfig{
			ForceKillDelaySeconds: 5,
			RequireOutput:         false,
			StderrTailBytes:       4096,
		},
		Backends: BackendsConfig{
			Codex: CodexBackendConfig{
				Command:      "codex",
				ApprovalMode: "bypass",
			},
			Claude: ClaudeBackendConfig{
				Command:         "claude",
				SkipPermissions: false,
			},
			Gemini: GeminiBackendConfig{
				Command: "gemini",
			},
		},
		Compress: CompressConfig{
			Command:        "gemini",
			TimeoutSeconds: 300,
			MinLines:       50,
			CacheSize:      128,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// TaskTimeout returns the per-task timeout as a time.Duration
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ForceKillDelay returns the SIGTERM to SIGKILL grace period as a time.Duration
func (c *ExecutorConfig) ForceKillDelay() time.Duration {
	return time.Duration(c.ForceKillDelaySeconds) * time.Second
}

// CallTimeout returns the per-call compression timeout as a time.Duration
func (c *CompressConfig) CallTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("backend", defaults.Backend)
	viper.SetDefault("timeout", defaults.Timeout)
	viper.SetDefault("progress", defaults.Progress)
	viper.SetDefault("workdir", defaults.Workdir)

	// Executor defaults
	viper.SetDefault("executor.force_kill_delay_seconds", defaults.Executor.ForceKillDelaySeconds)
	viper.SetDefault("executor.require_output", defaults.Executor.RequireOutput)
	viper.SetDefault("executor.stderr_tail_bytes", defaults.Executor.StderrTailBytes)

	// Backend defaults
	viper.SetDefault("backends.codex.command", defaults.Backends.Codex.Command)
	viper.SetDefault("backends.codex.approval_mode", defaults.Backends.Codex.ApprovalMode)
	viper.SetDefault("backends.claude.command", defaults.Backends.Claude.Command)
	viper.SetDefault("backends.claude.skip_permissions", defaults.Backends.Claude.SkipPermissions)
	viper.SetDefault("backends.gemini.command", defaults.Backends.Gemini.Command)

	// Compress defaults
	viper.SetDefault("compress.command", defaults.Compress.Command)
	viper.SetDefault("compress.timeout_seconds", defaults.Compress.TimeoutSeconds)
	viper.SetDefault("compress.min_lines", defaults.Compress.MinLines)
	viper.SetDefault("compress.cache_size", defaults.Compress.CacheSize)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Legacy environment variables honored alongside the PARAGENT_ prefix.
const (
	EnvBackend = "CODEAGENT_BACKEND"
	EnvTimeout = "CODEX_TIMEOUT"
)

// BindEnv binds the top-level keys to their prefixed and legacy environment
// variables. The prefixed name wins when both are set.
func BindEnv(prefix string) {
	_ = viper.BindEnv("backend", prefix+"_BACKEND", EnvBackend)
	_ = viper.BindEnv("timeout", prefix+"_TIMEOUT", EnvTimeout)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "paragent")
	}
	// Fall back to ~/.config/paragent
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paragent"
	}
	return filepath.Join(home, ".config", "paragent")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
