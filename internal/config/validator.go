package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "executor.stderr_tail_bytes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidBackends returns the list of supported backend names
func ValidBackends() []string {
	return []string{"codex", "claude", "gemini"}
}

// ValidApprovalModes returns the list of codex approval modes
func ValidApprovalModes() []string {
	return []string{"bypass", "full-auto", "none"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log output formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGeneral()...)
	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateBackends()...)
	errors = append(errors, c.validateCompress()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateGeneral validates the top-level settings
func (c *Config) validateGeneral() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), strings.ToLower(c.Backend)) {
		errors = append(errors, ValidationError{
			Field:   "backend",
			Value:   c.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeout",
			Value:   c.Timeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateExecutor validates the ExecutorConfig
func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if c.Executor.ForceKillDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.force_kill_delay_seconds",
			Value:   c.Executor.ForceKillDelaySeconds,
			Message: "must be non-negative",
		})
	}

	if c.Executor.StderrTailBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.stderr_tail_bytes",
			Value:   c.Executor.StderrTailBytes,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for the stderr tail
	const maxTailBytes = 1 << 20 // 1MB
	if c.Executor.StderrTailBytes > maxTailBytes {
		errors = append(errors, ValidationError{
			Field:   "executor.stderr_tail_bytes",
			Value:   c.Executor.StderrTailBytes,
			Message: fmt.Sprintf("exceeds maximum of %d", maxTailBytes),
		})
	}

	return errors
}

// validateBackends validates the BackendsConfig
func (c *Config) validateBackends() []ValidationError {
	var errors []ValidationError

	commands := map[string]string{
		"backends.codex.command":  c.Backends.Codex.Command,
		"backends.claude.command": c.Backends.Claude.Command,
		"backends.gemini.command": c.Backends.Gemini.Command,
	}
	for _, field := range []string{"backends.codex.command", "backends.claude.command", "backends.gemini.command"} {
		if strings.TrimSpace(commands[field]) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   commands[field],
				Message: "must not be empty",
			})
		}
	}

	mode := c.Backends.Codex.ApprovalMode
	if mode != "" && !slices.Contains(ValidApprovalModes(), strings.ToLower(mode)) {
		errors = append(errors, ValidationError{
			Field:   "backends.codex.approval_mode",
			Value:   mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	return errors
}

// validateCompress validates the CompressConfig
func (c *Config) validateCompress() []ValidationError {
	var errors []ValidationError

	if c.Compress.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "compress.timeout_seconds",
			Value:   c.Compress.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Compress.MinLines < 0 {
		errors = append(errors, ValidationError{
			Field:   "compress.min_lines",
			Value:   c.Compress.MinLines,
			Message: "must be non-negative",
		})
	}

	if c.Compress.CacheSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "compress.cache_size",
			Value:   c.Compress.CacheSize,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
