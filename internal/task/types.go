package task

import (
	"fmt"

	"github.com/Iron-Ham/paragent/internal/errors"
)

// Mode selects whether a task starts a fresh backend session or resumes one.
type Mode string

const (
	// ModeNew starts a fresh backend session.
	ModeNew Mode = "new"
	// ModeResume continues the session named by Spec.SessionID.
	ModeResume Mode = "resume"
)

// Default values applied by the parser when a block omits a field.
const (
	DefaultWorkdir       = "."
	DefaultCompressModel = "flash"
	DefaultCompressRatio = 0.3
)

// Spec describes one unit of work. It is created once by the parser and is
// never mutated afterwards.
type Spec struct {
	ID              string   `json:"id" yaml:"id" validate:"required"`
	Backend         string   `json:"backend" yaml:"backend" validate:"required,oneof=codex claude gemini"`
	Model           string   `json:"model,omitempty" yaml:"model,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty" validate:"omitempty,oneof=minimal low medium high"`
	Workdir         string   `json:"workdir" yaml:"workdir"`
	Dependencies    []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Images          []string `json:"images,omitempty" yaml:"images,omitempty"`
	SessionID       string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Mode            Mode     `json:"mode" yaml:"mode"`
	Content         string   `json:"content" yaml:"content" validate:"required"`

	// Compress asks the executor to append a compressed digest of the
	// dependencies' output to the prompt.
	Compress      bool    `json:"compress,omitempty" yaml:"compress,omitempty"`
	CompressModel string  `json:"compress_model,omitempty" yaml:"compress_model,omitempty"`
	CompressRatio float64 `json:"compress_ratio,omitempty" yaml:"compress_ratio,omitempty" validate:"gt=0,lte=1"`
}

// IsResume reports whether the task continues a prior backend session.
func (s Spec) IsResume() bool {
	return s.Mode == ModeResume
}

// Defaults carries the process-wide values the parser falls back to.
type Defaults struct {
	Backend string
	Workdir string
}

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRunning  Status = "RUNNING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusSkipped  Status = "SKIPPED"
	StatusTimeout  Status = "TIMEOUT"
	StatusNotFound Status = "NOT_FOUND"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusTimeout, StatusNotFound:
		return true
	default:
		return false
	}
}

// IsFailure returns true for terminal states that block dependents.
func (s Status) IsFailure() bool {
	return s.IsTerminal() && s != StatusSuccess
}

// Exit codes recorded on results that do not come from a backend process.
const (
	ExitCodeFailure  = 1
	ExitCodeTimeout  = 124
	ExitCodeNotFound = 127
)

// Result captures the outcome of executing one Spec.
type Result struct {
	TaskID     string `json:"task_id"`
	Backend    string `json:"backend,omitempty"`
	Layer      int    `json:"layer"`
	Status     Status `json:"status"`
	ExitCode   int    `json:"exit_code"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	// WellFormedLines counts stdout lines that decoded as backend events.
	WellFormedLines int `json:"well_formed_lines"`
}

// NewResult returns a PENDING result for the given task.
func NewResult(spec Spec, layer int) Result {
	return Result{
		TaskID:  spec.ID,
		Backend: spec.Backend,
		Layer:   layer,
		Status:  StatusPending,
	}
}

// Transition moves the result to the next status, rejecting any change the
// task state machine does not allow. A PENDING result may end as SKIPPED, as
// FAILED when a pre-flight check rejects it, or as NOT_FOUND when the backend
// executable cannot be resolved. Everything else passes through RUNNING.
func (r *Result) Transition(to Status) error {
	if !isAllowedTransition(r.Status, to) {
		return fmt.Errorf("%w for %q: %s -> %s", errors.ErrInvalidTransition, r.TaskID, r.Status, to)
	}
	r.Status = to
	return nil
}

func isAllowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusSkipped || to == StatusFailed || to == StatusNotFound
	case StatusRunning:
		return to == StatusSuccess || to == StatusFailed || to == StatusTimeout || to == StatusNotFound
	default:
		return false
	}
}
