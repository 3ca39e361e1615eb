package ai

import (
	"strings"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/task"
)

// EnvReasoningEffort carries a task's reasoning effort to the Codex CLI.
const EnvReasoningEffort = "CODEX_MODEL_REASONING_EFFORT"

// CodexBackend implements Backend for Codex CLI.
type CodexBackend struct {
	command      string
	approvalMode string
}

// NewCodexBackend creates a Codex backend from config.
func NewCodexBackend(cfg config.CodexBackendConfig) *CodexBackend {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	mode := cfg.ApprovalMode
	if mode == "" {
		mode = "bypass"
	}
	return &CodexBackend{
		command:      command,
		approvalMode: mode,
	}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

func (c *CodexBackend) DisplayName() string { return "Codex" }

func (c *CodexBackend) Command() string { return c.command }

// BuildInvocation builds `codex e` for a fresh run or `codex e ... resume <id>`
// when the task carries a session id. Images are passed as -i flags.
func (c *CodexBackend) BuildInvocation(spec task.Spec, opts InvocationOptions) (*Invocation, error) {
	if err := requireSession(spec); err != nil {
		return nil, err
	}

	var args []string
	if spec.IsResume() {
		args = append(args, "e", "--json", "--skip-git-repo-check")
		args = append(args, c.approvalFlags()...)
		args = append(args, c.modelAndImages(spec)...)
		args = append(args, "resume", spec.SessionID, "-")
	} else {
		args = append(args, "e", "-C", workdir(spec))
		args = append(args, c.approvalFlags()...)
		args = append(args, c.modelAndImages(spec)...)
		args = append(args, "--json", "--skip-git-repo-check", "-")
	}

	inv := &Invocation{
		Program: c.command,
		Args:    args,
		Dir:     workdir(spec),
		Stdin:   withProgress(prompt(spec, opts), opts),
	}
	if effort := strings.TrimSpace(spec.ReasoningEffort); effort != "" {
		inv.Env = map[string]string{EnvReasoningEffort: effort}
	}
	return inv, nil
}

func (c *CodexBackend) NewStreamParser() StreamParser { return codexParser{} }

func (c *CodexBackend) modelAndImages(spec task.Spec) []string {
	var args []string
	if model := strings.TrimSpace(spec.Model); model != "" {
		args = append(args, "-m", model)
	}
	for _, img := range spec.Images {
		args = append(args, "-i", img)
	}
	return args
}

func (c *CodexBackend) approvalFlags() []string {
	switch strings.ToLower(c.approvalMode) {
	case "bypass":
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	case "full-auto":
		return []string{"--full-auto"}
	default:
		return nil
	}
}
