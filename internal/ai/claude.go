package ai

import (
	"strings"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/task"
)

// ClaudeBackend implements Backend for the claude CLI in print mode.
type ClaudeBackend struct {
	command         string
	skipPermissions bool
}

// NewClaudeBackend creates a Claude backend from config.
func NewClaudeBackend(cfg config.ClaudeBackendConfig) *ClaudeBackend {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &ClaudeBackend{
		command:         command,
		skipPermissions: cfg.SkipPermissions,
	}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) DisplayName() string { return "Claude" }

func (c *ClaudeBackend) Command() string { return c.command }

// BuildInvocation builds a stream-json print-mode run. Claude has no image
// flag, so each image becomes a Read tool instruction ahead of the prompt.
func (c *ClaudeBackend) BuildInvocation(spec task.Spec, opts InvocationOptions) (*Invocation, error) {
	if err := requireSession(spec); err != nil {
		return nil, err
	}

	args := []string{"-p", "--verbose", "--setting-sources", "", "--output-format", "stream-json"}
	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if model := strings.TrimSpace(spec.Model); model != "" {
		args = append(args, "--model", model)
	}
	if spec.IsResume() {
		args = append(args, "-r", spec.SessionID)
	}
	args = append(args, "-")

	content := prompt(spec, opts)
	if len(spec.Images) > 0 {
		lines := make([]string, 0, len(spec.Images))
		for _, img := range absPaths(spec.Images) {
			lines = append(lines, "Use the Read tool to read the image: "+img)
		}
		content = strings.Join(lines, "\n") + "\n\n" + content
	}

	return &Invocation{
		Program: c.command,
		Args:    args,
		Dir:     workdir(spec),
		Stdin:   withProgress(content, opts),
	}, nil
}

func (c *ClaudeBackend) NewStreamParser() StreamParser { return claudeParser{} }
