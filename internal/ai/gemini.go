package ai

import (
	"strings"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/task"
)

// GeminiBackend implements Backend for Gemini CLI.
type GeminiBackend struct {
	command string
}

// NewGeminiBackend creates a Gemini backend from config.
func NewGeminiBackend(cfg config.GeminiBackendConfig) *GeminiBackend {
	command := cfg.Command
	if command == "" {
		command = "gemini"
	}
	return &GeminiBackend{command: command}
}

func (g *GeminiBackend) Name() BackendName { return BackendGemini }

func (g *GeminiBackend) DisplayName() string { return "Gemini" }

func (g *GeminiBackend) Command() string { return g.command }

// BuildInvocation builds a stream-json yolo-mode run. Images are referenced
// inline with @path syntax.
func (g *GeminiBackend) BuildInvocation(spec task.Spec, opts InvocationOptions) (*Invocation, error) {
	if err := requireSession(spec); err != nil {
		return nil, err
	}

	args := []string{"-o", "stream-json", "-y"}
	if model := strings.TrimSpace(spec.Model); model != "" {
		args = append(args, "-m", model)
	}
	if spec.IsResume() {
		args = append(args, "-r", spec.SessionID)
	}
	args = append(args, "-p", "-")

	content := prompt(spec, opts)
	if len(spec.Images) > 0 {
		refs := absPaths(spec.Images)
		for i, ref := range refs {
			refs[i] = "@" + ref
		}
		content = "Analyze the following images: " + strings.Join(refs, " ") + "\n\n" + content
	}

	return &Invocation{
		Program: g.command,
		Args:    args,
		Dir:     workdir(spec),
		Stdin:   withProgress(content, opts),
	}, nil
}

func (g *GeminiBackend) NewStreamParser() StreamParser { return geminiParser{} }
