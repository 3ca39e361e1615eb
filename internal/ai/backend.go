package ai

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/task"
)

// BackendName identifies a supported AI backend.
type BackendName string

const (
	BackendCodex  BackendName = "codex"
	BackendClaude BackendName = "claude"
	BackendGemini BackendName = "gemini"
)

// InvocationOptions configures how a backend invocation is built.
type InvocationOptions struct {
	// Content overrides the task content as the prompt. The executor uses it
	// to deliver prompts extended with dependency context.
	Content string
	// Progress appends the [PROGRESS] reporting instruction to the prompt.
	Progress bool
}

// Invocation is a fully specified backend process launch.
type Invocation struct {
	// Program is the configured executable name.
	Program string
	// Path is Program resolved on PATH. Empty until resolved.
	Path string
	Args []string
	Dir  string
	// Env is overlaid on the parent environment.
	Env map[string]string
	// Stdin is the prompt, always delivered on standard input.
	Stdin string
}

// Argv returns the resolved path (or program) followed by the arguments.
func (inv *Invocation) Argv() []string {
	bin := inv.Path
	if bin == "" {
		bin = inv.Program
	}
	return append([]string{bin}, inv.Args...)
}

// Environ returns the overlay as sorted KEY=VALUE pairs.
func (inv *Invocation) Environ() []string {
	if len(inv.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(inv.Env))
	for k, v := range inv.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// String renders the invocation for logs.
func (inv *Invocation) String() string {
	parts := inv.Argv()
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// Backend provides backend-specific behavior for running one-shot tasks.
type Backend interface {
	Name() BackendName
	DisplayName() string
	// Command returns the executable this backend launches.
	Command() string
	BuildInvocation(spec task.Spec, opts InvocationOptions) (*Invocation, error)
	NewStreamParser() StreamParser
}

// ErrUnknownBackend is returned when a task names an unsupported backend.
var ErrUnknownBackend = errors.ErrUnknownBackend

// Registry maps backend names to configured backends.
type Registry struct {
	backends map[BackendName]Backend
}

// NewRegistry builds the codex, claude and gemini backends from config.
func NewRegistry(cfg config.BackendsConfig) *Registry {
	return NewRegistryOf(
		NewCodexBackend(cfg.Codex),
		NewClaudeBackend(cfg.Claude),
		NewGeminiBackend(cfg.Gemini),
	)
}

// NewRegistryOf builds a registry from explicit backends.
func NewRegistryOf(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[BackendName]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// DefaultRegistry returns a registry with default settings.
func DefaultRegistry() *Registry {
	return NewRegistry(config.Default().Backends)
}

// Get returns the backend registered under name. Lookup is case-insensitive.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[BackendName(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names returns the registered backend names sorted.
func (r *Registry) Names() []BackendName {
	names := make([]BackendName, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// prompt returns the base prompt for an invocation.
func prompt(spec task.Spec, opts InvocationOptions) string {
	if opts.Content != "" {
		return opts.Content
	}
	return spec.Content
}

// withProgress appends the progress instruction when enabled.
func withProgress(content string, opts InvocationOptions) string {
	if !opts.Progress {
		return content
	}
	return content + ProgressInstruction
}

func workdir(spec task.Spec) string {
	if spec.Workdir == "" {
		return task.DefaultWorkdir
	}
	return spec.Workdir
}

// absPaths resolves image paths against the current directory, keeping the
// original path when resolution fails.
func absPaths(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		out[i] = abs
	}
	return out
}

func requireSession(spec task.Spec) error {
	if spec.IsResume() && strings.TrimSpace(spec.SessionID) == "" {
		return fmt.Errorf("session id required for resume")
	}
	return nil
}
