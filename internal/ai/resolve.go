package ai

import (
	"fmt"
	"os/exec"

	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/task"
)

// Resolver turns a task into a runnable invocation.
type Resolver struct {
	// LookPath locates executables. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Resolve builds the invocation for spec with exec.LookPath resolution.
func Resolve(backend Backend, spec task.Spec, opts InvocationOptions) (*Invocation, error) {
	return Resolver{}.Resolve(backend, spec, opts)
}

// Resolve builds the backend invocation and resolves its program. An
// unresolvable program yields a BackendError wrapping ErrBackendNotFound; the
// partially built invocation is still returned for diagnostics.
func (r Resolver) Resolve(backend Backend, spec task.Spec, opts InvocationOptions) (*Invocation, error) {
	inv, err := backend.BuildInvocation(spec, opts)
	if err != nil {
		return nil, err
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(inv.Program)
	if err != nil {
		return inv, errors.NewBackendError(string(backend.Name()), fmt.Errorf("%w: %v", errors.ErrBackendNotFound, err)).
			WithCommand(inv.Program)
	}
	inv.Path = path
	return inv, nil
}
