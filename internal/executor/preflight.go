package executor

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/paragent/internal/task"
)

// preflight checks the task's filesystem inputs before anything is launched.
func preflight(fs afero.Fs, spec task.Spec) error {
	dir := spec.Workdir
	if dir == "" {
		dir = task.DefaultWorkdir
	}
	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return fmt.Errorf("workdir not found: %s", dir)
	}

	for _, img := range spec.Images {
		info, err := fs.Stat(img)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("image file not found: %s", img)
		}
	}
	return nil
}
