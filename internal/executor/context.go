package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/paragent/internal/compress"
	"github.com/Iron-Ham/paragent/internal/task"
)

const dependencyFooter = "Ask for the full output of a dependency if more detail is needed."

// dependencyContext renders the compressed messages of a task's successful
// dependencies. It returns "" when the task did not ask for compression or
// no dependency produced output, along with the ids that were included.
func dependencyContext(ctx context.Context, c compress.Compressor, spec task.Spec, outputs map[string]string) (string, []string) {
	if !spec.Compress || len(spec.Dependencies) == 0 {
		return "", nil
	}

	model := spec.CompressModel
	if model == "" {
		model = task.DefaultCompressModel
	}
	ratio := compress.ClampRatio(spec.CompressRatio)

	var parts []string
	var included []string
	for _, dep := range spec.Dependencies {
		out := outputs[dep]
		if strings.TrimSpace(out) == "" {
			continue
		}
		summary := out
		if c != nil {
			summary = c.Compress(ctx, out, ratio, model)
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", dep, summary))
		included = append(included, dep)
	}
	if len(parts) == 0 {
		return "", nil
	}

	header := fmt.Sprintf("[Compressed dependency output | model: %s, ratio: %.0f%%]\n%s", model, ratio*100, dependencyFooter)
	return "\n\n---\n" + header + "\n\n" + strings.Join(parts, "\n\n") + "\n\n---\n", included
}
