package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/dag"
	"github.com/Iron-Ham/paragent/internal/util"
)

// previewWidth bounds the prompt preview shown per task.
const previewWidth = 72

func newPlanCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution layers of a batch without running it",
		Long: `Parse and layer a task batch without starting any backend.

Each layer lists the tasks that would run concurrently once every earlier
layer has finished. Parse and dependency errors are reported exactly as a
real run would report them.`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}
	planCmd.Flags().StringP("file", "f", "", "read the task batch from this file instead of stdin")
	planCmd.Flags().StringP("output", "o", outputText, "plan format (text, json, yaml)")
	return planCmd
}

// planLayer is the serialized form of one layer.
type planLayer struct {
	Index int        `json:"index" yaml:"index"`
	Tasks []planTask `json:"tasks" yaml:"tasks"`
}

type planTask struct {
	ID           string   `json:"id" yaml:"id"`
	Backend      string   `json:"backend" yaml:"backend"`
	Mode         string   `json:"mode" yaml:"mode"`
	Workdir      string   `json:"workdir" yaml:"workdir"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Compress     bool     `json:"compress,omitempty" yaml:"compress,omitempty"`
}

func runPlan(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("invalid output format %q (valid: text, json, yaml)", output)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	plan, err := loadPlan(cmd, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch output {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(planLayers(plan))
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(planLayers(plan)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderPlan(out, plan)
	}
}

func planLayers(plan *dag.Plan) []planLayer {
	layers := make([]planLayer, 0, len(plan.Layers()))
	for i, layer := range plan.Layers() {
		pl := planLayer{Index: i, Tasks: make([]planTask, 0, len(layer))}
		for _, spec := range layer {
			pl.Tasks = append(pl.Tasks, planTask{
				ID:           spec.ID,
				Backend:      spec.Backend,
				Mode:         string(spec.Mode),
				Workdir:      spec.Workdir,
				Dependencies: spec.Dependencies,
				Compress:     spec.Compress,
			})
		}
		layers = append(layers, pl)
	}
	return layers
}

func renderPlan(w io.Writer, plan *dag.Plan) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %d tasks in %d layers\n", plan.Len(), len(plan.Layers()))
	for i, layer := range plan.Layers() {
		fmt.Fprintf(&b, "\nLayer %d\n", i)
		for _, spec := range layer {
			line := fmt.Sprintf("%s (%s, %s)", spec.ID, spec.Backend, spec.Mode)
			if len(spec.Dependencies) > 0 {
				line += " after " + strings.Join(spec.Dependencies, ", ")
			}
			b.WriteString(util.Indent(line, "  ") + "\n")
			if preview := firstLine(spec.Content); preview != "" {
				b.WriteString(util.Indent(util.TruncateANSI(preview, previewWidth), "      ") + "\n")
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
