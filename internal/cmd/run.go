package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/paragent/internal/ai"
	"github.com/Iron-Ham/paragent/internal/compress"
	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/dag"
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/event"
	"github.com/Iron-Ham/paragent/internal/executor"
	"github.com/Iron-Ham/paragent/internal/report"
	"github.com/Iron-Ham/paragent/internal/task"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func addRunFlags(c *cobra.Command) {
	c.Flags().String("backend", "", "backend for tasks that do not name one (codex, claude, gemini)")
	c.Flags().Int("timeout", 0, "per-task timeout in seconds")
	c.Flags().Bool("progress", false, "relay [PROGRESS] markers from backends to the log")
	c.Flags().String("workdir", "", "working directory for tasks that do not set one")
	c.Flags().StringP("file", "f", "", "read the task batch from this file instead of stdin")
	c.Flags().StringP("output", "o", outputText, "summary format (text, json)")
	_ = viper.BindPFlag("backend", c.Flags().Lookup("backend"))
	_ = viper.BindPFlag("timeout", c.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("progress", c.Flags().Lookup("progress"))
	_ = viper.BindPFlag("workdir", c.Flags().Lookup("workdir"))
}

func runBatch(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != outputText && output != outputJSON {
		return fmt.Errorf("invalid output format %q (valid: text, json)", output)
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logging")
	}
	defer func() { _ = log.Close() }()
	log = log.WithRun(uuid.NewString())

	plan, err := loadPlan(cmd, cfg)
	if err != nil {
		log.Error("failed to plan batch", "error", err)
		return err
	}
	log.Info("batch planned", "tasks", plan.Len(), "layers", len(plan.Layers()))

	bus := event.NewBus(event.WithLogger(log.Slog()))
	bus.SubscribeAll(func(e event.Event) {
		log.Debug("event", "type", e.EventType(), "at", e.Timestamp().Format(time.RFC3339Nano))
	})

	compressor, err := compress.NewGemini(cfg.Compress, log)
	if err != nil {
		return errors.Wrap(err, "failed to initialize compressor")
	}

	exec := executor.New(
		ai.NewRegistry(cfg.Backends),
		executor.OptionsFromConfig(cfg),
		executor.WithLogger(log),
		executor.WithPublisher(bus),
		executor.WithCompressor(compressor),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := exec.Run(ctx, plan)
	code := report.ExitCode(results)
	log.Info("batch finished", "exit_code", code, "events", bus.Published())

	out := cmd.OutOrStdout()
	if output == outputJSON {
		err = report.RenderJSON(out, results)
	} else {
		err = report.Render(out, results, report.Options{Color: colorFor(out)})
	}
	if err != nil {
		return errors.Wrap(err, "failed to write summary")
	}

	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// loadPlan reads, parses and layers the batch named by --file or stdin.
func loadPlan(cmd *cobra.Command, cfg *config.Config) (*dag.Plan, error) {
	var in io.Reader = cmd.InOrStdin()
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open task batch")
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	specs, err := task.ParseReader(in, task.Defaults{Backend: cfg.Backend, Workdir: cfg.Workdir})
	if err != nil {
		return nil, err
	}
	return dag.Build(specs)
}

func colorFor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.ColorEnabled(f)
}
