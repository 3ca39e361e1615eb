// Package executor runs a layered task plan against the backend CLIs.
//
// Layers run strictly one after another. Every runnable task of a layer gets
// its own goroutine and its own backend process; the layer ends only when all
// of them are terminal. Before a layer starts, tasks whose dependencies did not
// succeed are skipped without launching anything. Task failures never abort
// the run: every task in the plan yields exactly one result.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/paragent/internal/ai"
	"github.com/Iron-Ham/paragent/internal/compress"
	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/dag"
	"github.com/Iron-Ham/paragent/internal/event"
	"github.com/Iron-Ham/paragent/internal/logging"
	"github.com/Iron-Ham/paragent/internal/task"
)

// Error texts recorded on results.
const (
	reasonCanceled       = "skipped: execution canceled"
	reasonFailedDeps     = "skipped due to failed dependencies: "
	errCanceled          = "execution canceled"
	errNoParseableOutput = "backend produced no parseable output"
)

// Options controls how tasks are supervised.
type Options struct {
	// Timeout is the per-task wall clock limit. Zero disables it.
	Timeout time.Duration
	// Progress enables the progress instruction and relay for every task.
	Progress bool
	// ForceKillDelay is the grace period between SIGTERM and SIGKILL.
	// Zero means the configured default.
	ForceKillDelay time.Duration
	// RequireOutput fails tasks that exit 0 without any parseable event.
	RequireOutput bool
	// StderrTailBytes bounds the stderr kept per task. Zero means the
	// configured default.
	StderrTailBytes int
}

// OptionsFromConfig maps the loaded configuration onto executor options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:         cfg.TaskTimeout(),
		Progress:        cfg.Progress,
		ForceKillDelay:  cfg.Executor.ForceKillDelay(),
		RequireOutput:   cfg.Executor.RequireOutput,
		StderrTailBytes: cfg.Executor.StderrTailBytes,
	}
}

// Executor runs plans. It is safe to reuse across runs.
type Executor struct {
	registry   *ai.Registry
	resolver   ai.Resolver
	opts       Options
	logger     *logging.Logger
	publisher  event.Publisher
	fs         afero.Fs
	compressor compress.Compressor
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher sets where lifecycle events are published.
func WithPublisher(p event.Publisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

// WithFs sets the filesystem used for pre-flight checks. Defaults to the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(e *Executor) {
		if fs != nil {
			e.fs = fs
		}
	}
}

// WithCompressor sets the compressor for dependency context. Without one,
// dependency output is injected verbatim.
func WithCompressor(c compress.Compressor) Option {
	return func(e *Executor) {
		e.compressor = c
	}
}

// WithLookPath replaces executable resolution.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(e *Executor) {
		e.resolver.LookPath = lookPath
	}
}

// New creates an Executor that resolves backends from registry.
func New(registry *ai.Registry, opts Options, options ...Option) *Executor {
	if registry == nil {
		registry = ai.DefaultRegistry()
	}
	if opts.ForceKillDelay <= 0 {
		opts.ForceKillDelay = config.Default().Executor.ForceKillDelay()
	}
	if opts.StderrTailBytes <= 0 {
		opts.StderrTailBytes = config.Default().Executor.StderrTailBytes
	}
	e := &Executor{
		registry: registry,
		opts:     opts,
		logger:   logging.NopLogger(),
		fs:       afero.NewOsFs(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Run executes plan layer by layer and returns one result per task, in layer
// order and input order within a layer. Cancelling ctx stops running
// processes and skips every layer that has not started.
func (e *Executor) Run(ctx context.Context, plan *dag.Plan) []task.Result {
	results := make([]task.Result, 0, plan.Len())
	status := make(map[string]task.Status, plan.Len())
	outputs := make(map[string]string)

	for idx, layer := range plan.Layers() {
		log := e.logger.WithLayer(idx)
		ids := make([]string, len(layer))
		for i, spec := range layer {
			ids[i] = spec.ID
		}
		log.Info("layer started", "tasks", len(layer), "task_ids", strings.Join(ids, ","))
		e.publish(event.NewLayerStartedEvent(idx, ids))
		start := time.Now()

		layerResults := e.runLayer(ctx, idx, layer, status, outputs)

		succeeded := 0
		for _, res := range layerResults {
			status[res.TaskID] = res.Status
			if res.Status == task.StatusSuccess {
				succeeded++
				outputs[res.TaskID] = res.Message
			}
		}
		failed := len(layerResults) - succeeded
		log.Info("layer completed", "succeeded", succeeded, "failed", failed, "duration", time.Since(start).Round(time.Millisecond))
		e.publish(event.NewLayerCompletedEvent(idx, succeeded, failed, time.Since(start)))

		results = append(results, layerResults...)
	}
	return results
}

// runLayer launches every runnable task of one layer and waits for all of
// them. Each goroutine writes only its own slot.
func (e *Executor) runLayer(ctx context.Context, idx int, layer []task.Spec, status map[string]task.Status, outputs map[string]string) []task.Result {
	results := make([]task.Result, len(layer))
	var wg conc.WaitGroup

	for i, spec := range layer {
		if ctx.Err() != nil {
			results[i] = e.skip(spec, idx, reasonCanceled)
			continue
		}
		if failed := failedDependencies(spec, status); len(failed) > 0 {
			results[i] = e.skip(spec, idx, reasonFailedDeps+strings.Join(failed, ", "))
			continue
		}

		wg.Go(func() {
			log := e.logger.WithLayer(idx).WithTask(spec.ID)
			var res task.Result
			recovered := panics.Try(func() {
				res = e.runTask(ctx, idx, spec, outputs)
			})
			if recovered != nil {
				res = task.NewResult(spec, idx)
				e.fail(&res, task.ExitCodeFailure, fmt.Sprintf("internal error: %v", recovered.Value))
				log.Error("task panicked", "panic", recovered.Value, "stack", string(recovered.Stack))
			}
			log.Info("task completed",
				"status", res.Status,
				"exit_code", res.ExitCode,
				"duration_ms", res.DurationMs)
			e.publish(event.NewTaskCompletedEvent(res))
			results[i] = res
		})
	}

	wg.Wait()
	return results
}

// failedDependencies lists, in declaration order, the dependencies of spec
// that did not succeed.
func failedDependencies(spec task.Spec, status map[string]task.Status) []string {
	var failed []string
	for _, dep := range spec.Dependencies {
		if status[dep] != task.StatusSuccess {
			failed = append(failed, dep)
		}
	}
	return failed
}

func (e *Executor) skip(spec task.Spec, idx int, reason string) task.Result {
	res := task.NewResult(spec, idx)
	e.transition(&res, task.StatusSkipped)
	res.ExitCode = task.ExitCodeFailure
	res.Error = reason
	e.logger.WithLayer(idx).WithTask(spec.ID).Warn("task skipped", "reason", reason)
	e.publish(event.NewTaskSkippedEvent(spec.ID, idx, reason))
	return res
}

// transition applies a state change. The executor only requests legal
// transitions, so a rejection is a bug worth a log line.
func (e *Executor) transition(res *task.Result, to task.Status) {
	if err := res.Transition(to); err != nil {
		e.logger.WithTask(res.TaskID).Error("rejected status transition", "error", err)
	}
}

func (e *Executor) publish(ev event.Event) {
	if e.publisher != nil {
		e.publisher.Publish(ev)
	}
}
