package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/paragent/internal/ai"
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/event"
	"github.com/Iron-Ham/paragent/internal/logging"
	"github.com/Iron-Ham/paragent/internal/progress"
	"github.com/Iron-Ham/paragent/internal/task"
)

// processOutcome is what a finished backend process left behind.
type processOutcome struct {
	program  string
	exitCode int
	signaled bool
	stream   ai.StreamResult
	stderr   string
	timedOut bool
	canceled bool
	startErr error
}

// runTask drives one task from PENDING to a terminal status.
func (e *Executor) runTask(ctx context.Context, idx int, spec task.Spec, outputs map[string]string) task.Result {
	start := time.Now()
	log := e.logger.WithLayer(idx).WithTask(spec.ID)
	res := task.NewResult(spec, idx)

	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
	}()

	if err := preflight(e.fs, spec); err != nil {
		e.fail(&res, task.ExitCodeFailure, err.Error())
		return res
	}

	backend, err := e.registry.Get(spec.Backend)
	if err != nil {
		e.fail(&res, task.ExitCodeFailure, err.Error())
		return res
	}

	content := spec.Content
	if extra, included := dependencyContext(ctx, e.compressor, spec, outputs); extra != "" {
		content += "\n\n" + extra
		log.Info("injected dependency context", "dependencies", strings.Join(included, ","))
	}

	inv, err := e.resolver.Resolve(backend, spec, ai.InvocationOptions{Content: content, Progress: e.opts.Progress})
	if err != nil {
		if errors.IsBackendNotFound(err) {
			e.transition(&res, task.StatusNotFound)
			res.ExitCode = task.ExitCodeNotFound
			res.Error = fmt.Sprintf("backend command not found: %s", inv.Program)
			log.Error("backend not found", "command", inv.Program)
			return res
		}
		e.fail(&res, task.ExitCodeFailure, err.Error())
		return res
	}

	e.transition(&res, task.StatusRunning)
	log.Info("task started", "backend", backend.Name(), "workdir", inv.Dir, "images", len(spec.Images))
	log.Debug("backend command", "command", inv.String())
	e.publish(event.NewTaskStartedEvent(spec.ID, idx, string(backend.Name())))

	var relay *progress.Relay
	if e.opts.Progress {
		relay = progress.NewRelay(spec.ID, e.publisher, e.logger.WithLayer(idx))
	}
	out := e.execute(ctx, inv, backend.NewStreamParser(), relay)
	if relay != nil {
		relay.Close()
	}

	e.complete(&res, spec, out, log)
	return res
}

// complete records a process outcome on a RUNNING result.
func (e *Executor) complete(res *task.Result, spec task.Spec, out processOutcome, log *logging.Logger) {
	res.Message = out.stream.Message
	res.SessionID = out.stream.SessionID
	if res.SessionID == "" {
		res.SessionID = spec.SessionID
	}
	res.Stderr = out.stderr
	res.WellFormedLines = out.stream.WellFormedLines

	switch {
	case out.startErr != nil && !out.canceled:
		if errors.Is(out.startErr, exec.ErrNotFound) || errors.Is(out.startErr, os.ErrNotExist) {
			e.transition(res, task.StatusNotFound)
			res.ExitCode = task.ExitCodeNotFound
			res.Error = fmt.Sprintf("backend command not found: %s", out.program)
			return
		}
		e.fail(res, task.ExitCodeFailure, fmt.Sprintf("execution failed: %v", out.startErr))

	case out.timedOut:
		e.transition(res, task.StatusTimeout)
		res.ExitCode = task.ExitCodeTimeout
		res.Error = fmt.Sprintf("execution timeout after %s", e.opts.Timeout)
		log.Warn("task timed out", "timeout", e.opts.Timeout)

	case out.canceled:
		e.fail(res, task.ExitCodeFailure, errCanceled)

	case out.exitCode != 0 || out.signaled:
		code := out.exitCode
		if code <= 0 {
			code = task.ExitCodeFailure
		}
		msg := out.stderr
		if msg == "" {
			msg = fmt.Sprintf("backend exited with status %d", code)
		}
		e.fail(res, code, msg)
		log.Warn("backend failed", "exit_code", code, "error", msg)

	case out.stream.WellFormedLines == 0:
		if e.opts.RequireOutput {
			e.fail(res, task.ExitCodeFailure, errNoParseableOutput)
			return
		}
		log.Warn(errNoParseableOutput)
		e.transition(res, task.StatusSuccess)
		res.ExitCode = 0

	default:
		e.transition(res, task.StatusSuccess)
		res.ExitCode = 0
	}
}

func (e *Executor) fail(res *task.Result, code int, msg string) {
	e.transition(res, task.StatusFailed)
	res.ExitCode = code
	res.Error = msg
}

// execute runs the backend process to completion. Stdout is normalized line
// by line; stderr keeps only its tail. The timeout clock starts once the
// process is running. Expiry or a cancelled parent sends SIGTERM to the
// process group and SIGKILL once the grace period is over.
func (e *Executor) execute(parent context.Context, inv *ai.Invocation, parser ai.StreamParser, relay *progress.Relay) processOutcome {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	norm := ai.NewNormalizer(parser)
	stdout := newLineWriter(func(line []byte) {
		norm.Feed(line)
		if relay != nil {
			relay.Offer(line)
		}
	})
	stderr := newTailBuffer(e.opts.StderrTailBytes)

	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Environ()...)
	cmd.Stdin = strings.NewReader(inv.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	guard := &processGuard{}
	cmd.Cancel = func() error {
		guard.interrupt(e.opts.ForceKillDelay, func() error { return killGroup(cmd) })
		return terminateGroup(cmd)
	}
	// Backstop for children that keep the output pipes open after SIGKILL.
	cmd.WaitDelay = e.opts.ForceKillDelay + 2*time.Second

	out := processOutcome{program: inv.Program}
	if err := cmd.Start(); err != nil {
		out.startErr = err
		out.canceled = parent.Err() != nil
		return out
	}

	var deadline *time.Timer
	if e.opts.Timeout > 0 {
		deadline = time.AfterFunc(e.opts.Timeout, func() {
			guard.expire()
			cancel()
		})
	}
	waitErr := cmd.Wait()
	stopped, timedOut := guard.reap()
	if deadline != nil {
		deadline.Stop()
	}

	stdout.Flush()
	out.stream = norm.Result()
	out.stderr = stderr.String()

	if cmd.ProcessState != nil {
		out.exitCode = cmd.ProcessState.ExitCode()
		out.signaled = out.exitCode < 0
	} else if waitErr != nil {
		out.exitCode = task.ExitCodeFailure
	}

	// A process that finished on its own keeps its outcome even if the
	// deadline passed right after.
	if stopped {
		switch {
		case parent.Err() != nil:
			out.canceled = true
		case timedOut:
			out.timedOut = true
		}
	}
	return out
}

// processGuard orders the escalation timer against reaping of the group
// leader. Once the leader is reaped its group id can be reused, so no
// signal may be sent after that.
type processGuard struct {
	mu          sync.Mutex
	killTimer   *time.Timer
	interrupted bool
	expired     bool
	reaped      bool
}

// interrupt records the stop request and schedules kill after delay.
func (g *processGuard) interrupt(delay time.Duration, kill func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interrupted = true
	if g.killTimer == nil {
		g.killTimer = time.AfterFunc(delay, func() { _ = g.signal(kill) })
	}
}

// signal runs send unless the leader has been reaped.
func (g *processGuard) signal(send func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reaped {
		return nil
	}
	return send()
}

func (g *processGuard) expire() {
	g.mu.Lock()
	g.expired = true
	g.mu.Unlock()
}

// reap marks the leader as collected and reports whether the process was
// interrupted and whether the deadline caused it.
func (g *processGuard) reap() (interrupted, expired bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reaped = true
	if g.killTimer != nil {
		g.killTimer.Stop()
	}
	return g.interrupted, g.expired
}
