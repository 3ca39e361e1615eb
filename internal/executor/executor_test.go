//go:build unix

package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/Iron-Ham/paragent/internal/ai"
	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/dag"
	"github.com/Iron-Ham/paragent/internal/event"
	"github.com/Iron-Ham/paragent/internal/task"
)

const (
	threadLine  = `{"type":"thread.started","thread_id":"th-1"}`
	messageLine = `{"type":"item.completed","item":{"type":"agent_message","text":"done"}}`
)

// fakeBackend writes an executable shell script and returns its path.
func fakeBackend(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-backend")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake backend: %v", err)
	}
	return path
}

// succeedScript drains stdin and prints a codex thread and message.
func succeedScript() string {
	return fmt.Sprintf("cat >/dev/null\necho '%s'\necho '%s'", threadLine, messageLine)
}

func registryFor(command string) *ai.Registry {
	cfg := config.Default().Backends
	cfg.Codex.Command = command
	cfg.Claude.Command = command
	cfg.Gemini.Command = command
	return ai.NewRegistry(cfg)
}

func buildPlan(t *testing.T, input string) *dag.Plan {
	t.Helper()
	specs, err := task.Parse(input, task.Defaults{Backend: "codex", Workdir: "."})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	plan, err := dag.Build(specs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plan
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		switch ev := e.(type) {
		case event.TaskStartedEvent:
			if ev.TaskID == taskID {
				out = append(out, ev.EventType())
			}
		case event.TaskCompletedEvent:
			if ev.TaskID == taskID {
				out = append(out, ev.EventType())
			}
		case event.TaskSkippedEvent:
			if ev.TaskID == taskID {
				out = append(out, ev.EventType())
			}
		}
	}
	return out
}

func (r *recorder) progress() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if p, ok := e.(event.TaskProgressEvent); ok {
			out = append(out, p.Message)
		}
	}
	return out
}

func byID(results []task.Result) map[string]task.Result {
	m := make(map[string]task.Result, len(results))
	for _, r := range results {
		m[r.TaskID] = r
	}
	return m
}

func TestRun_AllSucceed(t *testing.T) {
	backend := fakeBackend(t, succeedScript())
	plan := buildPlan(t, `---TASK---
id: a
---CONTENT---
first
---TASK---
id: b
---CONTENT---
second
---TASK---
id: c
dependencies: a, b
---CONTENT---
third
`)

	results := New(registryFor(backend), Options{Timeout: 10 * time.Second}).Run(context.Background(), plan)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	wantOrder := []string{"a", "b", "c"}
	for i, res := range results {
		if res.TaskID != wantOrder[i] {
			t.Errorf("results[%d].TaskID = %q, want %q", i, res.TaskID, wantOrder[i])
		}
		if res.Status != task.StatusSuccess || res.ExitCode != 0 {
			t.Errorf("%s: status = %s exit = %d, want SUCCESS 0 (error %q)", res.TaskID, res.Status, res.ExitCode, res.Error)
		}
		if res.SessionID != "th-1" || res.Message != "done" {
			t.Errorf("%s: session = %q message = %q", res.TaskID, res.SessionID, res.Message)
		}
		if res.WellFormedLines != 2 {
			t.Errorf("%s: WellFormedLines = %d, want 2", res.TaskID, res.WellFormedLines)
		}
	}
	if results[2].Layer != 1 {
		t.Errorf("c layer = %d, want 1", results[2].Layer)
	}
}

func TestRun_FailedDependencySkips(t *testing.T) {
	backend := fakeBackend(t, fmt.Sprintf(`input=$(cat)
case "$input" in
  *FAIL*) echo "boom" >&2; exit 1 ;;
esac
echo '%s'`, messageLine))
	plan := buildPlan(t, `---TASK---
id: a
---CONTENT---
FAIL now
---TASK---
id: b
dependencies: a
---CONTENT---
never runs
---TASK---
id: c
dependencies: b
---CONTENT---
never runs either
`)
	rec := &recorder{}

	results := New(registryFor(backend), Options{}, WithPublisher(rec)).Run(context.Background(), plan)
	got := byID(results)

	if a := got["a"]; a.Status != task.StatusFailed || a.ExitCode != 1 || a.Error != "boom" {
		t.Errorf("a = %s exit %d error %q, want FAILED 1 boom", a.Status, a.ExitCode, a.Error)
	}
	if b := got["b"]; b.Status != task.StatusSkipped || b.ExitCode != 1 || b.Error != "skipped due to failed dependencies: a" {
		t.Errorf("b = %s exit %d error %q", b.Status, b.ExitCode, b.Error)
	}
	if c := got["c"]; c.Status != task.StatusSkipped || c.Error != "skipped due to failed dependencies: b" {
		t.Errorf("c = %s error %q, want transitive skip", c.Status, c.Error)
	}

	for _, id := range []string{"b", "c"} {
		if types := rec.types(id); len(types) != 1 || types[0] != event.TypeTaskSkipped {
			t.Errorf("%s events = %v, want only task.skipped", id, types)
		}
	}
	if types := rec.types("a"); len(types) != 2 || types[0] != event.TypeTaskStarted || types[1] != event.TypeTaskCompleted {
		t.Errorf("a events = %v, want started then completed", types)
	}
}

func TestRun_SkipListsFailedDependenciesInOrder(t *testing.T) {
	backend := fakeBackend(t, fmt.Sprintf(`input=$(cat)
case "$input" in
  *FAIL*) exit 2 ;;
esac
echo '%s'`, messageLine))
	plan := buildPlan(t, `---TASK---
id: x
---CONTENT---
FAIL
---TASK---
id: y
---CONTENT---
ok
---TASK---
id: z
---CONTENT---
FAIL
---TASK---
id: w
dependencies: z, y, x
---CONTENT---
join
`)

	got := byID(New(registryFor(backend), Options{}).Run(context.Background(), plan))

	if w := got["w"]; w.Error != "skipped due to failed dependencies: z, x" {
		t.Errorf("w.Error = %q", w.Error)
	}
	if x := got["x"]; x.ExitCode != 2 || x.Error != "backend exited with status 2" {
		t.Errorf("x = exit %d error %q", x.ExitCode, x.Error)
	}
}

func TestRun_Timeout(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	backend := fakeBackend(t, fmt.Sprintf(`echo $$ > %s
cat >/dev/null
echo '%s'
echo "partial stderr" >&2
sleep 5`, pidFile, threadLine))
	plan := buildPlan(t, "---TASK---\nid: slow\n---CONTENT---\nwait\n")

	start := time.Now()
	results := New(registryFor(backend), Options{Timeout: time.Second, ForceKillDelay: time.Second}).Run(context.Background(), plan)
	elapsed := time.Since(start)

	res := results[0]
	if res.Status != task.StatusTimeout || res.ExitCode != task.ExitCodeTimeout {
		t.Fatalf("status = %s exit = %d, want TIMEOUT 124", res.Status, res.ExitCode)
	}
	if res.Error != "execution timeout after 1s" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.SessionID != "th-1" {
		t.Errorf("SessionID = %q, want partial session kept", res.SessionID)
	}
	if res.Stderr != "partial stderr" {
		t.Errorf("Stderr = %q, want partial stderr kept", res.Stderr)
	}
	if elapsed > 4*time.Second {
		t.Errorf("run took %v, want the process to be stopped at the deadline", elapsed)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("failed to read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("invalid pid %q: %v", data, err)
	}
	if err := syscall.Kill(pid, 0); err != syscall.ESRCH {
		t.Errorf("Kill(%d, 0) = %v, want ESRCH for a terminated process", pid, err)
	}
}

func TestRun_StderrTail(t *testing.T) {
	backend := fakeBackend(t, "cat >/dev/null\necho boom >&2\nexit 3")
	plan := buildPlan(t, "---TASK---\nid: a\n---CONTENT---\nfail\n")

	tests := []struct {
		name string
		opts Options
	}{
		{"default config", OptionsFromConfig(config.Default())},
		{"zero tail falls back to default", Options{Timeout: 10 * time.Second, StderrTailBytes: 0}},
		{"zero value options", Options{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(registryFor(backend), tt.opts).Run(context.Background(), plan)[0]
			if res.Status != task.StatusFailed || res.ExitCode != 3 {
				t.Fatalf("status = %s exit = %d, want FAILED 3", res.Status, res.ExitCode)
			}
			if res.Error != "boom" {
				t.Errorf("Error = %q, want backend stderr", res.Error)
			}
			if res.Stderr != "boom" {
				t.Errorf("Stderr = %q, want boom", res.Stderr)
			}
		})
	}
}

func TestRun_FinishesBeforeDeadline(t *testing.T) {
	backend := fakeBackend(t, "cat >/dev/null\nsleep 0.2\necho '"+messageLine+"'")
	plan := buildPlan(t, "---TASK---\nid: quick\n---CONTENT---\ngo\n")

	res := New(registryFor(backend), Options{Timeout: 3 * time.Second, ForceKillDelay: 100 * time.Millisecond}).
		Run(context.Background(), plan)[0]
	if res.Status != task.StatusSuccess || res.Message != "done" {
		t.Errorf("status = %s message = %q error = %q, want SUCCESS done", res.Status, res.Message, res.Error)
	}
	// Leave time for a stale deadline or kill timer to misfire.
	time.Sleep(300 * time.Millisecond)
}

func TestRun_TimeoutEscalatesToKill(t *testing.T) {
	backend := fakeBackend(t, "trap '' TERM\ncat >/dev/null\nsleep 5")
	plan := buildPlan(t, "---TASK---\nid: stubborn\n---CONTENT---\nwait\n")

	start := time.Now()
	results := New(registryFor(backend), Options{Timeout: 500 * time.Millisecond, ForceKillDelay: 500 * time.Millisecond}).
		Run(context.Background(), plan)

	if results[0].Status != task.StatusTimeout {
		t.Errorf("status = %s, want TIMEOUT", results[0].Status)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("run took %v, want SIGKILL after the grace period", elapsed)
	}
}

func TestRun_BackendNotFound(t *testing.T) {
	plan := buildPlan(t, `---TASK---
id: a
---CONTENT---
x
---TASK---
id: b
dependencies: a
---CONTENT---
y
`)
	rec := &recorder{}

	results := New(registryFor("/nonexistent/paragent-codex"), Options{}, WithPublisher(rec)).Run(context.Background(), plan)
	got := byID(results)

	a := got["a"]
	if a.Status != task.StatusNotFound || a.ExitCode != task.ExitCodeNotFound {
		t.Errorf("a = %s exit %d, want NOT_FOUND 127", a.Status, a.ExitCode)
	}
	if a.Error != "backend command not found: /nonexistent/paragent-codex" {
		t.Errorf("a.Error = %q", a.Error)
	}
	if got["b"].Status != task.StatusSkipped {
		t.Errorf("b = %s, want SKIPPED", got["b"].Status)
	}
	if types := rec.types("a"); len(types) != 1 || types[0] != event.TypeTaskCompleted {
		t.Errorf("a events = %v, want completion without start", types)
	}
}

func TestRun_NoParseableOutput(t *testing.T) {
	backend := fakeBackend(t, "cat >/dev/null\necho 'plain answer'")
	input := "---TASK---\nid: t\n---CONTENT---\nx\n"

	t.Run("succeeds by default", func(t *testing.T) {
		res := New(registryFor(backend), Options{}).Run(context.Background(), buildPlan(t, input))[0]
		if res.Status != task.StatusSuccess {
			t.Errorf("status = %s, want SUCCESS", res.Status)
		}
		if res.Message != "plain answer" {
			t.Errorf("Message = %q, want plain-text fallback", res.Message)
		}
		if res.WellFormedLines != 0 {
			t.Errorf("WellFormedLines = %d, want 0", res.WellFormedLines)
		}
	})

	t.Run("fails when output is required", func(t *testing.T) {
		res := New(registryFor(backend), Options{RequireOutput: true}).Run(context.Background(), buildPlan(t, input))[0]
		if res.Status != task.StatusFailed || res.ExitCode != 1 || res.Error != errNoParseableOutput {
			t.Errorf("result = %s exit %d error %q", res.Status, res.ExitCode, res.Error)
		}
	})
}

func TestRun_SessionFallsBackToSpec(t *testing.T) {
	backend := fakeBackend(t, fmt.Sprintf("cat >/dev/null\necho '%s'", messageLine))
	plan := buildPlan(t, "---TASK---\nid: t\nsession_id: sess-9\n---CONTENT---\ncontinue\n")

	res := New(registryFor(backend), Options{}).Run(context.Background(), plan)[0]
	if res.SessionID != "sess-9" {
		t.Errorf("SessionID = %q, want sess-9", res.SessionID)
	}
}

func TestRun_PassesPromptAndEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "captured")
	backend := fakeBackend(t, fmt.Sprintf(`cat > %[1]s
echo "effort=$CODEX_MODEL_REASONING_EFFORT" >> %[1]s
echo '%[2]s'`, out, messageLine))
	plan := buildPlan(t, "---TASK---\nid: t\nreasoning_effort: high\n---CONTENT---\nhello backend\n")

	res := New(registryFor(backend), Options{}).Run(context.Background(), plan)[0]
	if res.Status != task.StatusSuccess {
		t.Fatalf("status = %s error %q", res.Status, res.Error)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read captured input: %v", err)
	}
	if !strings.HasPrefix(string(data), "hello backend") {
		t.Errorf("stdin = %q, want the prompt", data)
	}
	if !strings.Contains(string(data), "effort=high") {
		t.Errorf("captured = %q, want reasoning effort in the environment", data)
	}
}

func TestRun_Progress(t *testing.T) {
	backend := fakeBackend(t, `cat >/dev/null
echo '{"type":"item.completed","item":{"type":"agent_message","text":"[PROGRESS] Read main.go"}}'
echo '[PROGRESS] Ran the tests'`)
	plan := buildPlan(t, "---TASK---\nid: t\n---CONTENT---\nx\n")
	rec := &recorder{}

	res := New(registryFor(backend), Options{Progress: true}, WithPublisher(rec)).Run(context.Background(), plan)[0]
	if res.Status != task.StatusSuccess {
		t.Fatalf("status = %s error %q", res.Status, res.Error)
	}
	got := rec.progress()
	if len(got) != 2 || got[0] != "Read main.go" || got[1] != "Ran the tests" {
		t.Errorf("progress = %q", got)
	}
}

func TestRun_PreflightFailure(t *testing.T) {
	backend := fakeBackend(t, succeedScript())
	plan := buildPlan(t, `---TASK---
id: nodir
workdir: /nonexistent/paragent-workdir
---CONTENT---
x
---TASK---
id: noimage
images: /nonexistent/shot.png
---CONTENT---
x
`)
	rec := &recorder{}

	got := byID(New(registryFor(backend), Options{}, WithPublisher(rec)).Run(context.Background(), plan))

	if r := got["nodir"]; r.Status != task.StatusFailed || r.Error != "workdir not found: /nonexistent/paragent-workdir" {
		t.Errorf("nodir = %s error %q", r.Status, r.Error)
	}
	if r := got["noimage"]; r.Status != task.StatusFailed || r.Error != "image file not found: /nonexistent/shot.png" {
		t.Errorf("noimage = %s error %q", r.Status, r.Error)
	}
	for _, id := range []string{"nodir", "noimage"} {
		for _, typ := range rec.types(id) {
			if typ == event.TypeTaskStarted {
				t.Errorf("%s was started despite failing pre-flight", id)
			}
		}
	}
}

func TestRun_Cancellation(t *testing.T) {
	backend := fakeBackend(t, "cat >/dev/null\nsleep 5")
	plan := buildPlan(t, `---TASK---
id: running
---CONTENT---
x
---TASK---
id: later
dependencies: running
---CONTENT---
y
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	results := New(registryFor(backend), Options{Timeout: 30 * time.Second, ForceKillDelay: time.Second}).Run(ctx, plan)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if r := results[0]; r.Status != task.StatusFailed || r.Error != errCanceled {
		t.Errorf("running = %s error %q, want FAILED canceled", r.Status, r.Error)
	}
	if r := results[1]; r.Status != task.StatusSkipped || r.Error != reasonCanceled {
		t.Errorf("later = %s error %q", r.Status, r.Error)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("run took %v after cancellation", elapsed)
	}
}

func TestRun_DependencyContext(t *testing.T) {
	// Echoing stdin back makes each task's message equal to its prompt.
	backend := fakeBackend(t, "cat")
	plan := buildPlan(t, `---TASK---
id: research
---CONTENT---
alpha findings
---TASK---
id: write
dependencies: research
compress: true
---CONTENT---
write it up
`)
	comp := &fakeCompressor{}

	got := byID(New(registryFor(backend), Options{}, WithCompressor(comp)).Run(context.Background(), plan))

	msg := got["write"].Message
	for _, want := range []string{
		"write it up",
		"[Compressed dependency output | model: flash, ratio: 30%]",
		"### research\nSUMMARY(alpha findings)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt %q does not contain %q", msg, want)
		}
	}
	if comp.calls != 1 {
		t.Errorf("compressor calls = %d, want 1", comp.calls)
	}
}

type startPanicPublisher struct{ recorder }

func (p *startPanicPublisher) Publish(e event.Event) {
	if started, ok := e.(event.TaskStartedEvent); ok && started.TaskID == "bad" {
		panic("publisher exploded")
	}
	p.recorder.Publish(e)
}

func TestRun_PanicIsIsolated(t *testing.T) {
	backend := fakeBackend(t, succeedScript())
	plan := buildPlan(t, `---TASK---
id: bad
---CONTENT---
x
---TASK---
id: good
---CONTENT---
y
`)

	got := byID(New(registryFor(backend), Options{}, WithPublisher(&startPanicPublisher{})).Run(context.Background(), plan))

	if bad := got["bad"]; bad.Status != task.StatusFailed || !strings.Contains(bad.Error, "publisher exploded") {
		t.Errorf("bad = %s error %q", bad.Status, bad.Error)
	}
	if good := got["good"]; good.Status != task.StatusSuccess {
		t.Errorf("good = %s, want sibling unaffected", good.Status)
	}
}

func TestRun_Totality(t *testing.T) {
	backend := fakeBackend(t, fmt.Sprintf(`input=$(cat)
case "$input" in
  *FAIL*) exit 1 ;;
esac
echo '%s'`, messageLine))

	var b strings.Builder
	for i := range 12 {
		fmt.Fprintf(&b, "---TASK---\nid: t%d\n", i)
		if i >= 3 {
			fmt.Fprintf(&b, "dependencies: t%d, t%d\n", i-3, i-2)
		}
		content := "ok"
		if i == 4 {
			content = "FAIL"
		}
		fmt.Fprintf(&b, "---CONTENT---\n%s\n", content)
	}
	plan := buildPlan(t, b.String())

	results := New(registryFor(backend), Options{}).Run(context.Background(), plan)
	if len(results) != plan.Len() {
		t.Fatalf("len(results) = %d, want %d", len(results), plan.Len())
	}
	seen := make(map[string]bool)
	for _, r := range results {
		if seen[r.TaskID] {
			t.Errorf("duplicate result for %s", r.TaskID)
		}
		seen[r.TaskID] = true
		if !r.Status.IsTerminal() {
			t.Errorf("%s ended in non-terminal status %s", r.TaskID, r.Status)
		}
	}
}
