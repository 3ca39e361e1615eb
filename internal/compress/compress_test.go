package compress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/paragent/internal/config"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	name  string
	args  []string
	stdin string
	out   string
	err   error
	delay time.Duration
}

func (f *fakeRunner) run(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.name, f.args, f.stdin = name, args, stdin
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

func testConfig() config.CompressConfig {
	cfg := config.Default().Compress
	cfg.MinLines = 5
	return cfg
}

func longText(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	return strings.Join(lines, "\n")
}

func newTestGemini(t *testing.T, cfg config.CompressConfig, f *fakeRunner) *Gemini {
	t.Helper()
	g, err := NewGemini(cfg, nil, WithRunner(f.run))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	return g
}

func TestGemini_Compress(t *testing.T) {
	f := &fakeRunner{out: "  summary\n"}
	g := newTestGemini(t, testConfig(), f)

	got := g.Compress(context.Background(), longText(10), 0.5, "pro")
	if got != "summary" {
		t.Errorf("Compress() = %q, want %q", got, "summary")
	}
	if f.name != "gemini" {
		t.Errorf("command = %q, want gemini", f.name)
	}
	wantArgs := "-o text -y -m gemini-3-pro-preview -p -"
	if strings.Join(f.args, " ") != wantArgs {
		t.Errorf("args = %q, want %q", f.args, wantArgs)
	}
	if !strings.Contains(f.stdin, "50%") || !strings.Contains(f.stdin, "line 9") {
		t.Errorf("prompt = %q, want ratio and original text", f.stdin)
	}
	if !strings.Contains(f.stdin, "roughly 20 lines") {
		t.Errorf("prompt = %q, want the minimum target line count", f.stdin)
	}
}

func TestGemini_ShortTextUnchanged(t *testing.T) {
	f := &fakeRunner{out: "summary"}
	g := newTestGemini(t, testConfig(), f)

	for _, text := range []string{"", "   ", longText(4)} {
		if got := g.Compress(context.Background(), text, 0.3, "flash"); got != text {
			t.Errorf("Compress(%q) = %q, want input unchanged", text, got)
		}
	}
	if f.calls != 0 {
		t.Errorf("runner called %d times, want 0", f.calls)
	}
}

func TestGemini_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeRunner
	}{
		{"runner error", &fakeRunner{err: errors.New("exit status 1")}},
		{"empty output", &fakeRunner{out: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGemini(t, testConfig(), tt.f)
			text := longText(10)
			if got := g.Compress(context.Background(), text, 0.3, ""); got != text {
				t.Errorf("Compress() = %q, want original text", got)
			}
		})
	}
}

func TestGemini_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.TimeoutSeconds = 1
	f := &fakeRunner{out: "late", delay: 5 * time.Second}
	g := newTestGemini(t, cfg, f)

	text := longText(10)
	start := time.Now()
	if got := g.Compress(context.Background(), text, 0.3, "flash"); got != text {
		t.Errorf("Compress() = %q, want original text after timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Compress took %v, want the call timeout to apply", elapsed)
	}
}

func TestGemini_Cache(t *testing.T) {
	f := &fakeRunner{err: errors.New("unavailable")}
	g := newTestGemini(t, testConfig(), f)
	text := longText(10)

	g.Compress(context.Background(), text, 0.3, "flash")
	g.Compress(context.Background(), text, 0.3, "flash")
	if f.calls != 1 {
		t.Errorf("runner called %d times, want fallbacks to be cached", f.calls)
	}

	g.Compress(context.Background(), text, 0.4, "flash")
	g.Compress(context.Background(), text, 0.3, "pro")
	if f.calls != 3 {
		t.Errorf("runner called %d times, want a miss per ratio and model", f.calls)
	}
}

func TestGemini_MissingCLI(t *testing.T) {
	cfg := testConfig()
	cfg.Command = "paragent-no-such-gemini"
	g, err := NewGemini(cfg, nil)
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	text := longText(10)
	if got := g.Compress(context.Background(), text, 0.3, "flash"); got != text {
		t.Errorf("Compress() = %q, want original text", got)
	}
}

func TestClampRatio(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, DefaultRatio},
		{-1, DefaultRatio},
		{0.01, MinRatio},
		{0.5, 0.5},
		{3, MaxRatio},
	}
	for _, tt := range tests {
		if got := ClampRatio(tt.in); got != tt.want {
			t.Errorf("ClampRatio(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestModelName(t *testing.T) {
	tests := map[string]string{
		"flash":          "gemini-3-flash-preview",
		"FLASH":          "gemini-3-flash-preview",
		"":               "gemini-3-flash-preview",
		"pro":            "gemini-3-pro-preview",
		"gemini-2.5-pro": "gemini-2.5-pro",
	}
	for in, want := range tests {
		if got := ModelName(in); got != want {
			t.Errorf("ModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("hello", 0.3, "flash")
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "flash" || parts[1] != "0.300" || len(parts[2]) != 16 {
		t.Errorf("CacheKey() = %q, want model:ratio:hash16", key)
	}
	if CacheKey("hello", 0.3, "flash") != key {
		t.Error("CacheKey should be deterministic")
	}
	if CacheKey("hello!", 0.3, "flash") == key {
		t.Error("CacheKey should depend on the text")
	}
}
