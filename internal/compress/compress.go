// Package compress shrinks dependency output before it is handed to a
// downstream task, using the gemini CLI as a summarizer.
package compress

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os/exec"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/errors"
	"github.com/Iron-Ham/paragent/internal/logging"
	"github.com/Iron-Ham/paragent/internal/util"
)

// Ratio bounds and the fallback used for non-positive ratios.
const (
	DefaultRatio = 0.3
	MinRatio     = 0.05
	MaxRatio     = 1.0
)

// DefaultModel is the short model name used when a task names none.
const DefaultModel = "flash"

// minTargetLines is the floor for the line count requested from the model.
const minTargetLines = 20

const promptTemplate = `Compress the following content to about %.0f%% of its original length (roughly %d lines). Keep the key conclusions, data and instructions. Output only the compressed text without any extra commentary.

[Original]
%s`

// Compressor reduces text to roughly ratio of its size. Implementations never
// fail: when compression is not possible they return the input unchanged.
type Compressor interface {
	Compress(ctx context.Context, text string, ratio float64, model string) string
}

// Runner executes a command with stdin and returns its stdout. It is
// replaceable for tests.
type Runner func(ctx context.Context, name string, args []string, stdin string) (stdout []byte, err error)

// Gemini compresses text through the gemini CLI.
type Gemini struct {
	cfg    config.CompressConfig
	logger *logging.Logger
	run    Runner
	cache  *lru.Cache[string, string]
}

// Option configures a Gemini compressor.
type Option func(*Gemini)

// WithRunner replaces the command runner.
func WithRunner(run Runner) Option {
	return func(g *Gemini) {
		if run != nil {
			g.run = run
		}
	}
}

// NewGemini creates a compressor from cfg. A nil logger discards output.
func NewGemini(cfg config.CompressConfig, logger *logging.Logger, opts ...Option) (*Gemini, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = config.Default().Compress.CacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create compression cache: %w", err)
	}
	g := &Gemini{
		cfg:    cfg,
		logger: logger,
		run:    execRunner,
		cache:  cache,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Compress implements Compressor. Text shorter than the configured minimum
// line count is returned as is. Every outcome, fallbacks included, is cached.
func (g *Gemini) Compress(ctx context.Context, text string, ratio float64, model string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < g.cfg.MinLines {
		return text
	}

	ratio = ClampRatio(ratio)
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	key := CacheKey(text, ratio, model)
	if cached, ok := g.cache.Get(key); ok {
		return cached
	}

	out := g.compress(ctx, text, len(lines), ratio, model)
	g.cache.Add(key, out)
	return out
}

func (g *Gemini) compress(ctx context.Context, text string, lineCount int, ratio float64, model string) string {
	target := max(minTargetLines, int(float64(lineCount)*ratio))
	prompt := fmt.Sprintf(promptTemplate, ratio*100, target, text)

	if timeout := g.cfg.CallTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{"-o", "text", "-y", "-m", ModelName(model), "-p", "-"}
	stdout, err := g.run(ctx, g.cfg.Command, args, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("compression timed out, using original text", "timeout", g.cfg.CallTimeout())
		} else {
			g.logger.Warn("compression failed, using original text", "error", err)
		}
		return text
	}

	compressed := strings.TrimSpace(string(stdout))
	if compressed == "" {
		return text
	}
	g.logger.Info("compressed dependency output",
		"original_lines", lineCount,
		"compressed_lines", strings.Count(compressed, "\n")+1,
		"target_ratio", ratio)
	return compressed
}

// ClampRatio bounds ratio to [MinRatio, MaxRatio]; non-positive values become
// DefaultRatio.
func ClampRatio(ratio float64) float64 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return DefaultRatio
	}
	return math.Max(MinRatio, math.Min(ratio, MaxRatio))
}

// ModelName expands the short aliases "flash" and "pro" to gemini model ids.
func ModelName(model string) string {
	switch m := strings.ToLower(strings.TrimSpace(model)); m {
	case "", "flash":
		return "gemini-3-flash-preview"
	case "pro":
		return "gemini-3-pro-preview"
	default:
		return m
	}
}

// CacheKey identifies a compression request.
func CacheKey(text string, ratio float64, model string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%.3f:%s", model, ratio, hex.EncodeToString(sum[:])[:16])
}

func execRunner(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := util.StripANSI(strings.TrimSpace(stderr.String())); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, util.TruncateString(msg, 500))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
