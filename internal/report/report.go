// Package report aggregates task results into the run summary and the
// process exit code.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Iron-Ham/paragent/internal/task"
)

// Summary counts results by terminal status.
type Summary struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Timeout  int `json:"timeout"`
	NotFound int `json:"not_found"`
}

// Summarize counts results. Failed counts only FAILED results; the other
// non-success statuses have their own counters.
func Summarize(results []task.Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case task.StatusSuccess:
			s.Success++
		case task.StatusSkipped:
			s.Skipped++
		case task.StatusTimeout:
			s.Timeout++
		case task.StatusNotFound:
			s.NotFound++
		default:
			s.Failed++
		}
	}
	return s
}

// ExitCode derives the process exit code. A missing backend executable wins
// over a timeout, which wins over any other failure.
func ExitCode(results []task.Result) int {
	code := 0
	for _, r := range results {
		switch {
		case r.Status == task.StatusNotFound:
			return task.ExitCodeNotFound
		case r.Status == task.StatusTimeout:
			code = task.ExitCodeTimeout
		case r.Status != task.StatusSuccess && code == 0:
			code = task.ExitCodeFailure
		}
	}
	return code
}

// Options controls text rendering.
type Options struct {
	// Color enables styled status words.
	Color bool
}

// ColorEnabled reports whether styled output suits f: it must be a terminal
// and NO_COLOR must be unset.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Render writes the text summary of results.
func Render(w io.Writer, results []task.Result, opts Options) error {
	p := painter{color: opts.Color}
	s := Summarize(results)

	var b strings.Builder
	b.WriteString(p.render(titleStyle, "=== Parallel Execution Summary ==="))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total: %d | Success: %d | Failed: %d | Skipped: %d | Timeout: %d | Not found: %d\n",
		s.Total, s.Success, s.Failed, s.Skipped, s.Timeout, s.NotFound)
	b.WriteString("\n")

	for _, r := range results {
		b.WriteString(p.render(headingStyle, fmt.Sprintf("--- Task: %s ---", r.TaskID)))
		b.WriteString("\n")
		fmt.Fprintf(&b, "Status: %s\n", statusLine(p, r))
		if r.Error != "" {
			label := "Error"
			if r.Status == task.StatusSkipped {
				label = "Reason"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, r.Error)
		}
		if r.SessionID != "" {
			fmt.Fprintf(&b, "Session: %s\n", r.SessionID)
		}
		if r.Status != task.StatusSkipped {
			fmt.Fprintf(&b, "Duration: %s\n", p.render(mutedStyle, formatDuration(r.DurationMs)))
		}
		if r.Message != "" {
			b.WriteString("\n")
			b.WriteString(r.Message)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusLine(p painter, r task.Result) string {
	word := p.status(r.Status.String())
	switch r.Status {
	case task.StatusSuccess, task.StatusSkipped:
		return word
	default:
		return fmt.Sprintf("%s (exit code %d)", word, r.ExitCode)
	}
}

// formatDuration prints whole milliseconds below a second and rounds to
// 100ms above it.
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// jsonReport is the machine-readable form of a run.
type jsonReport struct {
	Summary  Summary       `json:"summary"`
	ExitCode int           `json:"exit_code"`
	Results  []task.Result `json:"results"`
}

// RenderJSON writes results, their summary and the exit code as indented JSON.
func RenderJSON(w io.Writer, results []task.Result) error {
	if results == nil {
		results = []task.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Summary:  Summarize(results),
		ExitCode: ExitCode(results),
		Results:  results,
	})
}
