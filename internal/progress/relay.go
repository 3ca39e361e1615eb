// Package progress relays "[PROGRESS] ..." markers that backends print while
// a task runs. Markers become task.progress events and log records; they
// never influence a task's outcome.
package progress

import (
	"bytes"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/paragent/internal/ai"
	"github.com/Iron-Ham/paragent/internal/event"
	"github.com/Iron-Ham/paragent/internal/logging"
)

// queueSize bounds the lines waiting to be scanned for one task.
const queueSize = 64

// markerPattern stops at a quote or backslash so markers embedded in
// JSON-escaped strings are cut at the end of the string value.
var markerPattern = regexp.MustCompile(`\[PROGRESS\]\s*([^"\\\r\n]+)`)

// Extract returns the trimmed text of every progress marker in line.
func Extract(line []byte) []string {
	matches := markerPattern.FindAllSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := strings.TrimSpace(string(m[1])); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Relay scans one task's output lines in a background goroutine.
type Relay struct {
	taskID    string
	publisher event.Publisher
	logger    *logging.Logger

	lines   chan []byte
	done    chan struct{}
	mu      sync.Mutex // guards closed and sends on lines
	closed  bool
	dropped atomic.Int64
	relayed atomic.Int64
}

// NewRelay starts a relay for taskID. publisher and logger may be nil.
func NewRelay(taskID string, publisher event.Publisher, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.NopLogger()
	}
	r := &Relay{
		taskID:    taskID,
		publisher: publisher,
		logger:    logger.WithTask(taskID),
		lines:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Offer queues a line for scanning. It never blocks: lines without a marker
// are ignored and lines arriving while the queue is full are dropped.
func (r *Relay) Offer(line []byte) {
	if !bytes.Contains(line, []byte(ai.ProgressMarker)) {
		return
	}
	buf := bytes.Clone(line)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.lines <- buf:
	default:
		r.dropped.Add(1)
	}
}

// Close stops accepting lines, drains the queue and waits for the relay
// goroutine to exit. Safe to call multiple times.
func (r *Relay) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.lines)
	}
	r.mu.Unlock()
	<-r.done

	if n := r.dropped.Load(); n > 0 {
		r.logger.Debug("progress lines dropped", "count", n)
	}
}

// Relayed returns the number of progress messages published so far.
func (r *Relay) Relayed() int64 {
	return r.relayed.Load()
}

// Dropped returns the number of lines discarded because the queue was full.
func (r *Relay) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Relay) loop() {
	defer close(r.done)
	for line := range r.lines {
		r.handle(line)
	}
}

// handle recovers per line so a bad subscriber cannot stop the relay.
func (r *Relay) handle(line []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("progress relay panicked",
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()

	for _, text := range Extract(line) {
		r.relayed.Add(1)
		r.logger.Info("progress", "message", text)
		if r.publisher != nil {
			r.publisher.Publish(event.NewTaskProgressEvent(r.taskID, text))
		}
	}
}
