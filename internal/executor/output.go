package executor

import (
	"bytes"
	"strings"
	"sync"

	"github.com/Iron-Ham/paragent/internal/util"
)

// maxLineBytes forces a flush of an unterminated line that keeps growing.
const maxLineBytes = 8 << 20

// lineWriter splits a byte stream into lines and hands each one, without its
// terminator, to fn. The slice passed to fn is only valid during the call.
type lineWriter struct {
	fn      func(line []byte)
	pending []byte
}

func newLineWriter(fn func(line []byte)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.pending = append(w.pending, p...)
			if len(w.pending) >= maxLineBytes {
				w.emit()
			}
			break
		}
		w.pending = append(w.pending, p[:i]...)
		w.emit()
		p = p[i+1:]
	}
	return n, nil
}

// Flush emits a trailing line that had no newline.
func (w *lineWriter) Flush() {
	if len(w.pending) > 0 {
		w.emit()
	}
}

func (w *lineWriter) emit() {
	w.fn(bytes.TrimSuffix(w.pending, []byte{'\r'}))
	w.pending = w.pending[:0]
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit <= 0 {
		t.truncated = t.truncated || len(p) > 0
		return len(p), nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return len(p), nil
}

// String returns the retained output without escape codes or surrounding
// whitespace. A leading "..." marks dropped output.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := strings.TrimSpace(util.StripANSI(strings.ToValidUTF8(string(t.buf), "")))
	if t.truncated && s != "" {
		return "..." + s
	}
	return s
}
