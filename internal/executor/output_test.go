package executor

import (
	"strings"
	"testing"
)

func TestLineWriter(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line []byte) {
		lines = append(lines, string(line))
	})

	for _, chunk := range []string{"fir", "st\nsec", "ond\r\n", "\nthird"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if len(lines) != 3 {
		t.Fatalf("lines before Flush = %q, want 3", lines)
	}
	w.Flush()
	w.Flush()

	want := []string{"first", "second", "", "third"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestTailBuffer(t *testing.T) {
	t.Run("keeps everything under the limit", func(t *testing.T) {
		b := newTailBuffer(64)
		_, _ = b.Write([]byte("  error: boom\n"))
		if got := b.String(); got != "error: boom" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("keeps the tail", func(t *testing.T) {
		b := newTailBuffer(5)
		_, _ = b.Write([]byte("abc"))
		_, _ = b.Write([]byte("defgh"))
		if got := b.String(); got != "...defgh" {
			t.Errorf("String() = %q, want ...defgh", got)
		}
	})

	t.Run("strips escape codes", func(t *testing.T) {
		b := newTailBuffer(64)
		_, _ = b.Write([]byte("\x1b[31mfatal\x1b[0m"))
		if got := b.String(); got != "fatal" {
			t.Errorf("String() = %q, want fatal", got)
		}
	})

	t.Run("zero limit discards", func(t *testing.T) {
		b := newTailBuffer(0)
		n, err := b.Write([]byte("ignored"))
		if n != 7 || err != nil {
			t.Errorf("Write() = %d, %v", n, err)
		}
		if got := b.String(); got != "" {
			t.Errorf("String() = %q, want empty", got)
		}
	})
}
