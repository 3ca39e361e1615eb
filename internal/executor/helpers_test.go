package executor

import (
	"context"
	"sync"
)

type fakeCompressor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCompressor) Compress(_ context.Context, text string, _ float64, _ string) string {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return "SUMMARY(" + text + ")"
}
