package progress

import (
	"sync"
	"testing"

	"github.com/Iron-Ham/paragent/internal/event"
)

type recorder struct {
	mu     sync.Mutex
	events []event.TaskProgressEvent
}

func (r *recorder) Publish(e event.Event) {
	if p, ok := e.(event.TaskProgressEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, p)
		r.mu.Unlock()
	}
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Message
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain line", "[PROGRESS] Read main.go", []string{"Read main.go"}},
		{"no marker", "just output", nil},
		{"json escaped", `{"type":"item.completed","item":{"text":"[PROGRESS] Ran tests\nmore"}}`, []string{"Ran tests"}},
		{"ends at quote", `{"content":"[PROGRESS] Created file"}`, []string{"Created file"}},
		{"multiple markers", `"[PROGRESS] one" "[PROGRESS] two"`, []string{"one", "two"}},
		{"empty marker", "[PROGRESS]   ", nil},
		{"trailing carriage return", "[PROGRESS] step one\r", []string{"step one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract([]byte(tt.line))
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Extract()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRelay_PublishesInOrder(t *testing.T) {
	rec := &recorder{}
	r := NewRelay("build", rec, nil)

	r.Offer([]byte("[PROGRESS] first"))
	r.Offer([]byte("noise"))
	r.Offer([]byte(`{"result":"[PROGRESS] second"}`))
	r.Close()

	got := rec.messages()
	want := []string{"first", "second"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("published = %q, want %q", got, want)
	}
	if r.Relayed() != 2 {
		t.Errorf("Relayed() = %d, want 2", r.Relayed())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if e.TaskID != "build" {
			t.Errorf("TaskID = %q, want build", e.TaskID)
		}
	}
}

func TestRelay_OfferCopiesLine(t *testing.T) {
	rec := &recorder{}
	r := NewRelay("t", rec, nil)

	buf := []byte("[PROGRESS] original")
	r.Offer(buf)
	copy(buf, "XXXXXXXXXXXXXXXXXXX")
	r.Close()

	if got := rec.messages(); len(got) != 1 || got[0] != "original" {
		t.Errorf("published = %q, want [original]", got)
	}
}

func TestRelay_CloseIsIdempotent(t *testing.T) {
	r := NewRelay("t", nil, nil)
	r.Close()
	r.Close()

	// Offers after Close are ignored rather than panicking.
	r.Offer([]byte("[PROGRESS] late"))
	if r.Relayed() != 0 {
		t.Errorf("Relayed() = %d, want 0", r.Relayed())
	}
}

type blockingPublisher struct {
	release chan struct{}
	count   int
}

func (b *blockingPublisher) Publish(event.Event) {
	<-b.release
	b.count++
}

func TestRelay_DropsWhenFull(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	r := NewRelay("t", pub, nil)

	// The first line parks the goroutine inside Publish; the rest fill the
	// queue and then overflow.
	total := queueSize * 3
	for range total {
		r.Offer([]byte("[PROGRESS] step"))
	}
	close(pub.release)
	r.Close()

	if r.Dropped() == 0 {
		t.Error("Dropped() = 0, want lines dropped once the queue is full")
	}
	if got := r.Relayed() + r.Dropped(); got != int64(total) {
		t.Errorf("relayed + dropped = %d, want %d", got, total)
	}
}

type panickingPublisher struct{ calls int }

func (p *panickingPublisher) Publish(event.Event) {
	p.calls++
	panic("subscriber failure")
}

func TestRelay_RecoversFromPanics(t *testing.T) {
	pub := &panickingPublisher{}
	r := NewRelay("t", pub, nil)

	r.Offer([]byte("[PROGRESS] one"))
	r.Offer([]byte("[PROGRESS] two"))
	r.Close()

	if pub.calls != 2 {
		t.Errorf("Publish calls = %d, want 2", pub.calls)
	}
}

func TestRelay_ConcurrentOffers(t *testing.T) {
	rec := &recorder{}
	r := NewRelay("t", rec, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 5 {
				r.Offer([]byte("[PROGRESS] tick"))
			}
		})
	}
	wg.Wait()
	r.Close()

	if got := r.Relayed() + r.Dropped(); got != 40 {
		t.Errorf("relayed + dropped = %d, want 40", got)
	}
}
