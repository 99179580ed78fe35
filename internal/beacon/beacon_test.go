package beacon

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// fakeBackend is a minimal radio.Backend recording every Transmit call,
// used in place of a real driver or facade.Radio so the beacon's own
// scheduling can be tested in isolation.
type fakeBackend struct {
	mu    sync.Mutex
	sent  [][]byte
	sig   chan struct{}
}

func newFakeBackend() *fakeBackend { return &fakeBackend{sig: make(chan struct{}, 64)} }

func (f *fakeBackend) Connect(ctx context.Context) error    { return nil }
func (f *fakeBackend) Disconnect(ctx context.Context) error { return nil }
func (f *fakeBackend) Connected() bool                      { return true }
func (f *fakeBackend) Transmit(ctx context.Context, p []byte) (radio.Outcome, error) {
	f.mu.Lock()
	cp := append([]byte(nil), p...)
	f.sent = append(f.sent, cp)
	f.mu.Unlock()
	f.sig <- struct{}{}
	return radio.Ok, nil
}
func (f *fakeBackend) ReceiveMode(ctx context.Context, timeoutMs int) error { return nil }
func (f *fakeBackend) Subscribe(id radio.SubscriberID, ch chan<- radio.Event) {}
func (f *fakeBackend) Unsubscribe(id radio.SubscriberID)                      {}
func (f *fakeBackend) Settings() radio.Config                                 { return radio.Config{} }

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeBackend) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// S6: beacon started with message="B", interval=200ms observes 6
// transmit calls (immediate + 5 ticks) within 1050ms.
func TestStart_S6_SixTicksInWindow(t *testing.T) {
	backend := newFakeBackend()
	d := New(backend, zap.NewNop())
	ctx := context.Background()

	if err := d.Start(ctx, Options{Message: []byte("B"), IntervalMs: 200}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(1050 * time.Millisecond)
	count := 0
loop:
	for {
		select {
		case <-backend.sig:
			count++
			if count == 6 {
				break loop
			}
		case <-deadline:
			break loop
		}
	}

	if count != 6 {
		t.Fatalf("expected 6 transmits within 1050ms, got %d", count)
	}
	if string(backend.lastSent()) != "B" {
		t.Fatalf("expected payload 'B', got %q", backend.lastSent())
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	backend := newFakeBackend()
	d := New(backend, zap.NewNop())
	ctx := context.Background()

	if err := d.Start(ctx, Options{Message: []byte("B"), IntervalMs: 1000}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := d.Start(ctx, Options{})
	if err == nil {
		t.Fatal("expected AlreadyRunning")
	}
	radioErr, ok := err.(*radio.Error)
	if !ok || radioErr.Kind != radio.KindAlreadyRun {
		t.Fatalf("expected AlreadyRunning, got %v", err)
	}
	d.Stop(ctx)
}

func TestStop_CancelsPendingTick(t *testing.T) {
	backend := newFakeBackend()
	d := New(backend, zap.NewNop())
	ctx := context.Background()

	if err := d.Start(ctx, Options{Message: []byte("B"), IntervalMs: 5000}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-backend.sig // the immediate tick

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-backend.sig:
		t.Fatal("expected no further transmits after Stop")
	case <-time.After(200 * time.Millisecond):
	}
}
