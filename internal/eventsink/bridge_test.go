package eventsink

import (
	"context"
	"testing"
	"time"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

type fakeBackend struct {
	subs map[radio.SubscriberID]chan<- radio.Event
}

func newFakeBackend() *fakeBackend { return &fakeBackend{subs: make(map[radio.SubscriberID]chan<- radio.Event)} }

func (f *fakeBackend) Connect(ctx context.Context) error                         { return nil }
func (f *fakeBackend) Disconnect(ctx context.Context) error                      { return nil }
func (f *fakeBackend) Connected() bool                                           { return true }
func (f *fakeBackend) Transmit(ctx context.Context, p []byte) (radio.Outcome, error) { return radio.Ok, nil }
func (f *fakeBackend) ReceiveMode(ctx context.Context, timeoutMs int) error       { return nil }
func (f *fakeBackend) Subscribe(id radio.SubscriberID, ch chan<- radio.Event)     { f.subs[id] = ch }
func (f *fakeBackend) Unsubscribe(id radio.SubscriberID)                         { delete(f.subs, id) }
func (f *fakeBackend) Settings() radio.Config                                    { return radio.Config{} }

func (f *fakeBackend) emit(ev radio.Event) {
	for _, ch := range f.subs {
		ch <- ev
	}
}

func TestBridge_ForwardsEventsToSink(t *testing.T) {
	backend := newFakeBackend()
	sink := NewMemorySink()
	stop := Bridge(backend, sink, "eventsink")
	defer stop()

	backend.emit(radio.Event{Kind: radio.EventTx, Payload: []byte("hi")})
	backend.emit(radio.Event{Kind: radio.EventRx, Frame: &radio.RxFrame{Bytes: []byte("ho")}})
	backend.emit(radio.Event{Kind: radio.EventOther, Tag: "tx_ok"})

	deadline := time.After(time.Second)
	for len(sink.Records()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for records, got %d", len(sink.Records()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	records := sink.Records()
	if records[0].Kind != "tx" || records[1].Kind != "rx" || records[2].Kind != "event" {
		t.Fatalf("unexpected record order: %+v", records)
	}
}
