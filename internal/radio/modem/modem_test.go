package modem

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/hal/fakehal"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

func newTestDriver(t *testing.T) (*Driver, *fakehal.FakeHAL) {
	t.Helper()
	fh := fakehal.New()
	d := New(fh, Config{Port: "/dev/ttyUSB0"}, zap.NewNop())
	return d, fh
}

// connect runs the wake-up handshake against a fake serial port that
// immediately answers "sys get ver" with an RN2903 banner line.
func connect(t *testing.T, d *Driver, fh *fakehal.FakeHAL) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Connect(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Connect: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for Connect")
		case <-time.After(10 * time.Millisecond):
			for _, w := range fh.SerialFake().Writes() {
				if strings.Contains(string(w), "sys get ver") {
					fh.SerialFake().QueueLine("RN2903 1.0.3 Jan 01 2020 12:00:00\r\n")
				}
			}
		}
	}
}

func TestConnect_WakeUpHandshake(t *testing.T) {
	d, fh := newTestDriver(t)
	connect(t, d, fh)

	if !d.Connected() {
		t.Fatal("expected connected")
	}
}

func TestTransmit_AsyncTxOk(t *testing.T) {
	d, fh := newTestDriver(t)
	connect(t, d, fh)

	result := make(chan radio.Outcome, 1)
	go func() {
		outcome, err := d.Transmit(context.Background(), []byte("hi"))
		if err != nil {
			t.Errorf("Transmit: %v", err)
		}
		result <- outcome
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case outcome := <-result:
			if outcome != radio.Ok {
				t.Fatalf("expected Ok, got %v", outcome)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for transmit")
		case <-time.After(10 * time.Millisecond):
			for _, w := range fh.SerialFake().Writes() {
				if strings.HasPrefix(string(w), "radio tx ") {
					fh.SerialFake().QueueLine("ok\r\n")
					fh.SerialFake().QueueLine("radio_tx_ok\r\n")
				}
			}
		}
	}
}

func TestHandleLine_RadioRxFanOut(t *testing.T) {
	d, fh := newTestDriver(t)
	connect(t, d, fh)

	events := make(chan radio.Event, 4)
	d.Subscribe("test", events)

	fh.SerialFake().QueueLine("radio_rx 4849\r\n")

	select {
	case ev := <-events:
		if ev.Kind != radio.EventRx {
			t.Fatalf("expected rx event, got %v", ev.Kind)
		}
		if string(ev.Frame.Bytes) != "HI" {
			t.Fatalf("expected bytes 'HI', got %v", ev.Frame.Bytes)
		}
		if ev.Frame.RssiDbm != nil {
			t.Fatal("expected nil rssi from the uart backend")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rx event")
	}
}
