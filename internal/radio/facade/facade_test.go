package facade

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/hal/fakehal"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
	"github.com/blasphemetheus/d2d-responder/internal/radio/sx1276"
)

func TestNew_UnknownKind(t *testing.T) {
	fh := fakehal.New()
	_, err := New(fh, Config{Kind: "bogus"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected an error for an unknown backend kind")
	}
}

func TestSX1276_ConnectUsesConfiguredFrequency(t *testing.T) {
	fh := fakehal.New()
	r, err := New(fh, Config{
		Kind:   SX1276,
		FreqHz: 868_000_000,
		SX1276: sx1276.Config{SPIBus: 0, SPIDevice: 0, SpeedHz: 8_000_000, ResetPin: 17, CSPin: 25, DIO0Pin: 4},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !r.Connected() {
		t.Fatal("expected connected")
	}
	if got := r.Settings().FrequencyHz; got != 868_000_000 {
		t.Fatalf("expected frequency 868000000, got %d", got)
	}
}

func TestConfigure_RejectsInvalidConfig(t *testing.T) {
	fh := fakehal.New()
	r, err := New(fh, Config{
		Kind:   SX1276,
		FreqHz: 915_000_000,
		SX1276: sx1276.Config{SPIBus: 0, SPIDevice: 0, SpeedHz: 8_000_000, ResetPin: 17, CSPin: 25, DIO0Pin: 4},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	bad := radio.DefaultConfig(915_000_000)
	bad.SpreadingFactor = 6
	bad.ImplicitHeader = false

	if err := r.Configure(context.Background(), bad); err == nil {
		t.Fatal("expected SF6-without-implicit-header to be rejected")
	}
}
