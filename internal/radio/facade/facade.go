// Package facade is the backend-agnostic entry point (C5) a caller
// configures once: it selects the SX1276 or RN2903 backend per
// config/LORA_BACKEND, and otherwise just forwards the radio.Backend
// capability set. Grounded on the teacher's internal/hal.go
// HAL-interface-plus-global-accessor shape for "one facade, swappable
// concrete backend."
package facade

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
	"github.com/blasphemetheus/d2d-responder/internal/radio/modem"
	"github.com/blasphemetheus/d2d-responder/internal/radio/sx1276"
)

// Kind names the backend a given deployment uses, set from config and
// overridable by the LORA_BACKEND environment variable (spec.md §6,
// SPEC_FULL.md §10.3).
type Kind string

const (
	SX1276 Kind = "sx1276"
	Modem  Kind = "modem"
)

// Config carries both backends' wiring; only the fields for the
// selected Kind are read.
type Config struct {
	Kind      Kind
	FreqHz    uint32
	SX1276    sx1276.Config
	Modem     modem.Config
}

// configurable is the subset of setters both backends expose, used by
// Configure to apply a radio.Config without the facade needing to know
// which concrete backend it holds.
type configurable interface {
	SetFrequency(ctx context.Context, hz uint32) error
	SetSpreadingFactor(ctx context.Context, sf int) error
	SetBandwidth(ctx context.Context, hz int) error
	SetTxPower(ctx context.Context, dbm int) error
}

// Radio wraps whichever backend was selected and satisfies
// radio.Backend by delegation.
type Radio struct {
	kind    Kind
	backend radio.Backend
	cfg     configurable
	freqHz  uint32
}

// New constructs the configured backend. It does not connect; callers
// call Connect explicitly so startup failures surface at a predictable
// point in cmd/responder's bootstrap sequence.
func New(h hal.HAL, cfg Config, log *zap.Logger) (*Radio, error) {
	freqHz := cfg.FreqHz
	if freqHz == 0 {
		freqHz = 915_000_000
	}
	switch cfg.Kind {
	case SX1276:
		d := sx1276.New(h, cfg.SX1276, log)
		return &Radio{kind: SX1276, backend: d, cfg: d, freqHz: freqHz}, nil
	case Modem:
		d := modem.New(h, cfg.Modem, log)
		return &Radio{kind: Modem, backend: d, cfg: d, freqHz: freqHz}, nil
	default:
		return nil, fmt.Errorf("facade: unknown backend kind %q", cfg.Kind)
	}
}

func (r *Radio) Kind() Kind { return r.kind }

func (r *Radio) Connect(ctx context.Context) error {
	if r.kind == SX1276 {
		return r.backend.(*sx1276.Driver).Begin(ctx, r.freqHz)
	}
	if err := r.backend.Connect(ctx); err != nil {
		return err
	}
	return r.cfg.SetFrequency(ctx, r.freqHz)
}

func (r *Radio) Disconnect(ctx context.Context) error           { return r.backend.Disconnect(ctx) }
func (r *Radio) Connected() bool                                { return r.backend.Connected() }
func (r *Radio) Transmit(ctx context.Context, p []byte) (radio.Outcome, error) {
	return r.backend.Transmit(ctx, p)
}
func (r *Radio) ReceiveMode(ctx context.Context, timeoutMs int) error {
	return r.backend.ReceiveMode(ctx, timeoutMs)
}
func (r *Radio) Subscribe(id radio.SubscriberID, ch chan<- radio.Event) { r.backend.Subscribe(id, ch) }
func (r *Radio) Unsubscribe(id radio.SubscriberID)                     { r.backend.Unsubscribe(id) }
func (r *Radio) Settings() radio.Config                                { return r.backend.Settings() }

// Configure applies the common parameter subset both backends support.
// Fields the active backend can't express (sync word on the modem
// backend, for instance) are silently skipped rather than erroring,
// since the modem firmware has no equivalent AT command.
func (r *Radio) Configure(ctx context.Context, cfg radio.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := r.cfg.SetFrequency(ctx, cfg.FrequencyHz); err != nil {
		return err
	}
	if err := r.cfg.SetSpreadingFactor(ctx, cfg.SpreadingFactor); err != nil {
		return err
	}
	if err := r.cfg.SetBandwidth(ctx, cfg.BandwidthHz); err != nil {
		return err
	}
	if err := r.cfg.SetTxPower(ctx, cfg.TxPowerDbm); err != nil {
		return err
	}
	if r.kind == SX1276 {
		d := r.backend.(*sx1276.Driver)
		if err := d.SetCodingRate(ctx, cfg.CodingRate); err != nil {
			return err
		}
		if err := d.SetSyncWord(ctx, cfg.SyncWord); err != nil {
			return err
		}
	}
	return nil
}

var _ radio.Backend = (*Radio)(nil)
