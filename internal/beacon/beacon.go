// Package beacon is the periodic transmit loop (C6): start/stop plus a
// self-rescheduling Tick that fires one radio.Backend.Transmit per
// interval, never overlapping because the next tick is only scheduled
// once the previous transmit call returns. Built on the same
// internal/actor.Mailbox shape as the radio drivers, grounded on
// internal/node/node.go's timer-driven tick handling.
package beacon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/actor"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

const (
	defaultMessage    = "BEACON"
	defaultIntervalMs = 5000
)

// Options is the optional subset of Start's parameters; zero values
// fall back to the previous setting or, the first time, to the spec
// defaults.
type Options struct {
	Message    []byte
	IntervalMs int
}

type Driver struct {
	mbox    *actor.Mailbox
	cancel  context.CancelFunc
	backend radio.Backend
	log     *zap.Logger

	running    bool
	message    []byte
	intervalMs int
	txCount    int
	failCount  int
	timer      *time.Timer
}

func New(backend radio.Backend, log *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		mbox:    actor.NewMailbox(16),
		cancel:  cancel,
		backend: backend,
		log:     log,
	}
	go d.mbox.Run(ctx)
	return d
}

// Start arms the beacon. Returns AlreadyRunning if already started.
func (d *Driver) Start(ctx context.Context, opts Options) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.running {
			return struct{}{}, radio.AlreadyRunning("beacon_start")
		}
		switch {
		case len(opts.Message) > 0:
			d.message = opts.Message
		case d.message == nil:
			d.message = []byte(defaultMessage)
		}
		switch {
		case opts.IntervalMs > 0:
			d.intervalMs = opts.IntervalMs
		case d.intervalMs == 0:
			d.intervalMs = defaultIntervalMs
		}
		d.running = true
		d.mbox.Cast(d.tick)
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Stop(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.running = false
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Running() bool {
	v, _ := actor.Call(context.Background(), d.mbox, func() bool { return d.running })
	return v
}

func (d *Driver) TxCount() int {
	v, _ := actor.Call(context.Background(), d.mbox, func() int { return d.txCount })
	return v
}

func (d *Driver) FailCount() int {
	v, _ := actor.Call(context.Background(), d.mbox, func() int { return d.failCount })
	return v
}

// tick runs on the beacon's own actor loop. The blocking Transmit call
// only holds up this actor's own schedule, matching the same
// "no other work while a transmit is in flight" rationale the SX1276
// driver uses for its own TX polling.
func (d *Driver) tick() {
	if !d.running {
		return
	}
	msg := d.message
	d.timer = nil
	d.txCount++ // counted on submission regardless of outcome (spec.md §9 open question)

	outcome, err := d.backend.Transmit(context.Background(), msg)
	if err != nil || outcome != radio.Ok {
		d.failCount++
		if d.log != nil {
			d.log.Warn("beacon transmit did not complete", zap.Error(err), zap.Stringer("outcome", outcome))
		}
	}

	if !d.running {
		return
	}
	interval := time.Duration(d.intervalMs) * time.Millisecond
	d.timer = time.AfterFunc(interval, func() { d.mbox.Cast(d.tick) })
}
