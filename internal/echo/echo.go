// Package echo is the receive-and-echo responder (C7): subscribe to the
// radio facade, arm continuous receive, and on every inbound frame wait
// echo_delay_ms before transmitting prefix||payload back, re-arming
// receive once the transmit resolves. Built on internal/actor.Mailbox;
// the Idle/Listening/Echoing/WaitingTxDone state machine and its
// turnaround timing are spec.md §4.6's, expressed the same
// timer-Cast-back-into-the-loop way the beacon schedules its own ticks.
package echo

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/actor"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

type State int

const (
	Idle State = iota
	Listening
	Echoing
	WaitingTxDone
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Echoing:
		return "echoing"
	case WaitingTxDone:
		return "waiting_tx_done"
	default:
		return "unknown"
	}
}

const (
	defaultPrefix      = "ECHO:"
	defaultDelayMs     = 150
	armRxInitialDelay  = 100 * time.Millisecond
	armRxRetryInterval = time.Second
)

type Options struct {
	Prefix  []byte
	DelayMs int
}

type Driver struct {
	mbox    *actor.Mailbox
	cancel  context.CancelFunc
	backend radio.Backend
	log     *zap.Logger
	id      radio.SubscriberID
	events  chan radio.Event

	running bool
	state   State
	prefix  []byte
	delayMs int
	rxCount int
	txCount int

	armTimer  *time.Timer
	echoTimer *time.Timer
}

func New(backend radio.Backend, log *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		mbox:    actor.NewMailbox(32),
		cancel:  cancel,
		backend: backend,
		log:     log,
		id:      "echo",
		events:  make(chan radio.Event, 16),
		state:   Idle,
	}
	go d.mbox.Run(ctx)
	go d.forward()
	return d
}

// forward relays every subscribed event onto the actor's own mailbox so
// handleEvent only ever runs serialized with the rest of this actor's
// state mutations (design note §9's "small reader task owns the
// handle, sends into the inbox", reused here for the subscription
// channel instead of a GPIO line).
func (d *Driver) forward() {
	for ev := range d.events {
		d.mbox.Cast(func() { d.handleEvent(ev) })
	}
}

func (d *Driver) Start(ctx context.Context, opts Options) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.running {
			return struct{}{}, radio.AlreadyRunning("echo_start")
		}
		switch {
		case len(opts.Prefix) > 0:
			d.prefix = opts.Prefix
		case d.prefix == nil:
			d.prefix = []byte(defaultPrefix)
		}
		switch {
		case opts.DelayMs > 0:
			d.delayMs = opts.DelayMs
		case d.delayMs == 0:
			d.delayMs = defaultDelayMs
		}
		d.backend.Subscribe(d.id, d.events)
		d.running = true
		d.state = Listening
		d.scheduleArmRx(armRxInitialDelay)
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Stop(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.armTimer != nil {
			d.armTimer.Stop()
			d.armTimer = nil
		}
		if d.echoTimer != nil {
			d.echoTimer.Stop()
			d.echoTimer = nil
		}
		d.backend.Unsubscribe(d.id)
		d.running = false
		d.state = Idle
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Running() bool {
	v, _ := actor.Call(context.Background(), d.mbox, func() bool { return d.running })
	return v
}

func (d *Driver) State() State {
	v, _ := actor.Call(context.Background(), d.mbox, func() State { return d.state })
	return v
}

func (d *Driver) RxCount() int {
	v, _ := actor.Call(context.Background(), d.mbox, func() int { return d.rxCount })
	return v
}

func (d *Driver) TxCount() int {
	v, _ := actor.Call(context.Background(), d.mbox, func() int { return d.txCount })
	return v
}

// scheduleArmRx runs on the actor loop; already-scheduled timers that
// fire after Stop observe running==false in armRx and no-op, per
// spec.md §4.6's "do not drain already-scheduled timers."
func (d *Driver) scheduleArmRx(delay time.Duration) {
	d.armTimer = time.AfterFunc(delay, func() { d.mbox.Cast(d.armRx) })
}

func (d *Driver) armRx() {
	if !d.running {
		return
	}
	if err := d.backend.ReceiveMode(context.Background(), 0); err != nil {
		if d.log != nil {
			d.log.Warn("echo: arm rx failed, retrying", zap.Error(err))
		}
		d.scheduleArmRx(armRxRetryInterval)
		return
	}
	d.state = Listening
}

// handleEvent only reacts to inbound frames. TX completion is observed
// synchronously from the blocking Transmit call in doEcho rather than
// from this subscription feed, since the backend's Transmit already
// resolves to a final outcome before returning — the tx_ok/tx_error
// events on this same subscription are for other listeners (the event
// sink), not a second completion signal this responder needs.
func (d *Driver) handleEvent(ev radio.Event) {
	if !d.running || ev.Kind != radio.EventRx || d.state != Listening {
		return
	}
	d.rxCount++
	payload := make([]byte, 0, len(d.prefix)+len(ev.Frame.Bytes))
	payload = append(payload, d.prefix...)
	payload = append(payload, ev.Frame.Bytes...)

	d.state = Echoing
	delay := time.Duration(d.delayMs) * time.Millisecond
	d.echoTimer = time.AfterFunc(delay, func() { d.mbox.Cast(func() { d.doEcho(payload) }) })
}

func (d *Driver) doEcho(payload []byte) {
	if !d.running || d.state != Echoing {
		return
	}
	d.state = WaitingTxDone
	d.txCount++ // counted on submission, matching the beacon's convention

	_, err := d.backend.Transmit(context.Background(), payload)
	if err != nil && d.log != nil {
		d.log.Warn("echo: transmit failed", zap.Error(err))
	}

	if !d.running {
		return
	}
	d.scheduleArmRx(0)
}
