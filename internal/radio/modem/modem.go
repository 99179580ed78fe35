// Package modem is the RN2903 AT-modem backend (C4): a line-framed
// request/response transport over UART plus an async notification
// parser, satisfying the same radio.Backend capability set as the
// SX1276 driver (design note §9, "dual backend as a capability, not
// inheritance"). The reader-goroutine-feeds-a-channel shape is
// grounded on the teacher's pkg/nodes/network/serial_in.go; the
// actor-loop serialization is the same internal/actor.Mailbox the
// SX1276 driver uses.
package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/actor"
	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

const (
	baudRate   = 57600
	lineSep    = "\r\n"
	txTimeout  = 5 * time.Second
	wakeAttempts = 3
)

// Config wires the modem to its serial port.
type Config struct {
	Port string
}

// Driver is the RN2903 actor.
type Driver struct {
	mbox   *actor.Mailbox
	cancel context.CancelFunc
	h      hal.HAL
	cfg    Config
	log    *zap.Logger

	connected bool
	version   string
	settings  radio.Config

	pendingReply chan string // non-nil while a command is in flight
	txWait       chan string // non-nil while Transmit awaits radio_tx_ok/radio_err

	subscribers map[radio.SubscriberID]chan<- radio.Event
	readerDone  chan struct{}
}

func New(h hal.HAL, cfg Config, log *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		mbox:        actor.NewMailbox(32),
		cancel:      cancel,
		h:           h,
		cfg:         cfg,
		log:         log,
		settings:    radio.DefaultConfig(915_000_000),
		subscribers: make(map[radio.SubscriberID]chan<- radio.Event),
	}
	go d.mbox.Run(ctx)
	return d
}

func (d *Driver) Connected() bool {
	v, _ := actor.Call(context.Background(), d.mbox, func() bool { return d.connected })
	return v
}

func (d *Driver) Settings() radio.Config {
	v, _ := actor.Call(context.Background(), d.mbox, func() radio.Config { return d.settings })
	return v
}

func (d *Driver) Subscribe(id radio.SubscriberID, ch chan<- radio.Event) {
	d.mbox.Cast(func() { d.subscribers[id] = ch })
}

func (d *Driver) Unsubscribe(id radio.SubscriberID) {
	d.mbox.Cast(func() { delete(d.subscribers, id) })
}

// Connect opens the serial port, starts the line reader, and runs the
// wake-up handshake of spec.md §4.3.
func (d *Driver) Connect(ctx context.Context) error {
	if err := d.h.Serial().Open(d.cfg.Port, baudRate); err != nil {
		return radio.IoError("connect", err)
	}

	readerDone := make(chan struct{})
	go d.readLoop(readerDone)

	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.readerDone = readerDone
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	return d.wakeUp(ctx)
}

// wakeUp flushes three empty lines, then polls `sys get ver` up to
// wakeAttempts times, tolerating a transient invalid_param on the first
// try, until a line beginning with "RN" is observed.
func (d *Driver) wakeUp(ctx context.Context) error {
	for i := 0; i < wakeAttempts; i++ {
		d.writeRaw(lineSep + lineSep + lineSep)
		line, err := d.sendCommand(ctx, "sys get ver", 2*time.Second)
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if strings.HasPrefix(line, "invalid_param") {
			time.Sleep(150 * time.Millisecond)
			continue
		}
		if strings.HasPrefix(line, "RN") {
			actor.Call(ctx, d.mbox, func() struct{} {
				d.version = line
				d.connected = true
				return struct{}{}
			})
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return radio.IoError("connect", fmt.Errorf("no RN version response after %d attempts", wakeAttempts))
}

func (d *Driver) Disconnect(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.h.Serial().Close()
		d.connected = false
		return struct{}{}, nil
	})
	d.cancel()
	return err
}

// Transmit sends `radio tx <hex>` and waits for the async
// radio_tx_ok/radio_err notification, per spec.md §4.3's high-level
// helper mapping.
func (d *Driver) Transmit(ctx context.Context, payload []byte) (radio.Outcome, error) {
	if len(payload) < 1 || len(payload) > 255 {
		return radio.TxErr, radio.InvalidParam("transmit", "payload must be 1..255 bytes")
	}
	if !d.Connected() {
		return radio.TxErr, radio.NotConnected("transmit")
	}

	wait := make(chan string, 1)
	actor.Call(ctx, d.mbox, func() struct{} {
		d.txWait = wait
		return struct{}{}
	})
	d.mbox.Cast(func() { d.emit(radio.Event{Kind: radio.EventTx, Payload: payload}) })

	reply, err := d.sendCommand(ctx, "radio tx "+radio.EncodeHex(payload), 2*time.Second)
	if err != nil || reply != "ok" {
		d.clearTxWait()
		return radio.TxErr, nil
	}

	select {
	case result := <-wait:
		d.clearTxWait()
		if result == "radio_tx_ok" {
			return radio.Ok, nil
		}
		return radio.TxErr, nil
	case <-time.After(txTimeout):
		d.clearTxWait()
		return radio.TxTimeout, nil
	case <-ctx.Done():
		d.clearTxWait()
		return radio.TxErr, ctx.Err()
	}
}

func (d *Driver) clearTxWait() {
	actor.Call(context.Background(), d.mbox, func() struct{} {
		d.txWait = nil
		return struct{}{}
	})
}

// ReceiveMode maps to `radio rx <ms>`; 0 requests continuous reception.
func (d *Driver) ReceiveMode(ctx context.Context, timeoutMs int) error {
	reply, err := d.sendCommand(ctx, fmt.Sprintf("radio rx %d", timeoutMs), 2*time.Second)
	if err != nil {
		return err
	}
	if reply != "ok" {
		return radio.InvalidParam("receive_mode", reply)
	}
	return nil
}

// --- high-level setters mapping to AT commands ---

func (d *Driver) SetFrequency(ctx context.Context, hz uint32) error {
	_, err := d.sendCommand(ctx, fmt.Sprintf("radio set freq %d", hz), time.Second)
	if err == nil {
		actor.Call(ctx, d.mbox, func() struct{} { d.settings.FrequencyHz = hz; return struct{}{} })
	}
	return err
}

func (d *Driver) SetSpreadingFactor(ctx context.Context, sf int) error {
	_, err := d.sendCommand(ctx, fmt.Sprintf("radio set sf sf%d", sf), time.Second)
	if err == nil {
		actor.Call(ctx, d.mbox, func() struct{} { d.settings.SpreadingFactor = sf; return struct{}{} })
	}
	return err
}

func (d *Driver) SetBandwidth(ctx context.Context, hz int) error {
	khz := hz / 1000
	_, err := d.sendCommand(ctx, fmt.Sprintf("radio set bw %d", khz), time.Second)
	if err == nil {
		actor.Call(ctx, d.mbox, func() struct{} { d.settings.BandwidthHz = hz; return struct{}{} })
	}
	return err
}

func (d *Driver) SetTxPower(ctx context.Context, dbm int) error {
	_, err := d.sendCommand(ctx, fmt.Sprintf("radio set pwr %d", dbm), time.Second)
	if err == nil {
		actor.Call(ctx, d.mbox, func() struct{} { d.settings.TxPowerDbm = dbm; return struct{}{} })
	}
	return err
}

func (d *Driver) MacPause(ctx context.Context) error {
	_, err := d.sendCommand(ctx, "mac pause", time.Second)
	return err
}

// --- transport ---

// sendCommand enforces "at most one in-flight command" (spec.md §4.3):
// it installs a reply channel on the actor, writes the line, and waits
// for the reader loop to deliver the next complete line.
func (d *Driver) sendCommand(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	reply := make(chan string, 1)
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.pendingReply != nil {
			return struct{}{}, radio.ResourceBusy("send_command")
		}
		d.pendingReply = reply
		return struct{}{}, nil
	})
	if err != nil {
		return "", err
	}

	d.writeRaw(cmd + lineSep)

	select {
	case line := <-reply:
		return line, nil
	case <-time.After(timeout):
		actor.Call(context.Background(), d.mbox, func() struct{} { d.pendingReply = nil; return struct{}{} })
		return "", radio.Timeout("send_command")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Driver) writeRaw(s string) {
	if _, err := d.h.Serial().Write([]byte(s)); err != nil && d.log != nil {
		d.log.Warn("modem write failed", zap.Error(err))
	}
}

// readLoop owns the serial handle and turns the byte stream into
// complete lines, delivering each one onto the actor's mailbox — the
// same "small reader task feeds the inbox" shape the SX1276 driver
// uses for DIO0, applied here to line framing instead of GPIO edges.
func (d *Driver) readLoop(done chan struct{}) {
	defer close(done)
	var buf []byte
	chunk := make([]byte, 256)
	for {
		n, err := d.h.Serial().Read(chunk)
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		buf = append(buf, chunk[:n]...)
		for {
			idx := strings.Index(string(buf), lineSep)
			if idx < 0 {
				break
			}
			line := string(buf[:idx])
			buf = buf[idx+len(lineSep):]
			if line == "" {
				continue
			}
			d.mbox.Cast(func() { d.handleLine(line) })
		}
	}
}

// handleLine implements spec.md §4.3's "async notifications received
// while a command is pending still deliver to that command's waiter
// AND are parsed for subscriber fan-out."
func (d *Driver) handleLine(line string) {
	if d.pendingReply != nil {
		d.pendingReply <- line
		d.pendingReply = nil
	}

	switch {
	case strings.HasPrefix(line, "radio_rx "):
		hexStr := strings.TrimPrefix(line, "radio_rx ")
		bytes, err := radio.DecodeHex("radio_rx", hexStr)
		if err != nil {
			if d.log != nil {
				d.log.Warn("modem: bad hex in radio_rx", zap.Error(err))
			}
			return
		}
		d.emit(radio.Event{Kind: radio.EventRx, Frame: &radio.RxFrame{Bytes: bytes}})
	case line == "radio_tx_ok":
		if d.txWait != nil {
			d.txWait <- "radio_tx_ok"
		}
		d.emit(radio.Event{Kind: radio.EventOther, Tag: "tx_ok"})
	case line == "radio_err":
		if d.txWait != nil {
			d.txWait <- "radio_err"
		}
		d.emit(radio.Event{Kind: radio.EventOther, Tag: "tx_error"})
	}
}

func (d *Driver) emit(ev radio.Event) {
	for _, ch := range d.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

var _ = strconv.Itoa // reserved for future numeric AT-param parsing
