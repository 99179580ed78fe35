// Package sx1276 is the half-duplex SX1276 LoRa transceiver driver
// (C1-C3): byte-level register I/O over a manually chip-selected SPI
// bus, GPIO line control for reset/CS/DIO0, the init sequence, the
// parameter setters, transmit/receive, and DIO0 interrupt dispatch.
// Grounded primarily on the teacher's pkg/nodes/gpio/lora_sx1276.go
// (register map, init sequence, bit-packing formulas carry over
// bit-exact) restructured around a persistent actor loop instead of a
// per-call executor, following internal/node.Node's process() shape.
package sx1276

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/actor"
	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// Config wires the driver to the GPIO lines and SPI bus it owns
// exclusively for its lifetime (spec.md §3 "Ownership").
type Config struct {
	SPIBus    int
	SPIDevice int
	SpeedHz   int
	ResetPin  int
	CSPin     int
	DIO0Pin   int
}

const txTimeout = 5 * time.Second
const txPollInterval = 10 * time.Millisecond

// Driver is the SX1276 actor. All state below is touched only from
// within the mailbox loop; public methods cross that boundary via
// actor.Call/actor.Cast, which is what makes the CS-low/transfer/CS-high
// sequencing and mode transitions race-free without locks (spec.md §5).
type Driver struct {
	mbox   *actor.Mailbox
	cancel context.CancelFunc
	h      hal.HAL
	cfg    Config
	log    *zap.Logger

	connected bool
	mode      radio.Mode
	rxArmed   bool
	settings  radio.Config
	version   byte

	watchCancel func()
	subscribers map[radio.SubscriberID]chan<- radio.Event
}

func New(h hal.HAL, cfg Config, log *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		mbox:        actor.NewMailbox(32),
		cancel:      cancel,
		h:           h,
		cfg:         cfg,
		log:         log,
		subscribers: make(map[radio.SubscriberID]chan<- radio.Event),
	}
	go d.mbox.Run(ctx)
	return d
}

// --- public capability surface (radio.Backend) ---

func (d *Driver) Connected() bool {
	v, _ := actor.Call(context.Background(), d.mbox, func() bool { return d.connected })
	return v
}

// Mode reports the driver's current radio mode, used by the status API
// and by tests asserting the Standby-before/after invariant.
func (d *Driver) Mode(ctx context.Context) radio.Mode {
	v, _ := actor.Call(ctx, d.mbox, func() radio.Mode { return d.mode })
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

// Connect is an alias for Begin using the driver's already-configured
// frequency, satisfying the radio.Backend capability set; real setup
// happens in Begin which callers invoke directly with a frequency.
func (d *Driver) Connect(ctx context.Context) error {
	return d.Begin(ctx, d.settings.FrequencyHz)
}

func (d *Driver) Disconnect(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if d.watchCancel != nil {
			d.watchCancel()
			d.watchCancel = nil
		}
		d.h.SPI().Close()
		d.h.GPIO().Close()
		d.connected = false
		d.rxArmed = false
		d.mode = radio.Sleep
		return struct{}{}, nil
	})
	return err
}

// Begin runs the init sequence of spec.md §4.2.
func (d *Driver) Begin(ctx context.Context, freqHz uint32) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if err := d.begin(freqHz); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetFrequency(ctx context.Context, freqHz uint32) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.toStandby()
		d.writeFrequency(freqHz)
		d.settings.FrequencyHz = freqHz
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetSpreadingFactor(ctx context.Context, sf int) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		cfg := d.settings
		cfg.SpreadingFactor = sf
		if sf == 6 {
			cfg.ImplicitHeader = true
		}
		if err := cfg.Validate(); err != nil {
			return struct{}{}, err
		}
		d.toStandby()
		d.applySpreadingFactor(sf)
		d.settings = cfg
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetBandwidth(ctx context.Context, bwHz int) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		idx := bandwidthIndex(bwHz)
		if idx < 0 {
			return struct{}{}, radio.InvalidParam("set_bandwidth", "unsupported bandwidth")
		}
		d.toStandby()
		d.applyBandwidth(idx)
		d.settings.BandwidthHz = bwHz
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetCodingRate(ctx context.Context, cr int) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if cr < 5 || cr > 8 {
			return struct{}{}, radio.InvalidParam("set_coding_rate", "coding rate must be 5..8")
		}
		d.toStandby()
		d.applyCodingRate(cr)
		d.settings.CodingRate = cr
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetTxPower(ctx context.Context, dbm int) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if dbm < 2 || dbm > 20 {
			return struct{}{}, radio.InvalidParam("set_tx_power", "tx power must be 2..20 dBm")
		}
		d.toStandby()
		d.applyTxPower(dbm)
		d.settings.TxPowerDbm = dbm
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) SetSyncWord(ctx context.Context, sw byte) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.toStandby()
		d.writeRegister(regSyncWord, sw)
		d.settings.SyncWord = sw
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Standby(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.toStandby()
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) Sleep(ctx context.Context) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		d.setMode(modeSleep)
		d.mode = radio.Sleep
		return struct{}{}, nil
	})
	return err
}

func (d *Driver) GetVersion(ctx context.Context) (byte, error) {
	return actor.CallErr(ctx, d.mbox, func() (byte, error) {
		if !d.connected {
			return 0, radio.NotConnected("get_version")
		}
		return d.version, nil
	})
}

func (d *Driver) GetRSSI(ctx context.Context) (int, error) {
	return actor.CallErr(ctx, d.mbox, func() (int, error) {
		if !d.connected {
			return 0, radio.NotConnected("get_rssi")
		}
		raw := d.readRegister(regPktRssiValue)
		return int(raw) - 157, nil
	})
}

// Transmit is the blocking send of spec.md §4.2. It polls the IRQ
// register from inside the actor loop rather than waiting on a DIO0
// message: design note §9 explicitly allows this ("the driver actor
// has no other work while a TX is in flight"), and it sidesteps the
// reentrancy otherwise needed to have the loop service its own inbox
// while a Call closure is still running.
func (d *Driver) Transmit(ctx context.Context, payload []byte) (radio.Outcome, error) {
	if len(payload) < 1 || len(payload) > 255 {
		return radio.TxErr, radio.InvalidParam("transmit", "payload must be 1..255 bytes")
	}
	return actor.CallErr(ctx, d.mbox, func() (radio.Outcome, error) {
		if !d.connected {
			return radio.TxErr, radio.NotConnected("transmit")
		}
		if d.mode == radio.Tx {
			return radio.TxErr, radio.ResourceBusy("transmit")
		}

		d.toStandby()
		d.writeRegister(regFifoAddrPtr, 0)
		for _, b := range payload {
			d.writeRegister(regFifo, b)
		}
		d.writeRegister(regPayloadLength, byte(len(payload)))
		d.writeRegister(regIrqFlags, 0xFF)
		d.setMode(modeTx)
		d.mode = radio.Tx
		d.emit(radio.Event{Kind: radio.EventTx, Payload: payload})

		deadline := time.Now().Add(txTimeout)
		for time.Now().Before(deadline) {
			flags := d.readRegister(regIrqFlags)
			if flags&irqTxDone != 0 {
				d.writeRegister(regIrqFlags, irqTxDone)
				d.toStandby()
				d.emit(radio.Event{Kind: radio.EventOther, Tag: "tx_ok"})
				return radio.Ok, nil
			}
			time.Sleep(txPollInterval)
		}
		d.toStandby()
		d.emit(radio.Event{Kind: radio.EventOther, Tag: "tx_error"})
		return radio.TxTimeout, nil
	})
}

// ReceiveMode arms the receiver. timeoutMs == 0 means continuous.
func (d *Driver) ReceiveMode(ctx context.Context, timeoutMs int) error {
	_, err := actor.CallErr(ctx, d.mbox, func() (struct{}, error) {
		if !d.connected {
			return struct{}{}, radio.NotConnected("receive_mode")
		}
		d.toStandby()
		d.writeRegister(regFifoAddrPtr, 0)
		d.writeRegister(regIrqFlags, 0xFF)
		d.writeRegister(regDioMapping1, 0x00)
		if timeoutMs == 0 {
			d.setMode(modeRxCont)
			d.mode = radio.RxContinuous
		} else {
			d.setMode(modeRxSingle)
			d.mode = radio.RxSingle
		}
		d.rxArmed = true
		return struct{}{}, nil
	})
	return err
}

// --- init sequence ---

func (d *Driver) begin(freqHz uint32) error {
	const op = "begin"
	if err := d.openHandles(); err != nil {
		return err
	}

	d.resetPulse()

	version := d.readRegister(regVersion)
	if version != expectedChipVersion {
		d.closeHandles()
		return radio.InvalidChip(op, version)
	}
	d.version = version

	d.setMode(modeSleep)
	time.Sleep(10 * time.Millisecond) // mandatory for the LoRa-mode bit to latch

	d.writeFrequency(freqHz)
	d.writeRegister(regFifoTxBase, 0x00)
	d.writeRegister(regFifoRxBase, 0x00)

	lna := d.readRegister(regLna)
	d.writeRegister(regLna, lna|0x03)

	d.writeRegister(regModemConfig3, 0x04)

	d.settings = radio.DefaultConfig(freqHz)
	d.applyTxPower(d.settings.TxPowerDbm)
	d.applySpreadingFactor(d.settings.SpreadingFactor)
	d.applyBandwidth(bandwidthIndex(d.settings.BandwidthHz))
	d.applyCodingRate(d.settings.CodingRate)

	cfg2 := d.readRegister(regModemConfig2)
	d.writeRegister(regModemConfig2, cfg2|0x04) // CRC on

	cfg1 := d.readRegister(regModemConfig1)
	d.writeRegister(regModemConfig1, cfg1&^byte(0x01)) // explicit header

	d.writeRegister(regPreambleMsb, byte(d.settings.PreambleLen>>8))
	d.writeRegister(regPreambleLsb, byte(d.settings.PreambleLen))
	d.writeRegister(regSyncWord, d.settings.SyncWord)

	d.toStandby()
	d.connected = true

	watchCancel, err := d.h.GPIO().WatchEdge(d.cfg.DIO0Pin, hal.EdgeRising, func(int) {
		d.mbox.Cast(d.dispatchDIO0)
	})
	if err != nil {
		d.closeHandles()
		d.connected = false
		return radio.IoError(op, err)
	}
	d.watchCancel = watchCancel

	return nil
}

func (d *Driver) openHandles() (err error) {
	opened := []func(){}
	defer func() {
		if err != nil {
			for i := len(opened) - 1; i >= 0; i-- {
				opened[i]()
			}
		}
	}()

	if err = d.h.SPI().Open(d.cfg.SPIBus, d.cfg.SPIDevice); err != nil {
		return radio.IoError("begin", err)
	}
	opened = append(opened, func() { d.h.SPI().Close() })

	if err = d.h.SPI().SetSpeedHz(d.cfg.SpeedHz); err != nil {
		return radio.IoError("begin", err)
	}

	if err = d.h.GPIO().SetMode(d.cfg.ResetPin, hal.Output); err != nil {
		return radio.IoError("begin", err)
	}
	d.h.GPIO().DigitalWrite(d.cfg.ResetPin, false)
	opened = append(opened, func() { d.h.GPIO().Close() })

	if err = d.h.GPIO().SetMode(d.cfg.CSPin, hal.Output); err != nil {
		return radio.IoError("begin", err)
	}
	d.h.GPIO().DigitalWrite(d.cfg.CSPin, true)

	if err = d.h.GPIO().SetMode(d.cfg.DIO0Pin, hal.Input); err != nil {
		return radio.IoError("begin", err)
	}

	return nil
}

func (d *Driver) closeHandles() {
	if d.watchCancel != nil {
		d.watchCancel()
		d.watchCancel = nil
	}
	d.h.SPI().Close()
	d.h.GPIO().Close()
}

func (d *Driver) resetPulse() {
	d.h.GPIO().DigitalWrite(d.cfg.ResetPin, false)
	time.Sleep(10 * time.Millisecond)
	d.h.GPIO().DigitalWrite(d.cfg.ResetPin, true)
	time.Sleep(10 * time.Millisecond)
}

// --- register I/O (C1) ---

func (d *Driver) readRegister(addr byte) byte {
	d.h.GPIO().DigitalWrite(d.cfg.CSPin, false)
	resp, err := d.h.SPI().Transfer([]byte{addr & 0x7F, 0x00})
	d.h.GPIO().DigitalWrite(d.cfg.CSPin, true)
	if err != nil {
		if d.log != nil {
			d.log.Warn("spi read failed", zap.Error(err), zap.Uint8("addr", addr))
		}
		return 0
	}
	return resp[1]
}

func (d *Driver) writeRegister(addr byte, value byte) {
	d.h.GPIO().DigitalWrite(d.cfg.CSPin, false)
	_, err := d.h.SPI().Transfer([]byte{addr | 0x80, value})
	d.h.GPIO().DigitalWrite(d.cfg.CSPin, true)
	if err != nil && d.log != nil {
		d.log.Warn("spi write failed", zap.Error(err), zap.Uint8("addr", addr))
	}
}

func (d *Driver) setMode(mode byte) {
	d.writeRegister(regOpMode, mode|modeLongRangeAccess)
}

func (d *Driver) toStandby() {
	d.setMode(modeStandby)
	d.mode = radio.Standby
	d.rxArmed = false
}

// --- parameter setters, bit-exact per spec.md §4.2 ---

func (d *Driver) writeFrequency(freqHz uint32) {
	frf := uint32(math.Round(float64(freqHz) / frfStep))
	d.writeRegister(regFrfMsb, byte(frf>>16))
	d.writeRegister(regFrfMid, byte(frf>>8))
	d.writeRegister(regFrfLsb, byte(frf))
}

func (d *Driver) applySpreadingFactor(sf int) {
	cfg2 := d.readRegister(regModemConfig2)
	cfg2 = (cfg2 & 0x0F) | byte(sf<<4)
	d.writeRegister(regModemConfig2, cfg2)

	if sf == 6 {
		d.writeRegister(regDetectOptimize, 0xC5)
		d.writeRegister(regDetectThresh, 0x0C)
	} else {
		d.writeRegister(regDetectOptimize, 0xC3)
		d.writeRegister(regDetectThresh, 0x0A)
	}
}

func bandwidthIndex(bwHz int) int {
	for i, v := range radio.BandwidthsHz {
		if v == bwHz {
			return i
		}
	}
	return -1
}

func (d *Driver) applyBandwidth(idx int) {
	cfg1 := d.readRegister(regModemConfig1)
	cfg1 = (cfg1 & 0x0F) | byte(idx<<4)
	d.writeRegister(regModemConfig1, cfg1)
}

func (d *Driver) applyCodingRate(cr int) {
	cfg1 := d.readRegister(regModemConfig1)
	cfg1 = (cfg1 & 0xF1) | byte((cr-4)<<1)
	d.writeRegister(regModemConfig1, cfg1)
}

func (d *Driver) applyTxPower(dbm int) {
	if dbm <= 17 {
		d.writeRegister(regPaDac, 0x84)
		d.writeRegister(regOcp, 0x2B)
		d.writeRegister(regPaConfig, 0x80|byte(dbm-2))
	} else {
		d.writeRegister(regPaDac, 0x87)
		d.writeRegister(regOcp, 0x3F)
		d.writeRegister(regPaConfig, 0x80|byte(dbm-5))
	}
}

// --- DIO0 dispatch (spec.md §4.2 "DIO0 dispatch state machine") ---

// dispatchDIO0 runs on the actor loop (via mbox.Cast from the GPIO
// watcher goroutine), so it never races a Transmit/ReceiveMode call in
// flight. It always reads the IRQ register and dispatches on the bits
// observed, never on mode alone, because edges can race mode
// transitions (spec.md §4.2).
func (d *Driver) dispatchDIO0() {
	flags := d.readRegister(regIrqFlags)

	switch d.mode {
	case radio.RxContinuous, radio.RxSingle:
		d.handleRxIrq(flags)
	case radio.Tx:
		// Transmit() polls for TxDone itself; a DIO0 edge racing it is
		// harmless, just clear whatever fired.
		if flags != 0 {
			d.writeRegister(regIrqFlags, flags)
		}
	default:
		if flags != 0 {
			d.writeRegister(regIrqFlags, flags)
		}
	}
}

func (d *Driver) handleRxIrq(flags byte) {
	if flags&irqRxTimeout != 0 {
		d.writeRegister(regIrqFlags, irqRxTimeout)
		d.toStandby()
		return
	}
	if flags&irqRxDone == 0 {
		return
	}
	if flags&irqPayloadCrcError != 0 {
		d.writeRegister(regIrqFlags, irqRxDone|irqPayloadCrcError)
		return
	}

	current := d.readRegister(regFifoRxCurrent)
	d.writeRegister(regFifoAddrPtr, current)
	n := d.readRegister(regRxNbBytes)
	bytes := make([]byte, n)
	for i := range bytes {
		bytes[i] = d.readRegister(regFifo)
	}

	rssiRaw := d.readRegister(regPktRssiValue)
	rssi := int(rssiRaw) - 157
	snrRaw := d.readRegister(regPktSnrValue)
	var snr float32
	if snrRaw > 127 {
		snr = float32(int(snrRaw)-256) / 4.0
	} else {
		snr = float32(snrRaw) / 4.0
	}

	d.writeRegister(regIrqFlags, irqRxDone)

	frame := radio.RxFrame{Bytes: bytes, RssiDbm: intPtr(rssi), SnrDb: f32Ptr(snr)}
	d.emit(radio.Event{Kind: radio.EventRx, Frame: &frame})

	if d.mode == radio.RxSingle {
		d.toStandby()
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

func intPtr(v int) *int         { return &v }
func f32Ptr(v float32) *float32 { return &v }
