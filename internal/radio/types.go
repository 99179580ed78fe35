// Package radio defines the backend-agnostic capability set (C5) that
// both the SX1276 driver and the RN2903 modem driver satisfy, the data
// model shared by them (RadioConfig, RadioMode, RxFrame, TxOutcome),
// and the subscriber fan-out facade that sits in front of whichever
// backend the process was configured to use.
package radio

import "context"

// Mode is the tagged radio-mode variant of spec.md §3. Every mode write
// on the SX1276 backend is OR'd with the LoRa-mode bit by the driver;
// the UART backend tracks it only for bookkeeping since the RN2903
// firmware manages its own mode internally.
type Mode int

const (
	Sleep Mode = iota
	Standby
	Tx
	RxContinuous
	RxSingle
)

func (m Mode) String() string {
	switch m {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case Tx:
		return "tx"
	case RxContinuous:
		return "rx_continuous"
	case RxSingle:
		return "rx_single"
	default:
		return "unknown"
	}
}

// Config is the current radio parameter set (spec.md §3).
type Config struct {
	FrequencyHz     uint32
	SpreadingFactor int
	BandwidthHz     int
	CodingRate      int
	TxPowerDbm      int
	SyncWord        byte
	PreambleLen     uint16
	CrcOn           bool
	ImplicitHeader  bool
}

// BandwidthsHz is the ordered list of bandwidths the SX1276 supports,
// in the order the bw_bits table in spec.md §4.2 assigns nibble values
// 0x00..0x90.
var BandwidthsHz = []int{7800, 10400, 15600, 20800, 31250, 41700, 62500, 125000, 250000, 500000}

// DefaultConfig matches the `begin` init-sequence defaults (spec.md
// §4.2 step 9).
func DefaultConfig(freqHz uint32) Config {
	return Config{
		FrequencyHz:     freqHz,
		SpreadingFactor: 7,
		BandwidthHz:     125000,
		CodingRate:      5,
		TxPowerDbm:      14,
		SyncWord:        0x34,
		PreambleLen:     8,
		CrcOn:           true,
		ImplicitHeader:  false,
	}
}

// Validate enforces the SF==6 invariant from spec.md §3: implicit
// header is mandatory at SF6.
func (c Config) Validate() error {
	if c.SpreadingFactor < 6 || c.SpreadingFactor > 12 {
		return InvalidParam("set_spreading_factor", "spreading factor must be 6..12")
	}
	if c.SpreadingFactor == 6 && !c.ImplicitHeader {
		return InvalidParam("set_spreading_factor", "SF6 requires implicit header")
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return InvalidParam("set_coding_rate", "coding rate must be 5..8")
	}
	if c.TxPowerDbm < 2 || c.TxPowerDbm > 20 {
		return InvalidParam("set_tx_power", "tx power must be 2..20 dBm")
	}
	return nil
}

// RxFrame is a received payload plus link-quality metadata (spec.md
// §3). RssiDbm/SnrDb are nil when the backend cannot report them (the
// UART modem never does — design note §9's "propagate None rather than
// fabricating values").
type RxFrame struct {
	Bytes   []byte
	RssiDbm *int
	SnrDb   *float32
}

// Outcome is the TxOutcome tagged variant.
type Outcome int

const (
	Ok Outcome = iota
	TxTimeout
	TxErr
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case TxTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// EventKind distinguishes the three shapes the C8 event sink accepts.
type EventKind string

const (
	EventTx    EventKind = "tx"
	EventRx    EventKind = "rx"
	EventOther EventKind = "event"
)

// Event is what the facade fans out to subscribers and what the C8
// sink persists.
type Event struct {
	Kind    EventKind
	Frame   *RxFrame // set when Kind == EventRx
	Payload []byte   // set when Kind == EventTx
	Tag     string   // set when Kind == EventOther (e.g. "tx_ok", "tx_error")
}

// SubscriberID identifies a facade subscriber.
type SubscriberID string

// Backend is the capability set of design note §9: "Define a single
// capability set ... satisfied by both backends." Both internal/radio/sx1276
// and internal/radio/modem implement this.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
	Transmit(ctx context.Context, payload []byte) (Outcome, error)
	ReceiveMode(ctx context.Context, timeoutMs int) error
	Subscribe(id SubscriberID, ch chan<- Event)
	Unsubscribe(id SubscriberID)
	Settings() Config
}
