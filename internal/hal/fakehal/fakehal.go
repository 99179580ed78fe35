// Package fakehal is a register-addressable fake of the SX1276 SPI
// transaction shape plus simple GPIO and serial fakes, grounded on the
// teacher's internal/hal/mock.go shape but reworked so the seed test
// scenarios (S1-S4) can drive it directly by register address instead
// of just echoing bytes back.
package fakehal

import (
	"sync"

	"github.com/blasphemetheus/d2d-responder/internal/hal"
)

// FakeHAL implements hal.HAL entirely in memory.
type FakeHAL struct {
	gpio   *FakeGPIO
	spi    *FakeSPI
	serial *FakeSerial
}

func New() *FakeHAL {
	return &FakeHAL{
		gpio:   NewFakeGPIO(),
		spi:    NewFakeSPI(),
		serial: NewFakeSerial(),
	}
}

func (f *FakeHAL) GPIO() hal.GPIOProvider     { return f.gpio }
func (f *FakeHAL) SPI() hal.SPIProvider       { return f.spi }
func (f *FakeHAL) Serial() hal.SerialProvider { return f.serial }
func (f *FakeHAL) Info() hal.BoardInfo        { return hal.BoardInfo{Name: "fake", Model: "fake"} }
func (f *FakeHAL) Close() error               { return nil }

// SPIFake, GPIOFake, and SerialFake expose the concrete fakes for test
// assertions and register/line injection beyond the hal interfaces.
func (f *FakeHAL) SPIFake() *FakeSPI       { return f.spi }
func (f *FakeHAL) GPIOFake() *FakeGPIO     { return f.gpio }
func (f *FakeHAL) SerialFake() *FakeSerial { return f.serial }

// --- GPIO ---

type FakeGPIO struct {
	mu       sync.Mutex
	modes    map[int]hal.PinMode
	values   map[int]bool
	watchers map[int]func(pin int)
	closed   bool
}

func NewFakeGPIO() *FakeGPIO {
	return &FakeGPIO{
		modes:    make(map[int]hal.PinMode),
		values:   make(map[int]bool),
		watchers: make(map[int]func(pin int)),
	}
}

func (g *FakeGPIO) SetMode(pin int, mode hal.PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modes[pin] = mode
	return nil
}

func (g *FakeGPIO) SetPull(pin int, pull hal.PullMode) error { return nil }

func (g *FakeGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[pin], nil
}

func (g *FakeGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[pin] = value
	return nil
}

func (g *FakeGPIO) WatchEdge(pin int, edge hal.EdgeMode, callback func(pin int)) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.watchers[pin] = callback
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.watchers, pin)
	}, nil
}

func (g *FakeGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Closed reports whether Close has been called, for tests asserting
// handle cleanup on a failed init sequence.
func (g *FakeGPIO) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// TriggerEdge simulates a rising edge on pin, synchronously invoking
// whatever callback WatchEdge registered. Tests use this to inject
// DIO0 events (scenarios S3/S4).
func (g *FakeGPIO) TriggerEdge(pin int) {
	g.mu.Lock()
	cb := g.watchers[pin]
	g.mu.Unlock()
	if cb != nil {
		cb(pin)
	}
}

// --- SPI: an SX1276 register file ---

// FakeSPI emulates the two-byte SPI register-access convention the
// SX1276 driver uses: data[0] is the address with the write bit (0x80)
// OR'd in, data[1] is the value to write (ignored on read). The FIFO
// register (0x00) is backed by a separate 256-byte buffer addressed by
// the FifoAddrPtr register (0x0D), auto-incrementing on each access,
// matching the real chip.
type FakeSPI struct {
	mu   sync.Mutex
	regs [128]byte
	fifo [256]byte
}

const (
	regFifoAddrPtr = 0x0D
	regFifo        = 0x00
)

func NewFakeSPI() *FakeSPI {
	s := &FakeSPI{}
	s.regs[0x42] = 0x12 // version: real chip by default
	return s
}

func (s *FakeSPI) Open(bus, device int) error { return nil }

func (s *FakeSPI) Transfer(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(data) != 2 {
		return make([]byte, len(data)), nil
	}
	write := data[0]&0x80 != 0
	addr := data[0] & 0x7F
	resp := make([]byte, 2)

	if addr == regFifo {
		ptr := s.regs[regFifoAddrPtr]
		if write {
			s.fifo[ptr] = data[1]
		} else {
			resp[1] = s.fifo[ptr]
		}
		s.regs[regFifoAddrPtr] = ptr + 1
		return resp, nil
	}

	if write {
		s.regs[addr] = data[1]
	} else {
		resp[1] = s.regs[addr]
	}
	return resp, nil
}

func (s *FakeSPI) SetSpeedHz(hz int) error { return nil }
func (s *FakeSPI) Close() error            { return nil }

// SetRegister lets a test preload a register value (e.g. the version
// register for S2, or IRQ/RSSI/SNR registers for S3/S4).
func (s *FakeSPI) SetRegister(addr, value byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr&0x7F] = value
}

// Register reads back a register value for assertions.
func (s *FakeSPI) Register(addr byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr&0x7F]
}

// SetFIFO preloads the FIFO buffer starting at offset 0, for injecting
// a received frame's bytes ahead of a simulated RxDone edge.
func (s *FakeSPI) SetFIFO(offset byte, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range data {
		s.fifo[int(offset)+i] = b
	}
}

// --- Serial: a line-buffered fake for the RN2903 AT-modem tests ---

// FakeSerial records every write and lets a test queue up response
// bytes to be handed back on Read, simulating the modem's async line
// stream.
type FakeSerial struct {
	mu       sync.Mutex
	writes   [][]byte
	inbox    []byte
}

func NewFakeSerial() *FakeSerial { return &FakeSerial{} }

func (s *FakeSerial) Open(port string, baud int) error { return nil }

func (s *FakeSerial) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(buf, s.inbox)
	s.inbox = s.inbox[n:]
	return n, nil
}

func (s *FakeSerial) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), data...)
	s.writes = append(s.writes, cp)
	return len(data), nil
}

func (s *FakeSerial) Close() error { return nil }

// QueueLine appends bytes (typically "<text>\r\n") for the next Read
// calls to return, simulating an incoming line from the modem.
func (s *FakeSerial) QueueLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, []byte(line)...)
}

// Writes returns every byte slice passed to Write, in order, for
// assertions against the commands the modem driver sent.
func (s *FakeSerial) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}
