//go:build linux

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"go.bug.st/serial"
)

// RaspberryPiHAL backs GPIO with go-rpio and SPI with periph.io, the
// same library split the teacher uses, wired through interfaces that
// are actually consistent end to end (the teacher's SPI wrapper and
// its lora_sx1276.go caller disagreed on the Transfer signature; this
// one doesn't).
type RaspberryPiHAL struct {
	gpio   *rpiGPIO
	spi    *rpiSPI
	serial *rpiSerial
	info   BoardInfo
}

func NewRaspberryPiHAL() (*RaspberryPiHAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hal: periph.io host init: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("hal: go-rpio open: %w", err)
	}
	return &RaspberryPiHAL{
		gpio:   &rpiGPIO{pins: make(map[int]rpio.Pin)},
		spi:    &rpiSPI{},
		serial: &rpiSerial{},
		info:   BoardInfo{Name: "Raspberry Pi", Model: "rpi", CPUCores: 4},
	}, nil
}

func (h *RaspberryPiHAL) GPIO() GPIOProvider     { return h.gpio }
func (h *RaspberryPiHAL) SPI() SPIProvider       { return h.spi }
func (h *RaspberryPiHAL) Serial() SerialProvider { return h.serial }
func (h *RaspberryPiHAL) Info() BoardInfo        { return h.info }

func (h *RaspberryPiHAL) Close() error {
	h.spi.Close()
	h.serial.Close()
	h.gpio.Close()
	return rpio.Close()
}

// rpiGPIO implements GPIOProvider over go-rpio. Edge detection has no
// callback facility in go-rpio, so WatchEdge starts a polling goroutine
// per design note §9 ("a small reader task ... sends edge messages into
// the driver's inbox").
type rpiGPIO struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

func (g *rpiGPIO) pin(n int) rpio.Pin {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pins[n]
	if !ok {
		p = rpio.Pin(n)
		g.pins[n] = p
	}
	return p
}

func (g *rpiGPIO) SetMode(n int, mode PinMode) error {
	p := g.pin(n)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("hal: unsupported pin mode %v", mode)
	}
	return nil
}

func (g *rpiGPIO) SetPull(n int, pull PullMode) error {
	p := g.pin(n)
	switch pull {
	case PullNone:
		p.PullOff()
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	}
	return nil
}

func (g *rpiGPIO) DigitalRead(n int) (bool, error) {
	return g.pin(n).Read() == rpio.High, nil
}

func (g *rpiGPIO) DigitalWrite(n int, value bool) error {
	p := g.pin(n)
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (g *rpiGPIO) WatchEdge(n int, edge EdgeMode, callback func(pin int)) (func(), error) {
	p := g.pin(n)
	var re rpio.Edge
	switch edge {
	case EdgeRising:
		re = rpio.RiseEdge
	case EdgeFalling:
		re = rpio.FallEdge
	case EdgeBoth:
		re = rpio.AnyEdge
	default:
		return func() {}, fmt.Errorf("hal: edge mode required")
	}
	if err := p.Detect(re); err != nil {
		return func() {}, fmt.Errorf("hal: detect edge on pin %d: %w", n, err)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if p.EdgeDetected() {
					callback(n)
				}
			}
		}
	}()

	return func() {
		close(stop)
		p.Detect(rpio.NoEdge)
	}, nil
}

func (g *rpiGPIO) Close() error { return nil }

// rpiSPI implements SPIProvider over periph.io's spireg/spi.
type rpiSPI struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

func (s *rpiSPI) Open(bus, device int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	port, err := spireg.Open(fmt.Sprintf("SPI%d.%d", bus, device))
	if err != nil {
		return fmt.Errorf("hal: open spi%d.%d: %w", bus, device, err)
	}
	conn, err := port.Connect(8*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("hal: connect spi%d.%d: %w", bus, device, err)
	}
	s.port = port
	s.conn = conn
	return nil
}

func (s *rpiSPI) Transfer(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("hal: spi not open")
	}
	read := make([]byte, len(data))
	if err := s.conn.Tx(data, read); err != nil {
		return nil, fmt.Errorf("hal: spi transfer: %w", err)
	}
	return read, nil
}

func (s *rpiSPI) SetSpeedHz(hz int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("hal: spi not open")
	}
	conn, err := s.port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("hal: spi reconnect at %d hz: %w", hz, err)
	}
	s.conn = conn
	return nil
}

func (s *rpiSPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port, s.conn = nil, nil
	return err
}

// rpiSerial implements SerialProvider over go.bug.st/serial, the
// library the teacher uses for its line-oriented serial nodes.
type rpiSerial struct {
	mu   sync.Mutex
	port serial.Port
}

func (s *rpiSerial) Open(path string, baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}
	p, err := serial.Open(path, mode)
	if err != nil {
		return fmt.Errorf("hal: open serial %s: %w", path, err)
	}
	s.port = p
	return nil
}

func (s *rpiSerial) Read(buf []byte) (int, error) {
	s.mu.Lock()
	p := s.port
	s.mu.Unlock()
	if p == nil {
		return 0, fmt.Errorf("hal: serial not open")
	}
	return p.Read(buf)
}

func (s *rpiSerial) Write(data []byte) (int, error) {
	s.mu.Lock()
	p := s.port
	s.mu.Unlock()
	if p == nil {
		return 0, fmt.Errorf("hal: serial not open")
	}
	return p.Write(data)
}

func (s *rpiSerial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
