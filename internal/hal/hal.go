// Package hal defines the hardware-abstraction surface the radio drivers
// are built on: GPIO lines, an SPI device, and a serial port, plus a
// process-wide accessor so a single backend (real or fake) is selected
// once at startup and shared by every actor that needs it.
package hal

import (
	"fmt"
	"sync"
)

// PinMode is the direction a GPIO line is configured for.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// PullMode is the pull resistor configuration of an input line.
type PullMode int

const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

// EdgeMode selects which transitions WatchEdge reports.
type EdgeMode int

const (
	EdgeNone EdgeMode = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// GPIOProvider drives the reset, chip-select, and DIO0 lines used by the
// SX1276 driver. WatchEdge spawns whatever background mechanism the
// backend needs (polling, kernel event fd, ...) and delivers edges to
// callback until the returned cancel function is called.
type GPIOProvider interface {
	SetMode(pin int, mode PinMode) error
	SetPull(pin int, pull PullMode) error
	DigitalRead(pin int) (bool, error)
	DigitalWrite(pin int, value bool) error
	WatchEdge(pin int, edge EdgeMode, callback func(pin int)) (cancel func(), err error)
	Close() error
}

// SPIProvider is a single opened SPI connection. Open binds the bus and
// device for the lifetime of the provider; Transfer performs one
// full-duplex exchange and does not touch chip-select — the caller
// (the SX1276 driver) drives CS manually via a GPIOProvider pin, per the
// Dragino HAT wiring this driver targets.
type SPIProvider interface {
	Open(bus, device int) error
	Transfer(data []byte) ([]byte, error)
	SetSpeedHz(hz int) error
	Close() error
}

// SerialProvider is a single opened serial port used by the UART modem
// backend.
type SerialProvider interface {
	Open(port string, baud int) error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

// BoardInfo reports static facts about the host board, surfaced on the
// status API and in startup logs.
type BoardInfo struct {
	Name     string
	Model    string
	CPUCores int
}

// HAL groups the three providers a radio backend needs plus board
// identification.
type HAL interface {
	GPIO() GPIOProvider
	SPI() SPIProvider
	Serial() SerialProvider
	Info() BoardInfo
	Close() error
}

var (
	globalHAL HAL
	halMu     sync.RWMutex
)

// SetGlobalHAL installs the process-wide HAL backend. Called exactly
// once at startup per design note §9 ("read once at startup ... frozen
// for the process").
func SetGlobalHAL(h HAL) {
	halMu.Lock()
	defer halMu.Unlock()
	globalHAL = h
}

// GetGlobalHAL returns the installed backend.
func GetGlobalHAL() (HAL, error) {
	halMu.RLock()
	defer halMu.RUnlock()
	if globalHAL == nil {
		return nil, fmt.Errorf("hal: not initialized")
	}
	return globalHAL, nil
}
