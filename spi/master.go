// Package spi implements a SPI mode 0 master on plain GPIO lines.
//
// Every level change is followed by the same settle delay because the
// passive device has no clock recovery: correctness depends only on the
// master holding each level long enough.
package spi

import (
	"errors"
	"fmt"
	"time"

	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/util"
)

var (
	ErrNoSession   = errors.New("no spi session open")
	ErrSessionOpen = errors.New("spi session already open")
)

// DefaultDelay matches the 23LC1024 timing with a comfortable margin.
const DefaultDelay = 10 * time.Microsecond

// Pins are the four lines of the bus. The master expects exclusive
// ownership (see gpio.Registry).
type Pins struct {
	MOSI gpio.Pin
	MISO gpio.Pin
	SCK  gpio.Pin
	CS   gpio.Pin
}

// Config holds the protocol parameters of the target device.
type Config struct {
	// Delay is held after every level change, giving a symmetric clock
	// with a period of 3*Delay per bit.
	Delay time.Duration
	// Select is the CS level that selects the device.
	Select gpio.Level
}

// Master is a bit-banged SPI master (CPOL=0, CPHA=0, MSB first).
type Master struct {
	pins     Pins
	hold     util.Holder
	delay    time.Duration
	selected gpio.Level
	open     bool
}

// NewMaster creates a master; a zero Delay is replaced by DefaultDelay.
func NewMaster(pins Pins, hold util.Holder, cfg Config) *Master {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if hold == nil {
		hold = util.BusyWait{}
	}
	return &Master{
		pins:     pins,
		hold:     hold,
		delay:    cfg.Delay,
		selected: cfg.Select,
	}
}

// Init configures the pins: CS deselected, SCK and MOSI low, MISO as
// input without pull resistor. No clocking happens.
func (m *Master) Init() error {
	if err := m.pins.CS.Out(!m.selected); err != nil {
		return fmt.Errorf("init cs %s: %w", m.pins.CS, err)
	}
	if err := m.pins.SCK.Out(gpio.Low); err != nil {
		return fmt.Errorf("init sck %s: %w", m.pins.SCK, err)
	}
	if err := m.pins.MOSI.Out(gpio.Low); err != nil {
		return fmt.Errorf("init mosi %s: %w", m.pins.MOSI, err)
	}
	if err := m.pins.MISO.In(gpio.PullFloat); err != nil {
		return fmt.Errorf("init miso %s: %w", m.pins.MISO, err)
	}
	m.open = false
	return nil
}

// InSession reports whether Begin was called without a matching End.
func (m *Master) InSession() bool { return m.open }

// Delay returns the configured settle delay.
func (m *Master) Delay() time.Duration { return m.delay }

// Begin selects the device and waits one settle delay before any clock.
func (m *Master) Begin() error {
	if m.open {
		return ErrSessionOpen
	}
	if err := m.pins.CS.Out(m.selected); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	m.hold.Hold(m.delay)
	m.open = true
	return nil
}

// End deselects the device and waits one settle delay so the device has
// latched before it can be selected again.
func (m *Master) End() error {
	if !m.open {
		return ErrNoSession
	}
	m.open = false
	if err := m.pins.CS.Out(!m.selected); err != nil {
		return fmt.Errorf("deselect: %w", err)
	}
	m.hold.Hold(m.delay)
	return nil
}

// Transfer shifts out and clocks in one byte, most significant bit
// first. The device samples MOSI on the rising edge and presents the
// next MISO bit on the falling edge.
func (m *Master) Transfer(out byte) (byte, error) {
	if !m.open {
		return 0, ErrNoSession
	}
	var in byte
	for i := 0; i < 8; i++ {
		if err := m.pins.MOSI.Out(gpio.LevelOf(out >> 7)); err != nil {
			return in, fmt.Errorf("mosi bit %d: %w", i, err)
		}
		out <<= 1
		m.hold.Hold(m.delay)

		if err := m.pins.SCK.Out(gpio.High); err != nil {
			return in, fmt.Errorf("sck rise bit %d: %w", i, err)
		}
		m.hold.Hold(m.delay)

		in = in<<1 | m.pins.MISO.Read().Bit()

		if err := m.pins.SCK.Out(gpio.Low); err != nil {
			return in, fmt.Errorf("sck fall bit %d: %w", i, err)
		}
		m.hold.Hold(m.delay)
	}
	return in, nil
}

// Tx transfers every byte of w inside the open session. Received bytes
// are stored in r when it is not nil; r must then be at least len(w).
func (m *Master) Tx(w, r []byte) error {
	if r != nil && len(r) < len(w) {
		return fmt.Errorf("read buffer too small: %d < %d", len(r), len(w))
	}
	for i, b := range w {
		in, err := m.Transfer(b)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}
