// Package sram talks to a Microchip 23LC1024 serial SRAM over a SPI bus
// and runs the write/read-back test cycle of the bring-up board.
package sram

import (
	"fmt"
)

// Instruction set of the 23LC1024.
const (
	CmdRead  byte = 0x03
	CmdWrite byte = 0x02
	CmdRDMR  byte = 0x05
	CmdWRMR  byte = 0x01
)

const (
	// Size is the capacity in bytes.
	Size = 128 * 1024
	// AddressMask keeps the 17 significant address bits.
	AddressMask uint32 = Size - 1
	// PageSize is the wrap-around unit in page mode.
	PageSize = 32
)

// Mode is the operating mode stored in the mode register.
type Mode byte

const (
	ModeByte       Mode = 0x00
	ModePage       Mode = 0x80
	ModeSequential Mode = 0x40
)

func (m Mode) String() string {
	switch m {
	case ModeByte:
		return "byte"
	case ModePage:
		return "page"
	case ModeSequential:
		return "sequential"
	}
	return fmt.Sprintf("Mode(%#02x)", byte(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "byte":
		return ModeByte, nil
	case "page":
		return ModePage, nil
	case "", "seq", "sequential":
		return ModeSequential, nil
	}
	return ModeSequential, fmt.Errorf("unknown sram mode %q", s)
}

// Bus is a SPI master with explicit session bracketing. *spi.Master
// satisfies it.
type Bus interface {
	Begin() error
	End() error
	Transfer(out byte) (byte, error)
}

// Device is a 23LC1024 on a Bus. Every method is exactly one session.
type Device struct {
	bus Bus
}

func NewDevice(bus Bus) *Device {
	return &Device{bus: bus}
}

// session runs fn between Begin and End. End is attempted even when fn
// fails; the first error wins.
func (d *Device) session(fn func() error) error {
	if err := d.bus.Begin(); err != nil {
		return err
	}
	err := fn()
	if endErr := d.bus.End(); err == nil {
		err = endErr
	}
	return err
}

func (d *Device) send(bs ...byte) error {
	for _, b := range bs {
		if _, err := d.bus.Transfer(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) command(cmd byte, addr uint32) error {
	addr &= AddressMask
	return d.send(cmd, byte(addr>>16), byte(addr>>8), byte(addr))
}

// SetMode writes the mode register.
func (d *Device) SetMode(m Mode) error {
	err := d.session(func() error {
		return d.send(CmdWRMR, byte(m))
	})
	if err != nil {
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	return nil
}

// Mode reads the mode register back.
func (d *Device) Mode() (Mode, error) {
	var m byte
	err := d.session(func() error {
		if err := d.send(CmdRDMR); err != nil {
			return err
		}
		var err error
		m, err = d.bus.Transfer(0xFF)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read mode: %w", err)
	}
	return Mode(m), nil
}

// Write stores p starting at addr. How the address advances past the
// first byte depends on the device mode.
func (d *Device) Write(addr uint32, p []byte) error {
	err := d.session(func() error {
		if err := d.command(CmdWrite, addr); err != nil {
			return err
		}
		return d.send(p...)
	})
	if err != nil {
		return fmt.Errorf("write %#05x: %w", addr&AddressMask, err)
	}
	return nil
}

// Read fills p starting at addr. The device ignores MOSI while it
// presents data, the master clocks 0xFF.
func (d *Device) Read(addr uint32, p []byte) error {
	err := d.session(func() error {
		if err := d.command(CmdRead, addr); err != nil {
			return err
		}
		for i := range p {
			b, err := d.bus.Transfer(0xFF)
			if err != nil {
				return err
			}
			p[i] = b
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read %#05x: %w", addr&AddressMask, err)
	}
	return nil
}
