package sram

import (
	"sync"

	"lautenbacher.net/sramboard/gpio"
)

// SimLines are the SimBus line numbers the simulated chip is attached to.
type SimLines struct {
	MOSI, MISO, SCK, CS int
}

type simPhase int

const (
	phCommand simPhase = iota
	phAddress
	phWriteData
	phReadData
	phWriteMode
	phReadMode
	phIgnore
)

// SimDevice is a 23LC1024 living on a gpio.SimBus. It follows the bus
// through change listeners: MOSI is sampled on the rising clock edge and
// MISO changes on the falling edge, while CS (active low) frames the
// instruction.
type SimDevice struct {
	bus   *gpio.SimBus
	lines SimLines

	mu       sync.Mutex
	mem      [Size]byte
	mode     Mode
	selected bool
	phase    simPhase
	cmd      byte
	addr     uint32
	addrLen  int
	in       byte
	inBits   int
	out      byte
	outPos   int
	moved    bool
	sessions uint64
	fault    func(addr uint32, b byte) byte
}

// NewSimDevice attaches a chip in sequential mode to the lines of bus.
func NewSimDevice(bus *gpio.SimBus, lines SimLines) *SimDevice {
	d := &SimDevice{bus: bus, lines: lines, mode: ModeSequential}
	d.selected = bus.Level(lines.CS) == gpio.Low
	bus.OnChange(lines.CS, d.onCS)
	bus.OnChange(lines.SCK, d.onSCK)
	return d
}

// SetReadFault installs a hook that alters every byte the chip presents
// on MISO; nil removes it.
func (d *SimDevice) SetReadFault(fn func(addr uint32, b byte) byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = fn
}

func (d *SimDevice) Peek(addr uint32) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem[addr&AddressMask]
}

func (d *SimDevice) Poke(addr uint32, b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mem[addr&AddressMask] = b
}

func (d *SimDevice) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Sessions counts how often the chip was selected.
func (d *SimDevice) Sessions() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

func (d *SimDevice) onCS(l gpio.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = l == gpio.Low
	if d.selected {
		d.sessions++
	}
	d.phase = phCommand
	d.in, d.inBits = 0, 0
}

func (d *SimDevice) onSCK(l gpio.Level) {
	d.mu.Lock()
	if !d.selected {
		d.mu.Unlock()
		return
	}
	var drive *gpio.Level
	if l == gpio.High {
		d.rise()
	} else if lvl, ok := d.fall(); ok {
		drive = &lvl
	}
	d.mu.Unlock()

	if drive != nil {
		d.bus.Drive(d.lines.MISO, *drive)
	}
}

func (d *SimDevice) rise() {
	d.in = d.in<<1 | d.bus.Level(d.lines.MOSI).Bit()
	d.inBits++
	if d.inBits < 8 {
		return
	}
	b := d.in
	d.in, d.inBits = 0, 0

	switch d.phase {
	case phCommand:
		d.cmd = b
		switch b {
		case CmdRead, CmdWrite:
			d.phase = phAddress
			d.addr, d.addrLen = 0, 0
		case CmdRDMR:
			d.startOutput(byte(d.mode))
			d.phase = phReadMode
		case CmdWRMR:
			d.phase = phWriteMode
		default:
			d.phase = phIgnore
		}
	case phAddress:
		d.addr = d.addr<<8 | uint32(b)
		d.addrLen++
		if d.addrLen < 3 {
			return
		}
		d.addr &= AddressMask
		d.moved = false
		if d.cmd == CmdWrite {
			d.phase = phWriteData
		} else {
			d.phase = phReadData
			d.startOutput(d.load())
		}
	case phWriteData:
		if d.moved && d.mode == ModeByte {
			return
		}
		d.mem[d.addr] = b
		d.advance()
	case phWriteMode:
		d.mode = Mode(b & 0xC0)
		d.phase = phIgnore
	}
}

// fall returns the MISO level to present, if any.
func (d *SimDevice) fall() (gpio.Level, bool) {
	switch d.phase {
	case phReadData, phReadMode:
	default:
		return gpio.Low, false
	}
	if d.outPos == 8 {
		if d.phase == phReadData {
			d.advance()
			if d.mode == ModeByte {
				d.out = 0xFF
			} else {
				d.out = d.load()
			}
		}
		d.outPos = 0
	}
	l := gpio.LevelOf(d.out >> (7 - d.outPos))
	d.outPos++
	return l, true
}

func (d *SimDevice) startOutput(b byte) {
	d.out = b
	d.outPos = 0
}

func (d *SimDevice) load() byte {
	b := d.mem[d.addr]
	if d.fault != nil {
		b = d.fault(d.addr, b)
	}
	return b
}

func (d *SimDevice) advance() {
	d.moved = true
	switch d.mode {
	case ModeSequential:
		d.addr = (d.addr + 1) & AddressMask
	case ModePage:
		d.addr = d.addr&^(PageSize-1) | (d.addr+1)&(PageSize-1)
	}
}
