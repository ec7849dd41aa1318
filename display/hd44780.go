package display

import (
	"fmt"
	"time"

	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/util"
)

// HD44780 controller instructions.
const (
	lcdClear        = 0x01
	lcdEntryMode    = 0x06 // increment, no shift
	lcdDisplayOn    = 0x0C // display on, cursor off, blink off
	lcdFunction4Bit = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetCGRAM     = 0x40
	lcdSetDDRAM     = 0x80
)

// LCDPins are the GPIO lines of a 4-bit wired HD44780. RW may be nil
// when the pin is tied to ground.
type LCDPins struct {
	RS, EN, RW     gpio.Pin
	D4, D5, D6, D7 gpio.Pin
}

// HD44780 drives a character LCD in 4-bit mode. It never reads the busy
// flag and waits the worst case execution time instead.
type HD44780 struct {
	pins     LCDPins
	hold     util.Holder
	rows     int
	cols     int
	row, col int
}

func NewHD44780(pins LCDPins, hold util.Holder, rows, cols int) *HD44780 {
	if hold == nil {
		hold = util.Sleep{}
	}
	return &HD44780{pins: pins, hold: hold, rows: rows, cols: cols}
}

func (d *HD44780) Rows() int { return d.rows }
func (d *HD44780) Cols() int { return d.cols }

// Init runs the power-on reset by instruction and leaves the display
// cleared with the cursor hidden.
func (d *HD44780) Init() error {
	for _, p := range []gpio.Pin{d.pins.RS, d.pins.EN, d.pins.D4, d.pins.D5, d.pins.D6, d.pins.D7} {
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("lcd init %s: %w", p, err)
		}
	}
	if d.pins.RW != nil {
		if err := d.pins.RW.Out(gpio.Low); err != nil {
			return fmt.Errorf("lcd init %s: %w", d.pins.RW, err)
		}
	}
	d.hold.Hold(50 * time.Millisecond)

	for _, w := range []time.Duration{4500 * time.Microsecond, 150 * time.Microsecond, 150 * time.Microsecond} {
		if err := d.nibble(0x3); err != nil {
			return err
		}
		d.hold.Hold(w)
	}
	if err := d.nibble(0x2); err != nil {
		return err
	}
	for _, c := range []byte{lcdFunction4Bit, lcdDisplayOn} {
		if err := d.command(c); err != nil {
			return err
		}
	}
	if err := d.Clear(); err != nil {
		return err
	}
	return d.command(lcdEntryMode)
}

func (d *HD44780) nibble(n byte) error {
	for i, p := range []gpio.Pin{d.pins.D4, d.pins.D5, d.pins.D6, d.pins.D7} {
		if err := p.Out(gpio.LevelOf(n >> i)); err != nil {
			return fmt.Errorf("lcd data %s: %w", p, err)
		}
	}
	if err := d.pins.EN.Out(gpio.High); err != nil {
		return fmt.Errorf("lcd enable: %w", err)
	}
	d.hold.Hold(time.Microsecond)
	if err := d.pins.EN.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcd enable: %w", err)
	}
	d.hold.Hold(50 * time.Microsecond)
	return nil
}

func (d *HD44780) write(b byte, data bool) error {
	if err := d.pins.RS.Out(gpio.Level(data)); err != nil {
		return fmt.Errorf("lcd rs: %w", err)
	}
	if err := d.nibble(b >> 4); err != nil {
		return err
	}
	return d.nibble(b & 0x0F)
}

func (d *HD44780) command(c byte) error { return d.write(c, false) }

// ddram returns the controller address of the zero-based position.
func (d *HD44780) ddram(row, col int) byte {
	addr := col
	if row%2 == 1 {
		addr += 0x40
	}
	if row >= 2 {
		addr += d.cols
	}
	return byte(addr)
}

func (d *HD44780) RegisterGlyph(g Glyph) error {
	if g.ID >= MaxGlyphs {
		return fmt.Errorf("glyph id %d: only %d custom characters", g.ID, MaxGlyphs)
	}
	if err := d.command(lcdSetCGRAM | g.ID<<3); err != nil {
		return err
	}
	for _, r := range g.Rows {
		if err := d.write(r&0x1F, true); err != nil {
			return err
		}
	}
	return d.command(lcdSetDDRAM | d.ddram(d.row, d.col))
}

func (d *HD44780) Goto(row, col int) error {
	if row < 1 || row > d.rows || col < 1 || col > d.cols {
		return fmt.Errorf("%w: (%d,%d) on %dx%d", ErrOutOfRange, row, col, d.rows, d.cols)
	}
	d.row, d.col = row-1, col-1
	return d.command(lcdSetDDRAM | d.ddram(d.row, d.col))
}

func (d *HD44780) WriteString(s string) error {
	for i := 0; i < len(s); i++ {
		if err := d.WriteChar(s[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *HD44780) WriteChar(code byte) error {
	if err := d.write(code, true); err != nil {
		return err
	}
	d.col++
	return nil
}

func (d *HD44780) Clear() error {
	if err := d.command(lcdClear); err != nil {
		return err
	}
	d.row, d.col = 0, 0
	d.hold.Hold(2 * time.Millisecond)
	return nil
}
