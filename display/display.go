// Package display drives the character LCD of the board, or an in-memory
// replica of it, and draws signal histories on it.
package display

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("position outside display")

// Glyph is a custom 5x8 character. Rows holds one byte per pixel row,
// the low five bits are used. Rune is the stand-in for terminals.
type Glyph struct {
	ID   byte
	Rows [8]byte
	Rune rune
}

// Glyph codes. The history graph uses the four trace codes, the labels
// mark the channel a graph belongs to.
const (
	GlyphLow     byte = 0
	GlyphRising  byte = 1
	GlyphFalling byte = 2
	GlyphHigh    byte = 3
	LabelMOSI    byte = 4
	LabelSCK     byte = 5
	LabelCS      byte = 6
	LabelMISO    byte = 7
)

// MaxGlyphs is the CGRAM capacity of an HD44780.
const MaxGlyphs = 8

// DefaultGlyphs are the traces and the channel labels of the manual
// clocking experiment.
var DefaultGlyphs = []Glyph{
	{ID: GlyphLow, Rows: [8]byte{0, 0, 0, 0, 0, 0, 0, 0x1f}, Rune: '▁'},
	{ID: GlyphRising, Rows: [8]byte{0x17, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10}, Rune: '╱'},
	{ID: GlyphFalling, Rows: [8]byte{0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x17}, Rune: '╲'},
	{ID: GlyphHigh, Rows: [8]byte{0x1f, 0, 0, 0, 0, 0, 0, 0}, Rune: '▔'},
	{ID: LabelMOSI, Rows: [8]byte{0x06, 0x09, 0x06, 0x1f, 0x08, 0x04, 0x08, 0x1f}, Rune: 'O'},
	{ID: LabelSCK, Rows: [8]byte{0x00, 0x11, 0x11, 0x0e, 0x00, 0x12, 0x15, 0x09}, Rune: 'C'},
	{ID: LabelCS, Rows: [8]byte{0x12, 0x15, 0x09, 0x00, 0x11, 0x11, 0x0e, 0x00}, Rune: 'S'},
	{ID: LabelMISO, Rows: [8]byte{0x00, 0x17, 0x00, 0x1f, 0x08, 0x04, 0x08, 0x1f}, Rune: 'I'},
}

// LabelByName maps channel names to their label glyph.
var LabelByName = map[string]byte{
	"mosi": LabelMOSI,
	"sck":  LabelSCK,
	"cs":   LabelCS,
	"miso": LabelMISO,
}

// Sink is a character display with 1-based coordinates.
type Sink interface {
	RegisterGlyph(g Glyph) error
	Goto(row, col int) error
	WriteString(s string) error
	WriteChar(code byte) error
	Clear() error
}

// Size is implemented by sinks that know their geometry.
type Size interface {
	Rows() int
	Cols() int
}

// RegisterAll loads every glyph into d.
func RegisterAll(d Sink, glyphs []Glyph) error {
	for _, g := range glyphs {
		if err := d.RegisterGlyph(g); err != nil {
			return fmt.Errorf("register glyph %d: %w", g.ID, err)
		}
	}
	return nil
}

// Printf positions the cursor and writes the formatted text.
func Printf(d Sink, row, col int, format string, args ...any) error {
	if err := d.Goto(row, col); err != nil {
		return err
	}
	return d.WriteString(fmt.Sprintf(format, args...))
}
