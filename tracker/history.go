package tracker

import (
	"strings"

	"golang.org/x/exp/constraints"

	"lautenbacher.net/sramboard/gpio"
)

// Glyph codes used to draw a history as a graph, one per sample.
const (
	GlyphLow     byte = 0
	GlyphRising  byte = 1
	GlyphFalling byte = 2
	GlyphHigh    byte = 3
)

// Mask returns a register mask of width bits.
func Mask[T constraints.Unsigned](width uint) T {
	if width >= bitsOf[T]() {
		return ^T(0)
	}
	return T(1)<<width - 1
}

func bitsOf[T constraints.Unsigned]() uint {
	n := uint(0)
	for v := ^T(0); v != 0; v >>= 1 {
		n++
	}
	return n
}

// Shift pushes level into the low bit of a width-bit history register.
// The register records the level after each transition, never the edge.
func Shift[T constraints.Unsigned](history T, level gpio.Level, width uint) T {
	return (history<<1 | T(level.Bit())) & Mask[T](width)
}

// Seed returns a history that shows a flat line at level.
func Seed[T constraints.Unsigned](level gpio.Level, width uint) T {
	if level == gpio.High {
		return Mask[T](width)
	}
	return 0
}

// Newest returns the most recently pushed level.
func Newest[T constraints.Unsigned](history T) gpio.Level {
	return history&1 == 1
}

// ChannelSnapshot is the rendered state of one channel.
type ChannelSnapshot struct {
	Name    string
	Bits    uint32
	Width   uint
	Updates uint64
}

// Levels returns the history oldest first.
func (c ChannelSnapshot) Levels() []gpio.Level {
	ret := make([]gpio.Level, c.Width)
	for i := uint(0); i < c.Width; i++ {
		ret[i] = c.Bits>>(c.Width-1-i)&1 == 1
	}
	return ret
}

// String renders the history as '0'/'1', oldest first.
func (c ChannelSnapshot) String() string {
	var buf strings.Builder
	buf.Grow(int(c.Width))
	for _, l := range c.Levels() {
		if l {
			buf.WriteByte('1')
		} else {
			buf.WriteByte('0')
		}
	}
	return buf.String()
}

// Glyphs maps every sample and its predecessor to a graph glyph. The
// oldest sample has no predecessor and is drawn flat.
func (c ChannelSnapshot) Glyphs() []byte {
	levels := c.Levels()
	ret := make([]byte, len(levels))
	for i, l := range levels {
		prev := l
		if i > 0 {
			prev = levels[i-1]
		}
		ret[i] = prev.Bit()<<1 | l.Bit()
	}
	return ret
}

// Snapshot is the state of all channels after one complete poll.
type Snapshot struct {
	Channels []ChannelSnapshot
	Sample   byte
	Changes  byte
	Polls    uint64
}

// Channel looks up a channel by name.
func (s Snapshot) Channel(name string) (ChannelSnapshot, bool) {
	for _, c := range s.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return ChannelSnapshot{}, false
}
