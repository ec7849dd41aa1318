package gpio

import "fmt"

// Level is the logical level of a line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "High"
	}
	return "Low"
}

// Bit returns 1 for High and 0 for Low.
func (l Level) Bit() byte {
	if l {
		return 1
	}
	return 0
}

// LevelOf returns High if the lowest bit of b is set.
func LevelOf(b byte) Level {
	return b&1 == 1
}

// ParseLevel accepts "low"/"high" (any case) and "0"/"1".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "low", "Low", "LOW", "0":
		return Low, nil
	case "high", "High", "HIGH", "1":
		return High, nil
	}
	return Low, fmt.Errorf("unknown level %q", s)
}

// Pull is the input bias of a line.
type Pull uint8

const (
	PullNoChange Pull = iota
	PullFloat
	PullDown
	PullUp
)

func (p Pull) String() string {
	switch p {
	case PullFloat:
		return "Float"
	case PullDown:
		return "PullDown"
	case PullUp:
		return "PullUp"
	default:
		return "PullNoChange"
	}
}

// ParsePull maps the config strings "none", "up" and "down" to a Pull.
func ParsePull(s string) (Pull, error) {
	switch s {
	case "", "none", "float":
		return PullFloat, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	}
	return PullNoChange, fmt.Errorf("unknown pull %q", s)
}

// Pin is a single digital line.
type Pin interface {
	fmt.Stringer
	// Out configures the pin as output and drives it to l.
	Out(l Level) error
	// In configures the pin as input with the given bias.
	In(pull Pull) error
	// Read returns the current level of the pin.
	Read() Level
}

// Provider opens the pin with the given number on some backend.
type Provider interface {
	Pin(number int) (Pin, error)
	Close() error
}
