//go:build !tinygo

package gpio

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpioProvider drives the Raspberry Pi GPIO block directly through
// /dev/gpiomem via go-rpio. Pin numbers are BCM numbers.
type rpioProvider struct{}

// OpenRPIO maps the GPIO registers. Close must be called on shutdown.
func OpenRPIO() (Provider, error) {
	slog.Info("Initialise GPIO using go-rpio...")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	return &rpioProvider{}, nil
}

func (p *rpioProvider) Pin(n int) (Pin, error) {
	if n < 0 || n > 53 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, n)
	}
	return &rpioPin{pin: rpio.Pin(n)}, nil
}

func (p *rpioProvider) Close() error {
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("failed to close rpio: %w", err)
	}
	return nil
}

type rpioPin struct {
	pin    rpio.Pin
	output bool
}

func (p *rpioPin) String() string { return fmt.Sprintf("GPIO%d", int(p.pin)) }

func (p *rpioPin) Out(l Level) error {
	// Set the level first so the line does not glitch when switching
	// from input to output.
	if l == High {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	if !p.output {
		p.pin.Output()
		p.output = true
	}
	return nil
}

func (p *rpioPin) In(pull Pull) error {
	p.pin.Input()
	p.output = false
	switch pull {
	case PullUp:
		p.pin.PullUp()
	case PullDown:
		p.pin.PullDown()
	case PullFloat:
		p.pin.PullOff()
	}
	return nil
}

func (p *rpioPin) Read() Level {
	return p.pin.Read() == rpio.High
}
