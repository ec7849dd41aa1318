//go:build !tinygo

package gpio

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphProvider resolves pins by name ("GPIO<n>") through the periph.io
// registry, which works on any host periph supports.
type periphProvider struct {
	pins []gpio.PinIO
}

// OpenPeriph initialises the periph.io host drivers.
func OpenPeriph() (Provider, error) {
	slog.Info("Initialise GPIO using periph.io...")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	return &periphProvider{}, nil
}

func (p *periphProvider) Pin(n int) (Pin, error) {
	name := fmt.Sprintf("GPIO%d", n)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
	}
	p.pins = append(p.pins, pin)
	return &periphPin{PinIO: pin}, nil
}

// Close halts every pin handed out so no line is left driven.
func (p *periphProvider) Close() error {
	var firstErr error
	for _, pin := range p.pins {
		if err := pin.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to halt %s: %w", pin, err)
		}
	}
	p.pins = nil
	return firstErr
}

// periphPin wraps a gpio.PinIO to satisfy the Pin interface.
type periphPin struct {
	gpio.PinIO
}

func (p *periphPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *periphPin) In(pull Pull) error {
	var pPull gpio.Pull
	switch pull {
	case PullFloat:
		pPull = gpio.Float
	case PullDown:
		pPull = gpio.PullDown
	case PullUp:
		pPull = gpio.PullUp
	default:
		pPull = gpio.PullNoChange
	}
	return p.PinIO.In(pPull, gpio.NoEdge)
}

func (p *periphPin) Read() Level {
	return p.PinIO.Read() == gpio.High
}
