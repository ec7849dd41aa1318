//go:build tinygo

package gpio

import (
	"fmt"
	"machine"
)

// machineProvider exposes microcontroller pins when built with TinyGo.
type machineProvider struct{}

// Open ignores the library name: TinyGo targets only have machine pins.
func Open(string) (Provider, error) {
	return machineProvider{}, nil
}

func (machineProvider) Pin(n int) (Pin, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, n)
	}
	return &machinePin{pin: machine.Pin(n)}, nil
}

func (machineProvider) Close() error { return nil }

type machinePin struct {
	pin machine.Pin
}

func (p *machinePin) String() string { return fmt.Sprintf("P%d", int(p.pin)) }

func (p *machinePin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *machinePin) In(pull Pull) error {
	mode := machine.PinInput
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	}
	p.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p *machinePin) Read() Level {
	return Level(p.pin.Get())
}
