//go:build !tinygo

package gpio

import (
	"fmt"
	"strings"
)

// Open returns the provider for the configured GPIO library.
func Open(library string) (Provider, error) {
	switch strings.ToLower(library) {
	case "periph", "periph.io":
		return OpenPeriph()
	case "rpio", "go-rpio":
		return OpenRPIO()
	case "sim":
		return NewSimBus(), nil
	default:
		return nil, fmt.Errorf("unknown GPIO library: %s", library)
	}
}
