package platform

import (
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/util"
)

// Platform defines the interface for abstracting away the real hardware
// from the TUI simulation.
type Platform interface {
	// Start opens the GPIO backend and the display, or starts the TUI.
	Start() error

	// Stop flushes pending display updates and releases all resources.
	Stop()

	// Ready is closed once the platform can be used and log output has
	// its final destination.
	Ready() <-chan bool

	// Pins hands out exclusive pin handles.
	Pins() *gpio.Registry

	// Show queues a display update. Updates run in order on a dedicated
	// goroutine so slow displays never stall the caller's timing loop.
	Show(fn func(display.Sink) error)

	// Holder is the wait used for protocol timing on this platform.
	Holder() util.Holder
}
