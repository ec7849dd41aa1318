package platform

import (
	"log/slog"
	"sync"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
)

const displayQueue = 16

type AbstractPlatform struct {
	config          *config.Config
	registry        *gpio.Registry
	sink            display.Sink
	afterDraw       func()
	displayChan     chan func(display.Sink) error
	displayWg       sync.WaitGroup
	displayStopChan chan bool
	readyChan       chan bool
	shutdownMutex   sync.RWMutex
	isShuttingDown  bool
}

func newAbstractPlatform(conf *config.Config) *AbstractPlatform {
	return &AbstractPlatform{
		config:          conf,
		displayChan:     make(chan func(display.Sink) error, displayQueue),
		displayStopChan: make(chan bool),
		readyChan:       make(chan bool),
	}
}

func (s *AbstractPlatform) Pins() *gpio.Registry {
	return s.registry
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) Show(fn func(display.Sink) error) {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	if s.isShuttingDown {
		return
	}
	select {
	case s.displayChan <- fn:
	case <-s.displayStopChan:
	}
}

// startDisplay installs the sink and starts the display driver.
func (s *AbstractPlatform) startDisplay(sink display.Sink) error {
	s.sink = sink
	if err := display.RegisterAll(sink, display.DefaultGlyphs); err != nil {
		return err
	}
	s.displayWg.Add(1)
	go s.displayDriver()
	return nil
}

// stopDisplay refuses new updates, draws the queued ones and waits for
// the driver to finish.
func (s *AbstractPlatform) stopDisplay() {
	s.shutdownMutex.Lock()
	if s.isShuttingDown {
		s.shutdownMutex.Unlock()
		return
	}
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()

	close(s.displayStopChan)
	s.displayWg.Wait()
}

func (s *AbstractPlatform) draw(fn func(display.Sink) error) {
	if err := fn(s.sink); err != nil {
		slog.Error("Display update failed", "error", err)
	}
	if s.afterDraw != nil {
		s.afterDraw()
	}
}

func (s *AbstractPlatform) displayDriver() {
	defer s.displayWg.Done()
	for {
		select {
		case <-s.displayStopChan:
			for {
				select {
				case fn := <-s.displayChan:
					s.draw(fn)
				default:
					slog.Info("Ending DisplayDriver go-routine...")
					return
				}
			}
		case fn := <-s.displayChan:
			s.draw(fn)
		}
	}
}
