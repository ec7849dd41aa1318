package platform

import (
	"fmt"
	"log/slog"
	"strings"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/util"
)

const lcdOwner = "lcd"

type RaspberryPiPlatform struct {
	*AbstractPlatform
	open func(library string) (gpio.Provider, error)
	lcd  *display.HD44780
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	return &RaspberryPiPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		open:             gpio.Open,
	}
}

func (s *RaspberryPiPlatform) Holder() util.Holder {
	return util.BusyWait{}
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO...", "library", s.config.Hardware.GPIOLibrary)
	provider, err := s.open(s.config.Hardware.GPIOLibrary)
	if err != nil {
		return fmt.Errorf("failed to open GPIO: %w", err)
	}
	s.registry = gpio.NewRegistry(provider)

	var sink display.Sink
	if s.config.Display.LCD.Enabled {
		lcd, err := s.openLCD()
		if err != nil {
			s.closeGPIO()
			return err
		}
		s.lcd = lcd
		sink = lcd
	} else {
		// Without an LCD the screen content ends up in the log.
		screen := display.NewScreen(s.config.Display.Rows, s.config.Display.Cols)
		s.afterDraw = func() {
			slog.Debug("Display", "screen", strings.Join(screen.Lines(), " | "))
		}
		sink = screen
	}
	if err := s.startDisplay(sink); err != nil {
		s.closeGPIO()
		return fmt.Errorf("failed to init display: %w", err)
	}
	close(s.readyChan)
	return nil
}

func (s *RaspberryPiPlatform) openLCD() (*display.HD44780, error) {
	cfg := s.config.Display.LCD
	handles, err := s.registry.ClaimAll(lcdOwner, cfg.Pins()...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim LCD pins: %w", err)
	}
	pins := display.LCDPins{
		RS: handles[0], EN: handles[1],
		D4: handles[2], D5: handles[3], D6: handles[4], D7: handles[5],
	}
	if len(handles) > 6 {
		pins.RW = handles[6]
	}
	lcd := display.NewHD44780(pins, util.Sleep{}, s.config.Display.Rows, s.config.Display.Cols)
	if err := lcd.Init(); err != nil {
		s.registry.ReleaseOwner(lcdOwner)
		return nil, fmt.Errorf("failed to init LCD: %w", err)
	}
	slog.Info("LCD initialised", "rows", s.config.Display.Rows, "cols", s.config.Display.Cols)
	return lcd, nil
}

// Stop leaves the last screen content on the LCD.
func (s *RaspberryPiPlatform) Stop() {
	s.stopDisplay()
	s.closeGPIO()
}

func (s *RaspberryPiPlatform) closeGPIO() {
	if s.registry == nil {
		return
	}
	if err := s.registry.Close(); err != nil {
		slog.Error("Failed to close GPIO", "error", err)
	}
	s.registry = nil
}
