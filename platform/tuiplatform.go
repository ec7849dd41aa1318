package platform

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/logging"
	"lautenbacher.net/sramboard/sram"
	"lautenbacher.net/sramboard/util"
)

// pressTime is how long a simulated button stays pressed.
const pressTime = 80 * time.Millisecond

type button struct {
	name string
	pin  int
}

// TUIPlatform simulates the board in the terminal: the GPIO lines live on
// a gpio.SimBus with a simulated 23LC1024 attached to the SPI lines, the
// LCD is drawn from a display.Screen and the number keys press the
// buttons of the falling-edge channels.
type TUIPlatform struct {
	*AbstractPlatform
	bus          *gpio.SimBus
	chip         *sram.SimDevice
	screen       *display.Screen
	buttons      []button
	faulty       bool
	tviewapp     *tview.Application
	intro        *tview.TextView
	lcdView      *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	logFlushOnce sync.Once
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) *TUIPlatform {
	return &TUIPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		ossignalChan:     ossignalchan,
	}
}

// Holder does not wait: the simulated chip follows the lines instantly.
func (s *TUIPlatform) Holder() util.Holder {
	return util.NoHold{}
}

// Bus returns the simulated lines.
func (s *TUIPlatform) Bus() *gpio.SimBus {
	return s.bus
}

// Chip returns the simulated SRAM.
func (s *TUIPlatform) Chip() *sram.SimDevice {
	return s.chip
}

func (s *TUIPlatform) Start() error {
	if err := s.initSimulation(); err != nil {
		return err
	}
	s.initSimulationTUI()
	s.afterDraw = func() { s.tviewapp.QueueUpdateDraw(s.drawLCD) }
	return s.startDisplay(s.screen)
}

// initSimulation builds everything below the terminal UI.
func (s *TUIPlatform) initSimulation() error {
	s.bus = gpio.NewSimBus()
	s.registry = gpio.NewRegistry(s.bus)
	spiCfg := s.config.SPI
	s.chip = sram.NewSimDevice(s.bus, sram.SimLines{MOSI: spiCfg.MOSI, MISO: spiCfg.MISO, SCK: spiCfg.SCK, CS: spiCfg.CS})
	s.screen = display.NewScreen(s.config.Display.Rows, s.config.Display.Cols)

	s.buttons = nil
	for _, ch := range s.config.Tracker.Channels {
		if ch.Edge == "falling" {
			s.buttons = append(s.buttons, button{name: ch.Name, pin: ch.Pin})
		}
	}
	return nil
}

// press pulls the button's line low and releases it after pressTime.
func (s *TUIPlatform) press(index int) bool {
	if index < 0 || index >= len(s.buttons) {
		return false
	}
	b := s.buttons[index]
	slog.Debug("Pressing button", "name", b.name, "pin", b.pin)
	s.bus.Drive(b.pin, gpio.Low)
	time.AfterFunc(pressTime, func() { s.bus.Drive(b.pin, gpio.High) })
	return true
}

// toggleFault makes the simulated chip flip the lowest bit of every byte
// it returns.
func (s *TUIPlatform) toggleFault() {
	s.faulty = !s.faulty
	if s.faulty {
		s.chip.SetReadFault(func(_ uint32, b byte) byte { return b ^ 0x01 })
		slog.Warn("Simulated SRAM now corrupts reads")
	} else {
		s.chip.SetReadFault(nil)
		slog.Info("Simulated SRAM reads are clean again")
	}
}

func (s *TUIPlatform) getIntroText() string {
	var keys []string
	for i, b := range s.buttons {
		keys = append(keys, fmt.Sprintf("[blue]%d[-] %s", i+1, b.name))
	}
	line1 := "No buttons configured"
	if len(keys) > 0 {
		line1 = "Press " + strings.Join(keys, ", ")
	}
	fault := "[green]off[-]"
	if s.faulty {
		fault = "[red]on[-]"
	}
	line2 := fmt.Sprintf("Hit [#ff0000]f[-] to toggle read faults (now %s)", fault)
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}

// handleKey returns nil for consumed keys.
func (s *TUIPlatform) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		s.ossignalChan <- os.Interrupt
		return nil
	case tcell.KeyRune:
		r := event.Rune()
		if r >= '1' && r <= '9' {
			if s.press(int(r - '1')) {
				return nil
			}
		}
		switch r {
		case 'q', 'Q':
			s.ossignalChan <- os.Interrupt
			return nil
		case 'r', 'R':
			s.ossignalChan <- syscall.SIGHUP
			return nil
		case 'f', 'F':
			s.toggleFault()
			s.intro.SetText(s.getIntroText())
			return nil
		}
	case tcell.KeyUp:
		row, col := s.logView.GetScrollOffset()
		s.logView.ScrollTo(row-1, col)
		return nil
	case tcell.KeyDown:
		row, col := s.logView.GetScrollOffset()
		s.logView.ScrollTo(row+1, col)
		return nil
	}
	return event
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	// --- Intro Pane ---
	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" SRAM Board Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- LCD Pane ---
	s.lcdView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.lcdView.SetBorder(true).SetTitle(" LCD ").SetTitleColor(tcell.ColorLightBlue)
	s.lcdView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Log Pane ---
	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	// --- Layout ---
	lcdHeight := s.config.Display.Rows + 2 + 2 // rows, bus line and spacer, border
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.lcdView, lcdHeight, 0, false).
		AddItem(s.logView, 0, 1, true)

	// --- Flush logs after first draw ---
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logWriter := tview.ANSIWriter(s.logView)
			logging.SetOutput(logWriter)
			close(s.readyChan)
		})
	})

	s.tviewapp.SetInputCapture(s.handleKey)
	s.drawLCD()

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}

// lcdText renders the screen in a frame plus a line with the bus levels.
func (s *TUIPlatform) lcdText() string {
	var buf strings.Builder
	for _, line := range s.screen.Lines() {
		buf.WriteString(" [black:#90c040]")
		buf.WriteString(tview.Escape(line))
		buf.WriteString("[-:-]\n")
	}
	spi := s.config.SPI
	level := func(n int) string {
		if s.bus.Level(n) {
			return "[yellow]1[-]"
		}
		return "[gray]0[-]"
	}
	fmt.Fprintf(&buf, "\n CS %s  SCK %s  MOSI %s  MISO %s   SRAM %s mode, %d sessions",
		level(spi.CS), level(spi.SCK), level(spi.MOSI), level(spi.MISO), s.chip.Mode(), s.chip.Sessions())
	return buf.String()
}

// drawLCD must run on the TUI goroutine.
func (s *TUIPlatform) drawLCD() {
	s.lcdView.SetText(s.lcdText())
}

func (s *TUIPlatform) Stop() {
	s.stopDisplay()
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
	logging.BufferOutput()
}
