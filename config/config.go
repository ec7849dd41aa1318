package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/sram"
	"lautenbacher.net/sramboard/tracker"
)

const CONFILE = "config.yml"

// MaxGPIO is the highest BCM GPIO number of a Raspberry Pi.
const MaxGPIO = 53

type Config struct {
	RealHW     bool   `yaml:"-" json:"-"`
	Configfile string `yaml:"-" json:"-"`

	Hardware HardwareConfig `yaml:"Hardware"`
	SPI      SPIConfig      `yaml:"SPI"`
	SRAM     SRAMConfig     `yaml:"SRAM"`
	Tracker  TrackerConfig  `yaml:"Tracker"`
	Display  DisplayConfig  `yaml:"Display"`
	Logging  LoggingConfig  `yaml:"Logging"`
	Report   ReportConfig   `yaml:"Report"`
	Web      WebConfig      `yaml:"Web"`
}

type HardwareConfig struct {
	// GPIOLibrary selects the backend on real hardware: "rpio" or "periph".
	GPIOLibrary string `yaml:"GPIOLibrary"`
}

type SPIConfig struct {
	MOSI   int           `yaml:"MOSI"`
	MISO   int           `yaml:"MISO"`
	SCK    int           `yaml:"SCK"`
	CS     int           `yaml:"CS"`
	Delay  time.Duration `yaml:"Delay"`
	Select string        `yaml:"Select"`
}

type SRAMConfig struct {
	Mode         string        `yaml:"Mode" json:"Mode"`
	StartupDelay time.Duration `yaml:"StartupDelay" json:"StartupDelay"`
	CycleDelay   time.Duration `yaml:"CycleDelay" json:"CycleDelay"`
	OnMismatch   string        `yaml:"OnMismatch" json:"OnMismatch"`
	// Seed makes the address/data sequence reproducible; 0 picks a random seed.
	Seed uint64 `yaml:"Seed" json:"Seed"`
	Keep int    `yaml:"Keep" json:"Keep"`
}

type TrackerConfig struct {
	PollDelay time.Duration `yaml:"PollDelay" json:"PollDelay"`
	Lockstep  bool          `yaml:"Lockstep" json:"Lockstep"`
	Channels  []ChannelCfg  `yaml:"Channels" json:"-"`
}

type ChannelCfg struct {
	Name   string `yaml:"Name"`
	Bit    uint   `yaml:"Bit"`
	Pin    int    `yaml:"Pin"`
	Pull   string `yaml:"Pull"`
	Edge   string `yaml:"Edge"`
	Record string `yaml:"Record"`
	Width  uint   `yaml:"Width"`
	Seed   string `yaml:"Seed"`
	Mirror *int   `yaml:"Mirror,omitempty"`
}

type DisplayConfig struct {
	Rows   int        `yaml:"Rows"`
	Cols   int        `yaml:"Cols"`
	LCD    LCDConfig  `yaml:"LCD"`
	Graphs []GraphCfg `yaml:"Graphs"`
}

// LCDConfig wires an HD44780 in 4-bit mode. RW is -1 when tied to ground.
type LCDConfig struct {
	Enabled bool `yaml:"Enabled"`
	RS      int  `yaml:"RS"`
	EN      int  `yaml:"EN"`
	RW      int  `yaml:"RW"`
	D4      int  `yaml:"D4"`
	D5      int  `yaml:"D5"`
	D6      int  `yaml:"D6"`
	D7      int  `yaml:"D7"`
}

func (l LCDConfig) Pins() []int {
	pins := []int{l.RS, l.EN, l.D4, l.D5, l.D6, l.D7}
	if l.RW >= 0 {
		pins = append(pins, l.RW)
	}
	return pins
}

type GraphCfg struct {
	Channel string `yaml:"Channel"`
	Row     int    `yaml:"Row"`
	Col     int    `yaml:"Col"`
	Width   int    `yaml:"Width"`
	Label   bool   `yaml:"Label"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

type ReportConfig struct {
	MQTT MQTTConfig `yaml:"MQTT"`
}

type MQTTConfig struct {
	Broker   string `yaml:"Broker"`
	Topic    string `yaml:"Topic"`
	ClientID string `yaml:"ClientID"`
	QoS      byte   `yaml:"QoS"`
	Retained bool   `yaml:"Retained"`
}

type WebConfig struct {
	// Listen is the address of the runtime config API; empty disables it.
	Listen string `yaml:"Listen"`
}

func intp(i int) *int { return &i }

// Default returns the board as built: the SRAM on the Pi's SPI0 pins, three
// buttons on GPIO 5, 6 and 13 and a 16x2 LCD.
func Default() Config {
	return Config{
		Hardware: HardwareConfig{GPIOLibrary: "rpio"},
		SPI: SPIConfig{
			MOSI: 10, MISO: 9, SCK: 11, CS: 8,
			Delay:  10 * time.Microsecond,
			Select: "low",
		},
		SRAM: SRAMConfig{
			Mode:         "sequential",
			StartupDelay: 500 * time.Millisecond,
			CycleDelay:   2 * time.Second,
			OnMismatch:   "halt",
			Keep:         100,
		},
		Tracker: TrackerConfig{
			PollDelay: 10 * time.Millisecond,
		},
		Display: DisplayConfig{
			Rows: 2,
			Cols: 16,
			LCD: LCDConfig{
				RS: 25, EN: 24, RW: -1,
				D4: 23, D5: 18, D6: 15, D7: 14,
			},
		},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text"},
		},
		Report: ReportConfig{MQTT: MQTTConfig{Topic: "sramboard/results", ClientID: "sramboard"}},
	}
}

// DefaultChannels is the manual clocking experiment: three buttons clock
// MOSI, SCK and CS by hand, MISO is watched on the SRAM's output.
func DefaultChannels() []ChannelCfg {
	return []ChannelCfg{
		{Name: "mosi", Bit: 0, Pin: 5, Pull: "up", Edge: "falling", Record: "toggle", Width: 13, Seed: "low", Mirror: intp(10)},
		{Name: "sck", Bit: 1, Pin: 6, Pull: "up", Edge: "falling", Record: "toggle", Width: 13, Seed: "low", Mirror: intp(11)},
		{Name: "cs", Bit: 2, Pin: 13, Pull: "up", Edge: "falling", Record: "toggle", Width: 16, Seed: "high", Mirror: intp(8)},
		{Name: "miso", Bit: 3, Pin: 9, Pull: "float", Edge: "any", Record: "level", Width: 16},
	}
}

// DefaultGraphs matches DefaultChannels on a 16x2 display.
func DefaultGraphs() []GraphCfg {
	return []GraphCfg{
		{Channel: "mosi", Row: 1, Col: 2, Width: 12, Label: true},
		{Channel: "sck", Row: 2, Col: 2, Width: 12, Label: true},
		{Channel: "cs", Row: 1, Col: 15, Width: 2, Label: true},
		{Channel: "miso", Row: 2, Col: 15, Width: 2, Label: true},
	}
}

// ReadConfig decodes cfile over the defaults and validates the result.
func ReadConfig(cfile string, realhw bool) (*Config, error) {
	data, err := os.ReadFile(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", cfile, err)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", cfile, err)
	}
	conf.RealHW = realhw
	conf.Configfile = cfile
	return conf, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	conf := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode: %w", err)
	}
	if len(conf.Tracker.Channels) == 0 {
		conf.Tracker.Channels = DefaultChannels()
	}
	if conf.Display.Graphs == nil {
		conf.Display.Graphs = DefaultGraphs()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the whole configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	checkPin := func(what string, p int) {
		if p < 0 || p > MaxGPIO {
			add("%s: GPIO %d must be between 0 and %d", what, p, MaxGPIO)
		}
	}
	nonNegative := func(what string, d time.Duration) {
		if d < 0 {
			add("%s must be non-negative, got %s", what, d)
		}
	}

	switch c.Hardware.GPIOLibrary {
	case "rpio", "go-rpio", "periph", "periph.io":
	default:
		add("Hardware.GPIOLibrary %q must be rpio or periph", c.Hardware.GPIOLibrary)
	}

	// SPI
	spiPins := map[string]int{"SPI.MOSI": c.SPI.MOSI, "SPI.MISO": c.SPI.MISO, "SPI.SCK": c.SPI.SCK, "SPI.CS": c.SPI.CS}
	seen := map[int]string{}
	for _, name := range []string{"SPI.MOSI", "SPI.MISO", "SPI.SCK", "SPI.CS"} {
		p := spiPins[name]
		checkPin(name, p)
		if other, ok := seen[p]; ok {
			add("%s: GPIO %d already used by %s", name, p, other)
		}
		seen[p] = name
	}
	if c.SPI.Delay <= 0 {
		add("SPI.Delay must be positive, got %s", c.SPI.Delay)
	}
	if _, err := gpio.ParseLevel(c.SPI.Select); err != nil {
		add("SPI.Select: %v", err)
	}

	// SRAM
	if _, err := sram.ParseMode(c.SRAM.Mode); err != nil {
		add("SRAM.Mode: %v", err)
	}
	if _, err := sram.ParseOnMismatch(c.SRAM.OnMismatch); err != nil {
		add("SRAM.OnMismatch: %v", err)
	}
	nonNegative("SRAM.StartupDelay", c.SRAM.StartupDelay)
	nonNegative("SRAM.CycleDelay", c.SRAM.CycleDelay)
	if c.SRAM.Keep < 1 {
		add("SRAM.Keep must be at least 1, got %d", c.SRAM.Keep)
	}

	// Tracker
	if c.Tracker.PollDelay <= 0 {
		add("Tracker.PollDelay must be positive, got %s", c.Tracker.PollDelay)
	}
	if n := len(c.Tracker.Channels); n > 8 {
		add("Tracker.Channels: at most 8 channels, got %d", n)
	}
	names := map[string]bool{}
	bits := map[uint]string{}
	inputs := map[int]string{}
	for i, ch := range c.Tracker.Channels {
		what := fmt.Sprintf("Tracker.Channels[%d] %q", i, ch.Name)
		if ch.Name == "" {
			add("Tracker.Channels[%d]: Name must not be empty", i)
		} else if names[ch.Name] {
			add("%s: duplicate name", what)
		}
		names[ch.Name] = true
		if ch.Bit > 7 {
			add("%s: Bit %d must be between 0 and 7", what, ch.Bit)
		} else if other, ok := bits[ch.Bit]; ok {
			add("%s: Bit %d already used by %q", what, ch.Bit, other)
		}
		bits[ch.Bit] = ch.Name
		checkPin(what+" Pin", ch.Pin)
		if other, ok := inputs[ch.Pin]; ok {
			add("%s: GPIO %d already used by %q", what, ch.Pin, other)
		}
		inputs[ch.Pin] = ch.Name
		if ch.Width < 1 || ch.Width > tracker.MaxWidth {
			add("%s: Width %d must be between 1 and %d", what, ch.Width, tracker.MaxWidth)
		}
		if _, err := gpio.ParsePull(ch.Pull); err != nil {
			add("%s: %v", what, err)
		}
		if _, err := tracker.ParseEdgePolicy(ch.Edge); err != nil {
			add("%s: %v", what, err)
		}
		if _, err := tracker.ParseRecord(ch.Record); err != nil {
			add("%s: %v", what, err)
		}
		if _, err := tracker.ParseSeedMode(ch.Seed); err != nil {
			add("%s: %v", what, err)
		}
	}
	for i, ch := range c.Tracker.Channels {
		if ch.Mirror == nil {
			continue
		}
		what := fmt.Sprintf("Tracker.Channels[%d] %q", i, ch.Name)
		checkPin(what+" Mirror", *ch.Mirror)
		if other, ok := inputs[*ch.Mirror]; ok {
			add("%s: Mirror GPIO %d is the input of %q", what, *ch.Mirror, other)
		}
	}

	// Display
	if c.Display.Rows < 1 || c.Display.Rows > 4 {
		add("Display.Rows %d must be between 1 and 4", c.Display.Rows)
	}
	if c.Display.Cols < 8 || c.Display.Cols > 40 {
		add("Display.Cols %d must be between 8 and 40", c.Display.Cols)
	}
	if c.Display.LCD.Enabled {
		lcdSeen := map[int]bool{}
		for _, p := range c.Display.LCD.Pins() {
			checkPin("Display.LCD", p)
			if lcdSeen[p] {
				add("Display.LCD: GPIO %d used twice", p)
			}
			lcdSeen[p] = true
		}
	}
	for i, g := range c.Display.Graphs {
		what := fmt.Sprintf("Display.Graphs[%d]", i)
		if !names[g.Channel] {
			add("%s: unknown channel %q", what, g.Channel)
		}
		minCol := 1
		if g.Label {
			minCol = 2
		}
		if g.Row < 1 || g.Row > c.Display.Rows {
			add("%s: Row %d must be between 1 and %d", what, g.Row, c.Display.Rows)
		}
		if g.Col < minCol || g.Col > c.Display.Cols {
			add("%s: Col %d must be between %d and %d", what, g.Col, minCol, c.Display.Cols)
		}
		if g.Width < 1 || g.Col+g.Width-1 > c.Display.Cols {
			add("%s: Width %d does not fit into %d columns from Col %d", what, g.Width, c.Display.Cols, g.Col)
		}
	}

	// Logging
	for _, lc := range []struct {
		name string
		l    LogConfig
	}{{"Logging.TUI", c.Logging.TUI}, {"Logging.HW", c.Logging.HW}} {
		name, l := lc.name, lc.l
		switch strings.ToUpper(l.Level) {
		case "", "DEBUG", "INFO", "WARN", "ERROR":
		default:
			add("%s.Level %q must be DEBUG, INFO, WARN or ERROR", name, l.Level)
		}
		switch strings.ToLower(l.Format) {
		case "", "text", "json":
		default:
			add("%s.Format %q must be text or json", name, l.Format)
		}
	}

	// Report
	if c.Report.MQTT.Broker != "" && c.Report.MQTT.Topic == "" {
		add("Report.MQTT.Topic must be set when a broker is configured")
	}
	if c.Report.MQTT.QoS > 2 {
		add("Report.MQTT.QoS %d must be 0, 1 or 2", c.Report.MQTT.QoS)
	}

	return errors.Join(errs...)
}
