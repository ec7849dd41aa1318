package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commonHardware = `
Hardware:
  GPIOLibrary: periph
SPI:
  MOSI: 10
  MISO: 9
  SCK: 11
  CS: 8
  Delay: 20us
  Select: low
Logging:
  TUI:
    Level: "DEBUG"
    Format: "text"
    File: "/tmp/sramboard-tui.log"
  HW:
    Level: "WARN"
    Format: "json"
    File: "/var/log/sramboard-hw.log"
`

const validSRAM = `
SRAM:
  Mode: sequential
  StartupDelay: 500ms
  CycleDelay: 1s
  OnMismatch: continue
  Seed: 42
  Keep: 10
`

const validTracker = `
Tracker:
  PollDelay: 10ms
  Lockstep: true
  Channels:
    - { Name: mosi, Bit: 0, Pin: 5, Pull: up, Edge: falling, Record: toggle, Width: 12, Seed: low, Mirror: 10 }
    - { Name: miso, Bit: 3, Pin: 9, Edge: any, Width: 16 }
Display:
  Rows: 2
  Cols: 16
  Graphs:
    - { Channel: mosi, Row: 1, Col: 2, Width: 12, Label: true }
    - { Channel: miso, Row: 2, Col: 15, Width: 2 }
`

func getBaseConfig() string {
	return commonHardware + validSRAM + validTracker
}

func createConfigFile(t *testing.T, configData string) string {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yml")
	if err := os.WriteFile(configFile, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write dummy config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	conf, err := ReadConfig(configFile, true)
	require.NoError(t, err, "ReadConfig should not return an error")

	assert.True(t, conf.RealHW)
	assert.Equal(t, configFile, conf.Configfile)
	assert.Equal(t, "periph", conf.Hardware.GPIOLibrary)
	assert.Equal(t, 20*time.Microsecond, conf.SPI.Delay)
	assert.Equal(t, time.Second, conf.SRAM.CycleDelay)
	assert.Equal(t, "continue", conf.SRAM.OnMismatch)
	assert.Equal(t, uint64(42), conf.SRAM.Seed)
	assert.True(t, conf.Tracker.Lockstep)

	require.Len(t, conf.Tracker.Channels, 2)
	mosi := conf.Tracker.Channels[0]
	assert.Equal(t, "toggle", mosi.Record)
	require.NotNil(t, mosi.Mirror)
	assert.Equal(t, 10, *mosi.Mirror)
	assert.Nil(t, conf.Tracker.Channels[1].Mirror)

	assert.Equal(t, "DEBUG", conf.Logging.TUI.Level, "Logging.TUI.Level should be DEBUG")
	assert.Equal(t, "text", conf.Logging.TUI.Format, "Logging.TUI.Format should be text")
	assert.Equal(t, "/tmp/sramboard-tui.log", conf.Logging.TUI.File)
	assert.Equal(t, "WARN", conf.Logging.HW.Level, "Logging.HW.Level should be WARN")
	assert.Equal(t, "json", conf.Logging.HW.Format, "Logging.HW.Format should be json")
	assert.Equal(t, "/var/log/sramboard-hw.log", conf.Logging.HW.File)
}

func TestReadConfig_Defaults(t *testing.T) {
	configFile := createConfigFile(t, "")

	conf, err := ReadConfig(configFile, false)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Microsecond, conf.SPI.Delay)
	assert.Equal(t, 2*time.Second, conf.SRAM.CycleDelay)
	assert.Equal(t, 500*time.Millisecond, conf.SRAM.StartupDelay)
	assert.Equal(t, "halt", conf.SRAM.OnMismatch)
	assert.Equal(t, 10*time.Millisecond, conf.Tracker.PollDelay)
	assert.Len(t, conf.Tracker.Channels, 4)
	assert.Equal(t, DefaultGraphs(), conf.Display.Graphs)
	assert.False(t, conf.Display.LCD.Enabled)
	assert.Empty(t, conf.Report.MQTT.Broker, "reporting is off by default")
}

func TestDefaults_ChannelsOutlastGraphs(t *testing.T) {
	widths := map[string]uint{}
	for _, ch := range DefaultChannels() {
		widths[ch.Name] = ch.Width
	}
	for _, g := range DefaultGraphs() {
		assert.Greater(t, widths[g.Channel], uint(g.Width),
			"%s: the first drawn sample needs an older one to compare with", g.Channel)
	}
}

func TestReadConfig_ShippedFile(t *testing.T) {
	conf, err := ReadConfig(filepath.Join("..", "config.yml"), false)
	require.NoError(t, err)
	assert.True(t, conf.Tracker.Lockstep, "manual clocking records one sample per press")
	assert.Equal(t, "sequential", conf.SRAM.Mode)
	assert.Equal(t, DefaultChannels(), conf.Tracker.Channels)
	assert.Equal(t, DefaultGraphs(), conf.Display.Graphs)
	assert.False(t, Default().Tracker.Lockstep)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"), false)
	assert.ErrorContains(t, err, "can't read config file")
}

func TestReadConfig_UnknownField(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig()+"\nSensorLED:\n  Enabled: true\n")
	_, err := ReadConfig(configFile, false)
	assert.ErrorContains(t, err, "SensorLED")
}

func TestReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{"duplicate SPI pin", "  CS: 8", "  CS: 9", "already used by SPI.MISO"},
		{"pin out of range", "  SCK: 11", "  SCK: 54", "must be between 0 and 53"},
		{"zero spi delay", "Delay: 20us", "Delay: 0s", "SPI.Delay must be positive"},
		{"bad select", "Select: low", "Select: sideways", "unknown level"},
		{"bad library", "GPIOLibrary: periph", "GPIOLibrary: wiringpi", "must be rpio or periph"},
		{"bad mode", "Mode: sequential", "Mode: burst", "unknown sram mode"},
		{"bad policy", "OnMismatch: continue", "OnMismatch: retry", "unknown mismatch policy"},
		{"negative delay", "CycleDelay: 1s", "CycleDelay: -1s", "must be non-negative"},
		{"keep zero", "Keep: 10", "Keep: 0", "SRAM.Keep must be at least 1"},
		{"duplicate bit", "Bit: 3", "Bit: 0", "Bit 0 already used by \"mosi\""},
		{"bit range", "Bit: 3", "Bit: 8", "must be between 0 and 7"},
		{"width", "Width: 16 }", "Width: 33 }", "Width 33 must be between 1 and 32"},
		{"edge", "Edge: any", "Edge: rising", "unknown edge policy"},
		{"mirror on input", "Mirror: 10", "Mirror: 9", "is the input of \"miso\""},
		{"graph channel", "Channel: miso", "Channel: sck", "unknown channel \"sck\""},
		{"graph too wide", "Col: 15, Width: 2", "Col: 15, Width: 3", "does not fit"},
		{"label at col 1", "Col: 2, Width: 12", "Col: 1, Width: 12", "Col 1 must be between 2 and 16"},
		{"log level", "Level: \"WARN\"", "Level: \"LOUD\"", "Logging.HW.Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := getBaseConfig()
			require.Contains(t, data, tt.from)
			configFile := createConfigFile(t, strings.Replace(data, tt.from, tt.to, 1))

			_, err := ReadConfig(configFile, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	conf := Default()
	conf.Tracker.Channels = DefaultChannels()
	conf.Display.Graphs = DefaultGraphs()
	require.NoError(t, conf.Validate())

	conf.SPI.Delay = 0
	conf.Report.MQTT.Broker = "tcp://localhost:1883"
	conf.Report.MQTT.Topic = ""
	conf.Report.MQTT.QoS = 3
	err := conf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPI.Delay")
	assert.Contains(t, err.Error(), "Report.MQTT.Topic")
	assert.Contains(t, err.Error(), "QoS 3")
}

func TestValidate_LCDPins(t *testing.T) {
	conf := Default()
	conf.Tracker.Channels = DefaultChannels()
	conf.Display.LCD.Enabled = true
	require.NoError(t, conf.Validate())
	assert.Len(t, conf.Display.LCD.Pins(), 6, "RW tied to ground")

	conf.Display.LCD.D7 = conf.Display.LCD.D6
	assert.ErrorContains(t, conf.Validate(), "used twice")
}
