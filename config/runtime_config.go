package config

// RuntimeConfig is the subset of the configuration that can be changed
// while the board is running. Pin assignments are not part of it.
type RuntimeConfig struct {
	SRAM    SRAMConfig    `yaml:"SRAM" json:"SRAM"`
	Tracker TrackerConfig `yaml:"Tracker" json:"Tracker"`
}

func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{SRAM: c.SRAM, Tracker: c.Tracker}
}

// MergeRuntime copies r into c. Channel layout is kept.
func (c *Config) MergeRuntime(r RuntimeConfig) {
	c.SRAM = r.SRAM
	c.Tracker.PollDelay = r.Tracker.PollDelay
	c.Tracker.Lockstep = r.Tracker.Lockstep
}
