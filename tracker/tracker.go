// Package tracker keeps a rolling bit history of a few digital inputs.
//
// Each poll samples all inputs into one byte, flags the channels whose
// edge policy fired and shifts the new level into their history
// registers. Histories can be mirrored back onto output pins, which turns
// the buttons of the manual experiment into a hand-clocked SPI bus.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"

	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/util"
)

var (
	ErrNotRunning     = errors.New("tracker not started")
	ErrAlreadyRunning = errors.New("tracker already started")
)

// MaxWidth is the widest supported history register.
const MaxWidth = 32

// EdgePolicy decides which transitions of a channel count.
type EdgePolicy int

const (
	// AnyEdge flags every level change.
	AnyEdge EdgePolicy = iota
	// FallingEdge flags only High to Low, i.e. the press of a button
	// with pull-up. Bounce settles between two polls.
	FallingEdge
)

func (p EdgePolicy) String() string {
	if p == FallingEdge {
		return "falling"
	}
	return "any"
}

func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch s {
	case "", "any":
		return AnyEdge, nil
	case "falling":
		return FallingEdge, nil
	}
	return AnyEdge, fmt.Errorf("unknown edge policy %q", s)
}

// Record decides which level a flagged channel pushes into its history.
type Record int

const (
	// RecordLevel pushes the freshly sampled level.
	RecordLevel Record = iota
	// RecordToggle pushes the inverse of the newest history bit, so each
	// event flips the (mirrored) line.
	RecordToggle
)

func ParseRecord(s string) (Record, error) {
	switch s {
	case "", "level":
		return RecordLevel, nil
	case "toggle":
		return RecordToggle, nil
	}
	return RecordLevel, fmt.Errorf("unknown record mode %q", s)
}

// SeedMode selects the initial level of a history.
type SeedMode int

const (
	SeedSample SeedMode = iota
	SeedLow
	SeedHigh
)

func ParseSeedMode(s string) (SeedMode, error) {
	switch s {
	case "", "sample":
		return SeedSample, nil
	case "low":
		return SeedLow, nil
	case "high":
		return SeedHigh, nil
	}
	return SeedSample, fmt.Errorf("unknown seed %q", s)
}

// ChannelConfig describes one monitored line.
type ChannelConfig struct {
	Name string
	// Bit is the position of the channel in the sampled byte.
	Bit    uint
	Input  gpio.Pin
	Pull   gpio.Pull
	Policy EdgePolicy
	Record Record
	Width  uint
	Seed   SeedMode
	// Mirror, if set, is driven with the newest history bit.
	Mirror gpio.Pin
}

// Options apply to the whole tracker.
type Options struct {
	// Lockstep shifts every history whenever any channel changed, so the
	// graphs of all channels scroll together.
	Lockstep bool
}

// State is the lifecycle of a Tracker.
type State int

const (
	Uninitialized State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "uninitialized"
}

type channel struct {
	ChannelConfig
	history uint32
	updates uint64
}

// Tracker samples the configured channels and maintains their histories.
// It is not safe for concurrent use; consumers in other goroutines read
// the snapshots published through Latest.
type Tracker struct {
	channels    []*channel
	anyMask     byte
	fallMask    byte
	lockstep    bool
	state       State
	prev        byte
	lastChanges byte
	polls       uint64
	latest      *util.Latest[Snapshot]
}

// New validates the channel layout. No pin is touched before Start.
func New(cfgs []ChannelConfig, opts Options) (*Tracker, error) {
	if len(cfgs) == 0 || len(cfgs) > 8 {
		return nil, fmt.Errorf("tracker needs 1 to 8 channels, got %d", len(cfgs))
	}
	t := &Tracker{
		lockstep: opts.Lockstep,
		latest:   util.NewLatest[Snapshot](),
	}
	names := make(map[string]bool, len(cfgs))
	var used byte
	for _, cfg := range cfgs {
		if cfg.Name == "" {
			return nil, errors.New("channel without name")
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("duplicate channel %q", cfg.Name)
		}
		names[cfg.Name] = true
		if cfg.Bit > 7 {
			return nil, fmt.Errorf("channel %q: bit %d out of range 0..7", cfg.Name, cfg.Bit)
		}
		bit := byte(1) << cfg.Bit
		if used&bit != 0 {
			return nil, fmt.Errorf("channel %q: bit %d already in use", cfg.Name, cfg.Bit)
		}
		used |= bit
		if cfg.Width == 0 || cfg.Width > MaxWidth {
			return nil, fmt.Errorf("channel %q: width %d out of range 1..%d", cfg.Name, cfg.Width, MaxWidth)
		}
		if cfg.Input == nil {
			return nil, fmt.Errorf("channel %q: no input pin", cfg.Name)
		}
		switch cfg.Policy {
		case AnyEdge:
			t.anyMask |= bit
		case FallingEdge:
			t.fallMask |= bit
		default:
			return nil, fmt.Errorf("channel %q: unknown edge policy %d", cfg.Name, cfg.Policy)
		}
		t.channels = append(t.channels, &channel{ChannelConfig: cfg})
	}
	return t, nil
}

func (t *Tracker) State() State { return t.state }

// Latest publishes every snapshot rendered by Start and Poll.
func (t *Tracker) Latest() *util.Latest[Snapshot] { return t.latest }

// Start configures the inputs, seeds every history from the first sample
// (or the configured seed) and drives the mirrors. It moves the tracker
// from Uninitialized to Running and can only be called once.
func (t *Tracker) Start() (Snapshot, error) {
	if t.state == Running {
		return Snapshot{}, ErrAlreadyRunning
	}
	for _, c := range t.channels {
		if err := c.Input.In(c.Pull); err != nil {
			return Snapshot{}, fmt.Errorf("channel %q: configure input: %w", c.Name, err)
		}
	}
	sample := t.Sample()
	for _, c := range t.channels {
		level := gpio.LevelOf(sample >> c.Bit)
		switch c.Seed {
		case SeedLow:
			level = gpio.Low
		case SeedHigh:
			level = gpio.High
		}
		c.history = Seed[uint32](level, c.Width)
		c.updates = 0
	}
	if err := t.driveMirrors(); err != nil {
		return Snapshot{}, err
	}
	t.prev = sample
	t.lastChanges = 0
	t.state = Running

	snap := t.Render()
	t.latest.Publish(snap)
	slog.Debug("Tracker started", "sample", fmt.Sprintf("%08b", sample), "channels", len(t.channels))
	return snap, nil
}

// Sample reads every input and packs it into one byte.
func (t *Tracker) Sample() byte {
	var s byte
	for _, c := range t.channels {
		s |= c.Input.Read().Bit() << c.Bit
	}
	return s
}

// DetectChanges applies the tracker's edge policies to two samples.
func (t *Tracker) DetectChanges(prev, cur byte) byte {
	return DetectChanges(prev, cur, t.anyMask, t.fallMask)
}

// DetectChanges flags the bits of anyMask that differ between prev and
// cur and the bits of fallMask that went from 1 to 0.
func DetectChanges(prev, cur, anyMask, fallMask byte) byte {
	return (prev^cur)&anyMask | (prev&^cur)&fallMask
}

// Apply shifts the history of every flagged channel (every channel in
// lockstep mode) and then drives the mirrors. current is the sample the
// changes were detected on.
func (t *Tracker) Apply(changes, current byte) error {
	if changes == 0 {
		return nil
	}
	for _, c := range t.channels {
		flagged := changes>>c.Bit&1 == 1
		if !flagged && !t.lockstep {
			continue
		}
		level := Newest(c.history)
		if flagged {
			switch c.Record {
			case RecordToggle:
				level = !level
			default:
				level = gpio.LevelOf(current >> c.Bit)
			}
			c.updates++
		}
		c.history = Shift(c.history, level, c.Width)
	}
	t.lastChanges = changes
	return t.driveMirrors()
}

func (t *Tracker) driveMirrors() error {
	var firstErr error
	for _, c := range t.channels {
		if c.Mirror == nil {
			continue
		}
		if err := c.Mirror.Out(Newest(c.history)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("channel %q: drive mirror %s: %w", c.Name, c.Mirror, err)
		}
	}
	return firstErr
}

// Render returns the current histories, oldest bit first.
func (t *Tracker) Render() Snapshot {
	snap := Snapshot{
		Channels: make([]ChannelSnapshot, len(t.channels)),
		Sample:   t.prev,
		Changes:  t.lastChanges,
		Polls:    t.polls,
	}
	for i, c := range t.channels {
		snap.Channels[i] = ChannelSnapshot{
			Name:    c.Name,
			Bits:    c.history,
			Width:   c.Width,
			Updates: c.updates,
		}
	}
	return snap
}

// Poll runs one complete iteration: sample, detect, apply and render.
// The snapshot is published only after all histories were updated. When
// nothing changed Poll returns false and an empty snapshot.
func (t *Tracker) Poll() (Snapshot, bool, error) {
	if t.state != Running {
		return Snapshot{}, false, ErrNotRunning
	}
	cur := t.Sample()
	changes := t.DetectChanges(t.prev, cur)
	t.prev = cur
	t.polls++
	if changes == 0 {
		return Snapshot{}, false, nil
	}
	err := t.Apply(changes, cur)
	snap := t.Render()
	t.latest.Publish(snap)
	return snap, true, err
}
