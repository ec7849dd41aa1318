package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/sramboard/gpio"
)

func TestShift_RecordsLevelNotEdge(t *testing.T) {
	var h uint16
	h = Shift(h, gpio.High, 4)
	assert.Equal(t, uint16(0b0001), h)
	h = Shift(h, gpio.High, 4)
	assert.Equal(t, uint16(0b0011), h, "a repeated level is recorded again")
	h = Shift(h, gpio.Low, 4)
	assert.Equal(t, uint16(0b0110), h)
	h = Shift(h, gpio.Low, 4)
	assert.Equal(t, uint16(0b1100), h)
	h = Shift(h, gpio.Low, 4)
	assert.Equal(t, uint16(0b1000), h)
	h = Shift(h, gpio.Low, 4)
	assert.Equal(t, uint16(0b0000), h, "bits beyond the width are dropped")
}

func TestShift_AlternatingFillsWidth(t *testing.T) {
	for _, width := range []uint{1, 2, 4, 12, 32} {
		h := Seed[uint32](gpio.Low, width)
		level := gpio.Low
		for i := uint(0); i < width; i++ {
			level = !level
			h = Shift(h, level, width)
		}
		want := ChannelSnapshot{Bits: h, Width: width}.String()
		assert.Len(t, want, int(width))
		for i := range want {
			exp := byte('1')
			if i%2 == 1 {
				exp = '0'
			}
			assert.Equal(t, exp, want[i], "width %d pattern %s", width, want)
		}
	}

	h := Seed[uint8](gpio.High, 4)
	for _, l := range []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High} {
		h = Shift(h, l, 4)
	}
	assert.Equal(t, "0101", ChannelSnapshot{Bits: uint32(h), Width: 4}.String())
}

func TestSeedAndMask(t *testing.T) {
	assert.Equal(t, uint16(0x0FFF), Seed[uint16](gpio.High, 12))
	assert.Equal(t, uint16(0), Seed[uint16](gpio.Low, 12))
	assert.Equal(t, uint8(0xFF), Mask[uint8](8))
	assert.Equal(t, uint8(0xFF), Mask[uint8](20))
	assert.Equal(t, uint32(0xFFFFFFFF), Mask[uint32](32))
	assert.Equal(t, gpio.High, Newest(uint8(0b10_1)))
}

func TestDetectChanges(t *testing.T) {
	const anyMask, fallMask = 0b0001, 0b0010

	// Any-edge channel flags both directions.
	assert.Equal(t, byte(0b0001), DetectChanges(0b0000, 0b0001, anyMask, fallMask))
	assert.Equal(t, byte(0b0001), DetectChanges(0b0001, 0b0000, anyMask, fallMask))

	// Falling-edge channel flags only 1 -> 0.
	assert.Equal(t, byte(0), DetectChanges(0b0000, 0b0010, anyMask, fallMask))
	assert.Equal(t, byte(0b0010), DetectChanges(0b0010, 0b0000, anyMask, fallMask))

	// Bits outside both masks are ignored.
	assert.Equal(t, byte(0), DetectChanges(0b0000, 0b1100, anyMask, fallMask))
}

type rig struct {
	bus *gpio.SimBus
	tr  *Tracker
}

// newRig builds channel 0 (any edge, line 1) and channel 1 (falling
// edge, line 2), both width 4.
func newRig(t *testing.T, opts Options, mutate func(*gpio.SimBus, []ChannelConfig)) *rig {
	t.Helper()
	bus := gpio.NewSimBus()
	in0, _ := bus.Pin(1)
	in1, _ := bus.Pin(2)
	cfgs := []ChannelConfig{
		{Name: "ch0", Bit: 0, Input: in0, Policy: AnyEdge, Width: 4},
		{Name: "ch1", Bit: 1, Input: in1, Policy: FallingEdge, Width: 4},
	}
	if mutate != nil {
		mutate(bus, cfgs)
	}
	tr, err := New(cfgs, opts)
	require.NoError(t, err)
	return &rig{bus: bus, tr: tr}
}

func (r *rig) history(t *testing.T, snap Snapshot, name string) string {
	t.Helper()
	c, ok := snap.Channel(name)
	require.True(t, ok, "channel %s", name)
	return c.String()
}

func TestScenario_RisingOnFallingChannelIsIgnored(t *testing.T) {
	r := newRig(t, Options{}, nil)
	start, err := r.tr.Start()
	require.NoError(t, err)
	assert.Equal(t, byte(0b0000), start.Sample)
	assert.Equal(t, "0000", r.history(t, start, "ch0"))
	assert.Equal(t, "0000", r.history(t, start, "ch1"))

	r.bus.Drive(1, gpio.High)
	r.bus.Drive(2, gpio.High)
	cur := r.tr.Sample()
	assert.Equal(t, byte(0b0011), cur)
	assert.Equal(t, byte(0b0001), r.tr.DetectChanges(0b0000, cur))

	snap, changed, err := r.tr.Poll()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, byte(0b0001), snap.Changes)
	assert.Equal(t, "0001", r.history(t, snap, "ch0"))
	assert.Equal(t, "0000", r.history(t, snap, "ch1"), "0->1 on a falling-edge channel leaves it unchanged")
}

func TestScenario_FallingEdgeShiftsInZero(t *testing.T) {
	r := newRig(t, Options{}, nil)
	r.bus.Drive(2, gpio.High)
	start, err := r.tr.Start()
	require.NoError(t, err)
	assert.Equal(t, "1111", r.history(t, start, "ch1"), "a line starting high is seeded all ones")

	r.bus.Drive(2, gpio.Low)
	snap, changed, err := r.tr.Poll()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, byte(0b0010), snap.Changes&0b0010)
	assert.Equal(t, "1110", r.history(t, snap, "ch1"))
	assert.Equal(t, "0000", r.history(t, snap, "ch0"))
}

func TestPoll_NoChangeNoUpdate(t *testing.T) {
	r := newRig(t, Options{}, nil)
	_, err := r.tr.Start()
	require.NoError(t, err)
	_, before := r.tr.Latest().Load()

	snap, changed, err := r.tr.Poll()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, snap.Channels)
	_, after := r.tr.Latest().Load()
	assert.Equal(t, before, after, "nothing is published without a change")
}

func TestAnyEdgeChannelFlagsEveryFlip(t *testing.T) {
	r := newRig(t, Options{}, nil)
	_, err := r.tr.Start()
	require.NoError(t, err)

	level := gpio.Low
	var snap Snapshot
	for i := 0; i < 4; i++ {
		level = !level
		r.bus.Drive(1, level)
		var changed bool
		snap, changed, err = r.tr.Poll()
		require.NoError(t, err)
		require.True(t, changed, "flip %d", i)
	}
	assert.Equal(t, "1010", r.history(t, snap, "ch0"))
	c, _ := snap.Channel("ch0")
	assert.Equal(t, uint64(4), c.Updates)
	assert.Equal(t, uint64(4), snap.Polls)
}

func TestLifecycle(t *testing.T) {
	r := newRig(t, Options{}, nil)
	assert.Equal(t, Uninitialized, r.tr.State())
	_, _, err := r.tr.Poll()
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = r.tr.Start()
	require.NoError(t, err)
	assert.Equal(t, Running, r.tr.State())
	_, err = r.tr.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestToggleRecordAndMirror(t *testing.T) {
	r := newRig(t, Options{}, func(bus *gpio.SimBus, cfgs []ChannelConfig) {
		mirror, _ := bus.Pin(10)
		cfgs[1].Record = RecordToggle
		cfgs[1].Pull = gpio.PullUp
		cfgs[1].Seed = SeedLow
		cfgs[1].Mirror = mirror
	})
	snap, err := r.tr.Start()
	require.NoError(t, err)
	assert.Equal(t, gpio.High, r.bus.Level(2), "button input pulled up")
	assert.Equal(t, "0000", r.history(t, snap, "ch1"), "explicit low seed")
	assert.Equal(t, gpio.Low, r.bus.Level(10))

	press := func() Snapshot {
		r.bus.Drive(2, gpio.Low)
		s, changed, err := r.tr.Poll()
		require.NoError(t, err)
		require.True(t, changed)
		r.bus.Drive(2, gpio.High)
		_, changed, err = r.tr.Poll()
		require.NoError(t, err)
		require.False(t, changed, "release is not an event")
		return s
	}

	snap = press()
	assert.Equal(t, "0001", r.history(t, snap, "ch1"))
	assert.Equal(t, gpio.High, r.bus.Level(10), "mirror follows the newest bit")
	snap = press()
	assert.Equal(t, "0010", r.history(t, snap, "ch1"))
	assert.Equal(t, gpio.Low, r.bus.Level(10))
}

func TestLockstepShiftsAllChannels(t *testing.T) {
	r := newRig(t, Options{Lockstep: true}, nil)
	r.bus.Drive(2, gpio.High)
	_, err := r.tr.Start()
	require.NoError(t, err)

	r.bus.Drive(1, gpio.High)
	snap, changed, err := r.tr.Poll()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, "0001", r.history(t, snap, "ch0"))
	assert.Equal(t, "1111", r.history(t, snap, "ch1"))
	c, _ := snap.Channel("ch1")
	assert.Equal(t, uint64(0), c.Updates, "a repeated bit is not an update")

	r.bus.Drive(2, gpio.Low)
	snap, _, err = r.tr.Poll()
	require.NoError(t, err)
	assert.Equal(t, "0011", r.history(t, snap, "ch0"))
	assert.Equal(t, "1110", r.history(t, snap, "ch1"))
}

func TestGlyphs(t *testing.T) {
	c := ChannelSnapshot{Bits: 0b0110, Width: 4}
	assert.Equal(t, []byte{GlyphLow, GlyphRising, GlyphHigh, GlyphFalling}, c.Glyphs())
	c = ChannelSnapshot{Bits: 0b11, Width: 2}
	assert.Equal(t, []byte{GlyphHigh, GlyphHigh}, c.Glyphs())
}

func TestNew_Validation(t *testing.T) {
	bus := gpio.NewSimBus()
	in, _ := bus.Pin(1)

	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New([]ChannelConfig{{Name: "a", Bit: 8, Input: in, Width: 4}}, Options{})
	assert.ErrorContains(t, err, "out of range 0..7")

	_, err = New([]ChannelConfig{
		{Name: "a", Bit: 1, Input: in, Width: 4},
		{Name: "b", Bit: 1, Input: in, Width: 4},
	}, Options{})
	assert.ErrorContains(t, err, "already in use")

	_, err = New([]ChannelConfig{{Name: "a", Input: in, Width: 33}}, Options{})
	assert.ErrorContains(t, err, "width 33")

	_, err = New([]ChannelConfig{{Name: "a", Width: 4}}, Options{})
	assert.ErrorContains(t, err, "no input pin")

	_, err = New([]ChannelConfig{{Name: "a", Input: in, Width: 2}, {Name: "a", Bit: 1, Input: in, Width: 2}}, Options{})
	assert.ErrorContains(t, err, "duplicate channel")
}

func TestParsers(t *testing.T) {
	p, err := ParseEdgePolicy("falling")
	require.NoError(t, err)
	assert.Equal(t, FallingEdge, p)
	_, err = ParseEdgePolicy("rising")
	assert.Error(t, err)

	rec, err := ParseRecord("toggle")
	require.NoError(t, err)
	assert.Equal(t, RecordToggle, rec)

	s, err := ParseSeedMode("")
	require.NoError(t, err)
	assert.Equal(t, SeedSample, s)
	_, err = ParseSeedMode("middle")
	assert.Error(t, err)
}
