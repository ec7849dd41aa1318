package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
)

func newTestPlatform(t *testing.T) (*AbstractPlatform, *display.Screen) {
	t.Helper()
	conf := config.Default()
	p := newAbstractPlatform(&conf)
	screen := display.NewScreen(2, 16)
	require.NoError(t, p.startDisplay(screen))
	return p, screen
}

func TestShowRunsUpdatesInOrder(t *testing.T) {
	p, screen := newTestPlatform(t)

	var draws int
	p.afterDraw = func() { draws++ }
	for _, s := range []string{"one", "two", "three"} {
		p.Show(func(sink display.Sink) error {
			if err := sink.Goto(1, 1); err != nil {
				return err
			}
			return sink.WriteString(s + "  ")
		})
	}
	p.stopDisplay()

	assert.Equal(t, "three           ", screen.Lines()[0])
	assert.Equal(t, 3, draws)
}

func TestShowAfterStopIsDropped(t *testing.T) {
	p, screen := newTestPlatform(t)
	p.stopDisplay()
	p.stopDisplay()

	done := make(chan struct{})
	go func() {
		p.Show(func(sink display.Sink) error { return sink.WriteString("late") })
		close(done)
	}()
	<-done
	assert.Equal(t, "                ", screen.Lines()[0])
}

func TestFailingUpdateDoesNotStopDriver(t *testing.T) {
	p, screen := newTestPlatform(t)
	p.Show(func(display.Sink) error { return errors.New("boom") })
	p.Show(func(sink display.Sink) error { return sink.WriteString("ok") })
	p.stopDisplay()
	assert.Equal(t, "ok              ", screen.Lines()[0])
}

func TestStartDisplayRegistersGlyphs(t *testing.T) {
	_, screen := newTestPlatform(t)
	require.NoError(t, screen.Goto(1, 1))
	require.NoError(t, screen.WriteChar(display.GlyphRising))
	require.NoError(t, screen.WriteChar(display.LabelCS))
	assert.Equal(t, "╱S              ", screen.Lines()[0])
}
