package display

import (
	"fmt"

	"lautenbacher.net/sramboard/tracker"
)

// Trace places the history of one channel on the display. Width limits
// the number of samples drawn, the newest are kept. A label glyph, if
// set, is drawn in front of the trace.
type Trace struct {
	Channel string
	Row     int
	Col     int
	Width   int
	Label   *byte
}

// Graph draws tracker snapshots as rows of trace glyphs.
type Graph struct {
	sink   Sink
	traces []Trace
}

func NewGraph(sink Sink, traces []Trace) *Graph {
	return &Graph{sink: sink, traces: traces}
}

// Draw renders every trace of snap. Channels missing in snap are skipped.
func (g *Graph) Draw(snap tracker.Snapshot) error {
	for _, t := range g.traces {
		ch, ok := snap.Channel(t.Channel)
		if !ok {
			continue
		}
		col := t.Col
		if t.Label != nil {
			if err := g.sink.Goto(t.Row, col-1); err != nil {
				return fmt.Errorf("trace %s: %w", t.Channel, err)
			}
			if err := g.sink.WriteChar(*t.Label); err != nil {
				return err
			}
		}
		glyphs := ch.Glyphs()
		if t.Width > 0 && len(glyphs) > t.Width {
			glyphs = glyphs[len(glyphs)-t.Width:]
		}
		if err := g.sink.Goto(t.Row, col); err != nil {
			return fmt.Errorf("trace %s: %w", t.Channel, err)
		}
		for _, c := range glyphs {
			if err := g.sink.WriteChar(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// ManualLayout is the 16x2 arrangement of the manual clocking
// experiment: MOSI and SCK as long traces, CS and MISO as short ones.
func ManualLayout() []Trace {
	label := func(b byte) *byte { return &b }
	return []Trace{
		{Channel: "mosi", Row: 1, Col: 2, Width: 12, Label: label(LabelMOSI)},
		{Channel: "sck", Row: 2, Col: 2, Width: 12, Label: label(LabelSCK)},
		{Channel: "cs", Row: 1, Col: 15, Width: 2, Label: label(LabelCS)},
		{Channel: "miso", Row: 2, Col: 15, Width: 2, Label: label(LabelMISO)},
	}
}
