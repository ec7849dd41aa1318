package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/platform"
	"lautenbacher.net/sramboard/report"
	"lautenbacher.net/sramboard/tracker"
)

const trackerOwner = "tracker"

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Clock the SRAM by hand and watch the lines on the LCD",
	Long: `Every press of a button toggles the line it is mirrored to, so MOSI,
SCK and CS can be clocked by hand. The LCD shows the recent history of
every channel, including what the SRAM answers on MISO.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(runManual)
	},
}

func init() {
	rootCmd.AddCommand(manualCmd)
}

func runManual(ctx context.Context, conf *config.Config, p platform.Platform, rep report.Reporter) error {
	tr, err := newTracker(p.Pins(), conf.Tracker)
	if err != nil {
		return err
	}
	defer p.Pins().ReleaseOwner(trackerOwner)

	traces := tracesOf(conf.Display.Graphs)
	draw := func(snap tracker.Snapshot) {
		p.Show(func(s display.Sink) error { return display.NewGraph(s, traces).Draw(snap) })
	}

	reportCtx, stopReport := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportSnapshots(reportCtx, tr, rep)
	}()
	defer func() {
		stopReport()
		wg.Wait()
	}()

	p.Show(func(s display.Sink) error { return s.Clear() })
	snap, err := tr.Start()
	if err != nil {
		return err
	}
	draw(snap)
	slog.Info("Tracking channels", "channels", len(snap.Channels), "pollDelay", conf.Tracker.PollDelay, "lockstep", conf.Tracker.Lockstep)

	ticker := time.NewTicker(conf.Tracker.PollDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, changed, err := tr.Poll()
			if err != nil {
				slog.Error("Tracker poll failed", "error", err)
			}
			if changed {
				draw(snap)
			}
		}
	}
}

// reportSnapshots publishes the newest tracker snapshot whenever the poll
// loop produced one. A slow broker only ever delays the newest value.
func reportSnapshots(ctx context.Context, tr *tracker.Tracker, rep report.Reporter) {
	latest := tr.Latest()
	for {
		select {
		case <-ctx.Done():
			return
		case <-latest.Channel():
			snap, _ := latest.Load()
			if err := rep.Snapshot(snap); err != nil {
				slog.Warn("Failed to report snapshot", "error", err)
			}
		}
	}
}

// newTracker claims the input and mirror pins of every channel.
func newTracker(reg *gpio.Registry, tc config.TrackerConfig) (*tracker.Tracker, error) {
	cfgs := make([]tracker.ChannelConfig, 0, len(tc.Channels))
	for _, ch := range tc.Channels {
		c, err := channelOf(reg, ch)
		if err != nil {
			reg.ReleaseOwner(trackerOwner)
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		cfgs = append(cfgs, c)
	}
	tr, err := tracker.New(cfgs, tracker.Options{Lockstep: tc.Lockstep})
	if err != nil {
		reg.ReleaseOwner(trackerOwner)
		return nil, err
	}
	return tr, nil
}

func channelOf(reg *gpio.Registry, ch config.ChannelCfg) (tracker.ChannelConfig, error) {
	c := tracker.ChannelConfig{Name: ch.Name, Bit: ch.Bit, Width: ch.Width}
	var err error
	if c.Pull, err = gpio.ParsePull(ch.Pull); err != nil {
		return c, err
	}
	if c.Policy, err = tracker.ParseEdgePolicy(ch.Edge); err != nil {
		return c, err
	}
	if c.Record, err = tracker.ParseRecord(ch.Record); err != nil {
		return c, err
	}
	if c.Seed, err = tracker.ParseSeedMode(ch.Seed); err != nil {
		return c, err
	}
	if c.Input, err = reg.Claim(trackerOwner, ch.Pin); err != nil {
		return c, err
	}
	if ch.Mirror != nil {
		if c.Mirror, err = reg.Claim(trackerOwner, *ch.Mirror); err != nil {
			return c, err
		}
	}
	return c, nil
}

func tracesOf(graphs []config.GraphCfg) []display.Trace {
	traces := make([]display.Trace, 0, len(graphs))
	for _, g := range graphs {
		t := display.Trace{Channel: g.Channel, Row: g.Row, Col: g.Col, Width: g.Width}
		if label, ok := display.LabelByName[g.Channel]; ok && g.Label {
			t.Label = &label
		}
		traces = append(traces, t)
	}
	return traces
}
