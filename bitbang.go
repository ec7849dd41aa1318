package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/display"
	"lautenbacher.net/sramboard/gpio"
	"lautenbacher.net/sramboard/platform"
	"lautenbacher.net/sramboard/report"
	"lautenbacher.net/sramboard/spi"
	"lautenbacher.net/sramboard/sram"
)

const spiOwner = "spi"

var cycles uint64

var bitbangCmd = &cobra.Command{
	Use:   "bitbang",
	Short: "Write random words to random SRAM addresses and read them back",
	Long: `Runs the write/read-back test: every cycle writes a random 16 bit word
to a random address, reads it back and shows address, written and read
word on the LCD. A mismatch is marked with an E and, with
SRAM.OnMismatch: halt, stops the test.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(bitbangJob(cycles))
	},
}

func init() {
	rootCmd.AddCommand(bitbangCmd)
	bitbangCmd.Flags().Uint64Var(&cycles, "cycles", 0, "stop after that many cycles (0 runs until interrupted)")
}

func bitbangJob(cycles uint64) job {
	return func(ctx context.Context, conf *config.Config, p platform.Platform, rep report.Reporter) error {
		dev, err := openSRAM(p, conf.SPI)
		if err != nil {
			return err
		}
		defer p.Pins().ReleaseOwner(spiOwner)

		mode, err := sram.ParseMode(conf.SRAM.Mode)
		if err != nil {
			return err
		}
		onMismatch, err := sram.ParseOnMismatch(conf.SRAM.OnMismatch)
		if err != nil {
			return err
		}
		seed := conf.SRAM.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		slog.Info("Random sequence", "seed", seed)

		h := sram.NewHarness(dev, rand.New(rand.NewPCG(seed, seed>>1)), sram.HarnessConfig{
			Mode:         mode,
			StartupDelay: conf.SRAM.StartupDelay,
			CycleDelay:   conf.SRAM.CycleDelay,
			OnMismatch:   onMismatch,
			Keep:         conf.SRAM.Keep,
			Cycles:       cycles,
		})
		err = h.Run(ctx, func(r sram.Result) {
			p.Show(func(s display.Sink) error { return showResult(s, r) })
			if err := rep.Result(r); err != nil {
				slog.Warn("Failed to report result", "cycle", r.Cycle, "error", err)
			}
		})
		st := h.Stats()
		slog.Info("SRAM test ended", "cycles", st.Cycles, "passed", st.Passed, "failed", st.Failed)
		return err
	}
}

// openSRAM claims the SPI lines and returns the chip behind them.
func openSRAM(p platform.Platform, c config.SPIConfig) (*sram.Device, error) {
	sel, err := gpio.ParseLevel(c.Select)
	if err != nil {
		return nil, err
	}
	pins, err := p.Pins().ClaimAll(spiOwner, c.MOSI, c.MISO, c.SCK, c.CS)
	if err != nil {
		return nil, err
	}
	master := spi.NewMaster(spi.Pins{MOSI: pins[0], MISO: pins[1], SCK: pins[2], CS: pins[3]},
		p.Holder(), spi.Config{Delay: c.Delay, Select: sel})
	if err := master.Init(); err != nil {
		p.Pins().ReleaseOwner(spiOwner)
		return nil, err
	}
	return sram.NewDevice(master), nil
}

// showResult draws
//
//	Addr: 0001A2B4
//	W:BEEF R:BEEF  E
func showResult(s display.Sink, r sram.Result) error {
	if err := s.Clear(); err != nil {
		return err
	}
	if err := display.Printf(s, 1, 1, "Addr: %08X", r.Address); err != nil {
		return err
	}
	if err := display.Printf(s, 2, 1, "W:%04X", word(r.Sent)); err != nil {
		return err
	}
	if err := display.Printf(s, 2, 8, "R:%04X", word(r.Received)); err != nil {
		return err
	}
	if !r.Ok() {
		return display.Printf(s, 2, 16, "E")
	}
	return nil
}

func word(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}
