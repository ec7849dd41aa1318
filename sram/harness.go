package sram

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// Source supplies the random addresses and payloads. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	Uint32() uint32
}

// OnMismatch selects what Run does with a failed cycle.
type OnMismatch int

const (
	// Halt stops Run and returns the *MismatchError.
	Halt OnMismatch = iota
	// Continue logs the failure and keeps cycling.
	Continue
)

func (o OnMismatch) String() string {
	if o == Continue {
		return "continue"
	}
	return "halt"
}

func ParseOnMismatch(s string) (OnMismatch, error) {
	switch s {
	case "", "halt":
		return Halt, nil
	case "continue":
		return Continue, nil
	}
	return Halt, fmt.Errorf("unknown mismatch policy %q", s)
}

// PayloadSize is the number of bytes written per cycle.
const PayloadSize = 2

type HarnessConfig struct {
	Mode         Mode
	StartupDelay time.Duration
	CycleDelay   time.Duration
	OnMismatch   OnMismatch
	// Keep is the number of results remembered; 0 keeps only the last.
	Keep int
	// Cycles ends Run after that many cycles; 0 runs until cancelled.
	Cycles uint64
}

type Stats struct {
	Cycles uint64
	Passed uint64
	Failed uint64
}

// Harness repeatedly writes a random word to a random address and reads
// it back.
type Harness struct {
	dev *Device
	src Source
	cfg HarnessConfig
	now func() time.Time

	mu      sync.Mutex
	results *deque.Deque[Result]
	stats   Stats
}

func NewHarness(dev *Device, src Source, cfg HarnessConfig) *Harness {
	if cfg.Keep < 1 {
		cfg.Keep = 1
	}
	h := &Harness{
		dev:     dev,
		src:     src,
		cfg:     cfg,
		now:     time.Now,
		results: new(deque.Deque[Result]),
	}
	h.results.Grow(cfg.Keep)
	return h
}

// Init puts the device into the configured mode. The power-on mode of the
// chip is not trusted.
func (h *Harness) Init() error {
	if err := h.dev.SetMode(h.cfg.Mode); err != nil {
		return err
	}
	got, err := h.dev.Mode()
	if err != nil {
		return err
	}
	if got != h.cfg.Mode {
		slog.Warn("SRAM mode register does not read back", "want", h.cfg.Mode, "got", got)
	}
	return nil
}

// RunCycle performs one write/read-back. The returned error is a bus
// error; a mismatch is reported in the Result only.
func (h *Harness) RunCycle() (Result, error) {
	addr := h.src.Uint32() & AddressMask
	sent := make([]byte, PayloadSize)
	binary.BigEndian.PutUint16(sent, uint16(h.src.Uint32()))

	if err := h.transfer(addr, sent, h.dev.Write); err != nil {
		return Result{}, err
	}
	received := make([]byte, PayloadSize)
	if err := h.transfer(addr, received, h.dev.Read); err != nil {
		return Result{}, err
	}

	r := Verify(addr, sent, received)
	r.Time = h.now()

	h.mu.Lock()
	h.stats.Cycles++
	r.Cycle = h.stats.Cycles
	if r.Ok() {
		h.stats.Passed++
	} else {
		h.stats.Failed++
	}
	if h.results.Len() == h.cfg.Keep {
		h.results.PopFront()
	}
	h.results.PushBack(r)
	h.mu.Unlock()
	return r, nil
}

// transfer moves p through op starting at addr. In byte mode the chip
// only accepts one byte per selection, so every byte gets its own
// session at the next address.
func (h *Harness) transfer(addr uint32, p []byte, op func(uint32, []byte) error) error {
	if h.cfg.Mode != ModeByte {
		return op(addr, p)
	}
	for i := range p {
		if err := op((addr+uint32(i))&AddressMask, p[i:i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Run waits the startup delay, initializes the device and cycles until
// ctx is cancelled, the cycle limit is reached or a mismatch halts it.
// observe is called with every result before the mismatch policy is
// applied.
func (h *Harness) Run(ctx context.Context, observe func(Result)) error {
	if !wait(ctx, h.cfg.StartupDelay) {
		return nil
	}
	if err := h.Init(); err != nil {
		return err
	}
	slog.Info("SRAM test started", "mode", h.cfg.Mode, "cycleDelay", h.cfg.CycleDelay, "onMismatch", h.cfg.OnMismatch)
	for {
		r, err := h.RunCycle()
		if err != nil {
			return err
		}
		if observe != nil {
			observe(r)
		}
		if !r.Ok() {
			slog.Error("SRAM mismatch", "cycle", r.Cycle, "address", fmt.Sprintf("%05X", r.Address),
				"sent", fmt.Sprintf("%X", r.Sent), "received", fmt.Sprintf("%X", r.Received))
			if h.cfg.OnMismatch == Halt {
				return r.Err()
			}
		} else {
			slog.Debug("SRAM cycle ok", "cycle", r.Cycle, "address", fmt.Sprintf("%05X", r.Address))
		}
		if h.cfg.Cycles > 0 && r.Cycle >= h.cfg.Cycles {
			return nil
		}
		if !wait(ctx, h.cfg.CycleDelay) {
			return nil
		}
	}
}

// wait returns false when ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Results returns the remembered results, oldest first.
func (h *Harness) Results() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	ret := make([]Result, 0, h.results.Len())
	for i := 0; i < h.results.Len(); i++ {
		ret = append(ret, h.results.At(i))
	}
	return ret
}

func (h *Harness) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
