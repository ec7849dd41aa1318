package gpio

import (
	"fmt"
	"sync"
)

// SimBus is an in-memory set of lines used for the TUI simulation and in
// tests. Pins obtained from it drive and read the shared line levels;
// peers (a simulated device, a loopback wire, the keyboard) drive lines
// from the outside with Drive. Change listeners are invoked synchronously
// in the goroutine that changed the line, after the bus lock is released.
type SimBus struct {
	mu    sync.Mutex
	lines map[int]*simLine
}

type simLine struct {
	level       Level
	output      bool
	writes      int
	transitions int
	listeners   []func(Level)
}

func NewSimBus() *SimBus {
	return &SimBus{lines: make(map[int]*simLine)}
}

func (b *SimBus) line(n int) *simLine {
	l, ok := b.lines[n]
	if !ok {
		l = &simLine{}
		b.lines[n] = l
	}
	return l
}

// Pin implements Provider.
func (b *SimBus) Pin(n int) (Pin, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, n)
	}
	b.mu.Lock()
	b.line(n)
	b.mu.Unlock()
	return &SimPin{bus: b, number: n}, nil
}

func (b *SimBus) Close() error { return nil }

// Drive sets line n from outside the pin owner.
func (b *SimBus) Drive(n int, level Level) {
	b.set(n, level, false)
}

func (b *SimBus) set(n int, level Level, fromPin bool) {
	b.mu.Lock()
	l := b.line(n)
	if fromPin {
		l.writes++
	}
	changed := l.level != level
	l.level = level
	var listeners []func(Level)
	if changed {
		l.transitions++
		listeners = append(listeners, l.listeners...)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(level)
	}
}

// Level returns the current level of line n.
func (b *SimBus) Level(n int) Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.line(n).level
}

// IsOutput reports whether line n was last configured as an output.
func (b *SimBus) IsOutput(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.line(n).output
}

// Transitions counts level changes of line n.
func (b *SimBus) Transitions(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.line(n).transitions
}

// Writes counts Out calls on line n through a SimPin.
func (b *SimBus) Writes(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.line(n).writes
}

// OnChange registers fn to be called with the new level whenever line n
// changes.
func (b *SimBus) OnChange(n int, fn func(Level)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.line(n)
	l.listeners = append(l.listeners, fn)
}

// Wire copies every change of line from onto line to.
func (b *SimBus) Wire(from, to int) {
	b.Drive(to, b.Level(from))
	b.OnChange(from, func(l Level) { b.Drive(to, l) })
}

// SimPin is a Pin on a SimBus.
type SimPin struct {
	bus    *SimBus
	number int
}

func (p *SimPin) String() string { return fmt.Sprintf("SIM%d", p.number) }

func (p *SimPin) Out(l Level) error {
	p.bus.mu.Lock()
	p.bus.line(p.number).output = true
	p.bus.mu.Unlock()
	p.bus.set(p.number, l, true)
	return nil
}

// In applies pull-up and pull-down as a level on the line; floating
// lines keep whatever a peer drove last.
func (p *SimPin) In(pull Pull) error {
	p.bus.mu.Lock()
	p.bus.line(p.number).output = false
	p.bus.mu.Unlock()
	switch pull {
	case PullUp:
		p.bus.Drive(p.number, High)
	case PullDown:
		p.bus.Drive(p.number, Low)
	}
	return nil
}

func (p *SimPin) Read() Level {
	return p.bus.Level(p.number)
}
