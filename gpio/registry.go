package gpio

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	ErrPinInUse   = errors.New("pin in use")
	ErrUnknownPin = errors.New("unknown pin")
	ErrReleased   = errors.New("pin handle released")
)

// Registry hands out exclusive handles to the pins of a Provider. A pin
// number can only be claimed once until its owner releases it, so two
// components can never drive the same line.
type Registry struct {
	mu       sync.Mutex
	provider Provider
	owners   map[int]*Handle
}

func NewRegistry(provider Provider) *Registry {
	return &Registry{
		provider: provider,
		owners:   make(map[int]*Handle),
	}
}

// Claim returns the handle for pin n on behalf of owner.
func (r *Registry) Claim(owner string, n int) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, n)
	}
	if h, taken := r.owners[n]; taken {
		return nil, fmt.Errorf("%w: pin %d owned by %s, requested by %s", ErrPinInUse, n, h.owner, owner)
	}
	pin, err := r.provider.Pin(n)
	if err != nil {
		return nil, fmt.Errorf("claim pin %d for %s: %w", n, owner, err)
	}
	h := &Handle{pin: pin, number: n, owner: owner}
	r.owners[n] = h
	slog.Debug("Claimed pin", "pin", n, "owner", owner)
	return h, nil
}

// ClaimAll claims the given pins in order. On failure every pin claimed
// by this call is released again.
func (r *Registry) ClaimAll(owner string, numbers ...int) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(numbers))
	for _, n := range numbers {
		h, err := r.Claim(owner, n)
		if err != nil {
			for _, claimed := range handles {
				r.Release(claimed)
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Release returns the pin behind h to the registry and invalidates h.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.owners[h.number]; ok && cur == h {
		delete(r.owners, h.number)
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
	}
}

// ReleaseOwner releases every pin held by owner.
func (r *Registry) ReleaseOwner(owner string) {
	r.mu.Lock()
	var handles []*Handle
	for _, h := range r.owners {
		if h.owner == owner {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()
	for _, h := range handles {
		r.Release(h)
	}
}

// Close releases every handle and closes the provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.owners))
	for _, h := range r.owners {
		handles = append(handles, h)
	}
	r.mu.Unlock()
	for _, h := range handles {
		r.Release(h)
	}
	return r.provider.Close()
}

// Owners returns pin number -> owner for all claimed pins.
func (r *Registry) Owners() map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make(map[int]string, len(r.owners))
	for n, h := range r.owners {
		ret[n] = h.owner
	}
	return ret
}

// Claimed returns the claimed pin numbers in ascending order.
func (r *Registry) Claimed() []int {
	owners := r.Owners()
	ret := make([]int, 0, len(owners))
	for n := range owners {
		ret = append(ret, n)
	}
	sort.Ints(ret)
	return ret
}

// Handle is an exclusively owned Pin. It is only created by a Registry
// and stops working once released.
type Handle struct {
	mu       sync.Mutex
	pin      Pin
	number   int
	owner    string
	released bool
}

func (h *Handle) Number() int   { return h.number }
func (h *Handle) Owner() string { return h.owner }

func (h *Handle) String() string {
	return fmt.Sprintf("%s(%s)", h.pin.String(), h.owner)
}

func (h *Handle) live() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("%w: pin %d", ErrReleased, h.number)
	}
	return nil
}

func (h *Handle) Out(l Level) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.pin.Out(l)
}

func (h *Handle) In(pull Pull) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.pin.In(pull)
}

// Read returns Low for a released handle.
func (h *Handle) Read() Level {
	if h.live() != nil {
		return Low
	}
	return h.pin.Read()
}
