package util

import (
	"sync"
)

// Latest holds the most recently published value of a producer that must
// never block on its consumers, e.g. the polling loop handing complete
// snapshots to a display goroutine. Only the newest value is kept; a
// consumer woken by Channel always sees a fully published value.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	notify  chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		notify: make(chan struct{}, 1),
	}
}

// Publish replaces the held value and signals a pending notification.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	l.value = v
	l.version++
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
		// a notification is already pending
	}
}

// Channel fires once after one or more Publish calls.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

// Load returns the held value and how many values were published so far.
func (l *Latest[T]) Load() (T, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.version
}

// Pending reports whether a notification is waiting to be consumed.
func (l *Latest[T]) Pending() bool {
	return len(l.notify) > 0
}
