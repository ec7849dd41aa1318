package sram

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// ErrMismatch is matched by every *MismatchError.
var ErrMismatch = errors.New("read back differs from written data")

type Outcome int

const (
	Match Outcome = iota
	Mismatch
)

func (o Outcome) String() string {
	if o == Mismatch {
		return "mismatch"
	}
	return "match"
}

// Result is the verdict of one write/read-back cycle.
type Result struct {
	Cycle    uint64
	Address  uint32
	Sent     []byte
	Received []byte
	Outcome  Outcome
	Time     time.Time
}

// Verify compares what was written with what came back. It never
// touches the bus.
func Verify(addr uint32, sent, received []byte) Result {
	r := Result{
		Address:  addr,
		Sent:     bytes.Clone(sent),
		Received: bytes.Clone(received),
		Outcome:  Match,
	}
	if !bytes.Equal(sent, received) {
		r.Outcome = Mismatch
	}
	return r
}

// Ok reports whether the cycle matched.
func (r Result) Ok() bool { return r.Outcome == Match }

// Err returns nil on a match and a *MismatchError otherwise.
func (r Result) Err() error {
	if r.Ok() {
		return nil
	}
	return &MismatchError{Address: r.Address, Sent: r.Sent, Received: r.Received}
}

type MismatchError struct {
	Address  uint32
	Sent     []byte
	Received []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("sram mismatch at %#05x: wrote %X, read %X", e.Address, e.Sent, e.Received)
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }
