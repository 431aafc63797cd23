package value

import (
	"sync"
	"sync/atomic"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
)

// Signals is the session-wide cooperative cancellation flag. Streams and
// plugin round-trips check it before each step.
//
// A nil *Signals is never interrupted.
type Signals struct {
	interrupted atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

// NewSignals creates a cleared signal.
func NewSignals() *Signals {
	return &Signals{done: make(chan struct{})}
}

// Interrupt raises the flag. It is safe to call from a signal handler
// goroutine.
func (s *Signals) Interrupt() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupted.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Interrupted reports whether the flag is raised.
func (s *Signals) Interrupted() bool {
	return s != nil && s.interrupted.Load()
}

// Done is closed when the flag is raised.
func (s *Signals) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Reset clears the flag; the REPL calls it before every new line.
func (s *Signals) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupted.CompareAndSwap(true, false) {
		s.done = make(chan struct{})
	}
}

// Check returns a CancellationRequested error anchored at sp if the flag is
// raised.
func (s *Signals) Check(sp span.Span) error {
	if s.Interrupted() {
		return shellerr.Interrupted(sp)
	}
	return nil
}
