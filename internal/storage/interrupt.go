package storage

import (
	"context"
	"errors"
	"sync"
)

// interruptState is shared between a Store, the handles it vends, and the
// per-operation scopes. Each operation opens a scope, which advances the
// epoch and registers a cancel func for the operation's derived context;
// Interrupt marks the epoch that was current when it was called and cancels
// that context, aborting any statement blocked in the driver. A scope only
// observes interrupts aimed at its own epoch, so interrupting one in-flight
// operation can never spuriously abort a later one.
type interruptState struct {
	mu            sync.Mutex
	epoch         int64
	interruptedAt int64
	cancel        context.CancelFunc
}

func newInterruptState() *interruptState {
	return &interruptState{interruptedAt: -1}
}

// InterruptHandle requests cancellation of whatever operation is currently
// running on the owning store. Handles are safe to use from any goroutine,
// independent of the goroutine driving the store.
type InterruptHandle struct {
	state *interruptState
}

// Interrupt flags the in-flight operation, if any, and cancels its
// statement context, so both scope checkpoints and statements already
// running inside the driver fail with an INTERRUPTED error.
func (h *InterruptHandle) Interrupt() {
	st := h.state
	st.mu.Lock()
	st.interruptedAt = st.epoch
	cancel := st.cancel
	st.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InterruptScope is the per-operation token recording which epoch the
// operation runs in. Operations pass the derived context returned by
// BeginInterruptScope to every statement and must call End when done.
type InterruptScope struct {
	state  *interruptState
	epoch  int64
	cancel context.CancelFunc
}

// BeginInterruptScope opens a new operation scope and derives the context
// its statements must run under. Every public operation calls this on
// entry; stale interrupts aimed at earlier scopes are ignored.
func (s *Store) BeginInterruptScope(ctx context.Context) (*InterruptScope, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	st := s.intr
	st.mu.Lock()
	st.epoch++
	st.cancel = cancel
	sc := &InterruptScope{state: st, epoch: st.epoch, cancel: cancel}
	st.mu.Unlock()
	return sc, ctx
}

// End deregisters the scope and releases its context resources. An
// interrupt arriving after End is aimed at whichever scope comes next, not
// this one.
func (sc *InterruptScope) End() {
	st := sc.state
	st.mu.Lock()
	if st.cancel != nil && sc.epoch == st.epoch {
		st.cancel = nil
	}
	st.mu.Unlock()
	sc.cancel()
}

func (sc *InterruptScope) flagged() bool {
	st := sc.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.interruptedAt == sc.epoch
}

// Err returns an INTERRUPTED error if this scope's operation was flagged,
// nil otherwise.
func (sc *InterruptScope) Err() error {
	if sc.flagged() {
		return &Error{Code: ErrCodeInterrupted, Message: "operation interrupted"}
	}
	return nil
}

// resolve maps a statement failure caused by this scope's own cancellation
// to the INTERRUPTED error. Failures with any other cause, including
// cancellation of the caller's parent context, pass through untouched.
func (sc *InterruptScope) resolve(err error) error {
	if err != nil && sc.flagged() && errors.Is(err, context.Canceled) {
		return sc.Err()
	}
	return err
}

// NewInterruptHandle returns a handle that can cancel in-flight operations
// on this store from another goroutine.
func (s *Store) NewInterruptHandle() *InterruptHandle {
	return &InterruptHandle{state: s.intr}
}
