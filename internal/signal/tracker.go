// Package signal evaluates the entry state machine over indicator snapshots
// and owns the position state that gates re-entry.
package signal

import (
	"fmt"
	"time"

	"stochbot/internal/model"
)

// DefaultPendingTimeout is how long a dispatched intent may wait for the
// executor's fill acknowledgement before the tracker reverts to flat.
const DefaultPendingTimeout = 30 * time.Second

// Tracker holds the coarse position state. It is owned by the signal
// engine's event loop; all mutation happens on event dispatch, so there is
// no locking. The PENDING states replace the original's optimistic flip:
// dispatch parks the tracker in PENDING_LONG/PENDING_SHORT, a success
// execution log confirms it, and a timeout or failure reverts it to NONE.
type Tracker struct {
	state        model.PositionState
	pendingSince time.Time
}

// NewTracker returns a tracker in the NONE state.
func NewTracker() *Tracker {
	return &Tracker{state: model.PositionNone}
}

// Get returns the current state.
func (t *Tracker) Get() model.PositionState { return t.state }

// Flat reports whether the engine may evaluate entries.
func (t *Tracker) Flat() bool { return t.state == model.PositionNone }

// MarkPending transitions NONE into the pending state for the dispatched
// signal. Any other starting state is a protocol violation on our side.
func (t *Tracker) MarkPending(sig model.SignalType, now time.Time) error {
	if t.state != model.PositionNone {
		return fmt.Errorf("cannot dispatch %s intent while position is %s", sig, t.state)
	}
	if sig == model.SignalShort {
		t.state = model.PositionPendingShort
	} else {
		t.state = model.PositionPendingLong
	}
	t.pendingSince = now
	return nil
}

// Confirm promotes a pending entry to the held position. Confirmations for
// a non-pending state are ignored (stale or duplicate acknowledgement).
func (t *Tracker) Confirm() {
	switch t.state {
	case model.PositionPendingLong:
		t.state = model.PositionLong
	case model.PositionPendingShort:
		t.state = model.PositionShort
	}
}

// Revert drops a pending entry back to NONE (rejected order, dead link).
func (t *Tracker) Revert() {
	if t.state.Pending() {
		t.state = model.PositionNone
	}
}

// Clear unconditionally returns to NONE (position cancelled/closed).
func (t *Tracker) Clear() { t.state = model.PositionNone }

// ExpirePending reverts a pending entry older than timeout and reports
// whether it did. Called from the event loop's housekeeping tick.
func (t *Tracker) ExpirePending(now time.Time, timeout time.Duration) bool {
	if t.state.Pending() && now.Sub(t.pendingSince) >= timeout {
		t.state = model.PositionNone
		return true
	}
	return false
}
