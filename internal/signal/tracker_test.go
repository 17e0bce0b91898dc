package signal

import (
	"testing"
	"time"

	"stochbot/internal/model"
)

func TestTracker_PendingFlow(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	if !tr.Flat() {
		t.Fatal("new tracker should be flat")
	}

	if err := tr.MarkPending(model.SignalLong, now); err != nil {
		t.Fatalf("MarkPending from NONE failed: %v", err)
	}
	if tr.Get() != model.PositionPendingLong {
		t.Fatalf("state = %s, want PENDING_LONG", tr.Get())
	}

	// A second dispatch while pending must be refused.
	if err := tr.MarkPending(model.SignalShort, now); err == nil {
		t.Error("MarkPending while pending should fail")
	}

	tr.Confirm()
	if tr.Get() != model.PositionLong {
		t.Fatalf("state after confirm = %s, want LONG", tr.Get())
	}

	// Confirm on a held position is a no-op.
	tr.Confirm()
	if tr.Get() != model.PositionLong {
		t.Fatalf("duplicate confirm changed state to %s", tr.Get())
	}

	tr.Clear()
	if !tr.Flat() {
		t.Fatal("Clear should return to NONE")
	}
}

func TestTracker_RevertOnFailure(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.MarkPending(model.SignalShort, now)
	tr.Revert()
	if !tr.Flat() {
		t.Fatalf("revert of pending short left state %s", tr.Get())
	}

	// Revert must not touch a confirmed position.
	tr.MarkPending(model.SignalShort, now)
	tr.Confirm()
	tr.Revert()
	if tr.Get() != model.PositionShort {
		t.Fatalf("revert touched a held position: %s", tr.Get())
	}
}

func TestTracker_ExpirePending(t *testing.T) {
	tr := NewTracker()
	start := time.Now()

	tr.MarkPending(model.SignalLong, start)

	if tr.ExpirePending(start.Add(10*time.Second), 30*time.Second) {
		t.Error("pending expired before the timeout")
	}
	if tr.Get() != model.PositionPendingLong {
		t.Fatalf("early expiry check mutated state to %s", tr.Get())
	}

	if !tr.ExpirePending(start.Add(31*time.Second), 30*time.Second) {
		t.Error("pending did not expire after the timeout")
	}
	if !tr.Flat() {
		t.Fatalf("expired pending left state %s", tr.Get())
	}

	// Held positions never expire.
	tr.MarkPending(model.SignalLong, start)
	tr.Confirm()
	if tr.ExpirePending(start.Add(time.Hour), time.Second) {
		t.Error("a held position must not expire")
	}
}
