package health

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestTracker_RequestCount_Empty verifies that RequestCount returns 0 when no
// outcomes have been recorded within the window.
func TestTracker_RequestCount_Empty(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestTracker_Denied_CountsAsRequest verifies that denials count toward
// RequestCount and DenialCount but not the error rate.
func TestTracker_Denied_CountsAsRequest(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.RecordDenied()
	tr.RecordDenied()
	tr.RecordSuccess()

	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
}

// TestTracker_ErrorRate verifies successes and errors are both counted in the total.
func TestTracker_ErrorRate(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
}

// TestTracker_WindowSlides verifies that outcomes leave the window as time passes.
func TestTracker_WindowSlides(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)
	tr.RecordSuccess()
	clock.Advance(45 * time.Second)
	tr.RecordError()
	clock.Advance(30 * time.Second)

	if n := tr.RequestCount(time.Minute); n != 1 {
		t.Errorf("RequestCount(1m) = %d, want 1", n)
	}
	if n := tr.RequestCount(2 * time.Minute); n != 2 {
		t.Errorf("RequestCount(2m) = %d, want 2", n)
	}
}

// TestTracker_PrunesBeyondRetention verifies old outcomes are dropped on the next record.
func TestTracker_PrunesBeyondRetention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)
	tr.RecordSuccess()
	clock.Advance(retention + time.Second)
	tr.RecordSuccess()

	tr.mu.Lock()
	n := len(tr.successTimes)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("retained successes = %d, want 1", n)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()
	if n := tr.RequestCount(time.Hour); n != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", n)
	}
}
