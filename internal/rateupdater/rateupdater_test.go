package rateupdater

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFitToLimitStepsLinearlyToFinal(t *testing.T) {
	t.Parallel()
	u := New(LimitMin, 15*time.Minute, 1*time.Minute)
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u.Populate(slot, Profile{
		InitialRate: decimal.NewFromInt(30),
		FinalRate:   decimal.NewFromInt(10),
		FitToLimit:  true,
	})

	if got := u.Rate(slot); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("initial rate = %v, want 30", got)
	}

	want := u.availableUpdates()
	for i := 0; i < want; i++ {
		u.Increment(slot, 1<<30) // force every call due
	}
	if got := u.Rate(slot); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("after %d updates rate = %v, want 10 (clamped at final)", want, got)
	}
}

func TestLimitMaxClampsUpward(t *testing.T) {
	t.Parallel()
	u := New(LimitMax, 15*time.Minute, 1*time.Minute)
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u.Populate(slot, Profile{
		InitialRate: decimal.NewFromInt(10),
		FinalRate:   decimal.NewFromInt(30),
		FitToLimit:  true,
	})
	for i := 0; i < 100; i++ {
		u.Increment(slot, 1<<30)
	}
	if got := u.Rate(slot); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("rate = %v, want clamped at final 30", got)
	}
}

func TestTimeForUpdateGatesOnInterval(t *testing.T) {
	t.Parallel()
	u := New(LimitMin, 15*time.Minute, 5*time.Minute)
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u.Populate(slot, Profile{InitialRate: decimal.NewFromInt(30), FinalRate: decimal.NewFromInt(10), FitToLimit: true})

	if !u.Increment(slot, 0) {
		t.Error("the first update should be due at the start of the slot")
	}
	if u.Increment(slot, 60) {
		t.Error("should not update after only 60s with a 300s interval")
	}
	if !u.Increment(slot, 300) {
		t.Error("should update once 300s have elapsed")
	}
}

func TestDeletePastSlotsPrunesState(t *testing.T) {
	t.Parallel()
	u := New(LimitMin, 15*time.Minute, 1*time.Minute)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	keep := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	u.Populate(old, Profile{InitialRate: decimal.NewFromInt(10), FinalRate: decimal.NewFromInt(5), FitToLimit: true})
	u.Populate(keep, Profile{InitialRate: decimal.NewFromInt(10), FinalRate: decimal.NewFromInt(5), FitToLimit: true})

	u.DeletePastSlots(keep)

	if _, ok := u.profiles[old]; ok {
		t.Error("old slot profile should have been pruned")
	}
	if _, ok := u.profiles[keep]; !ok {
		t.Error("keep slot profile should still be present")
	}
}
