package alert

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	src := newTestStore(newFakeClock(base), WithDefaultTimezone(Offset{Hours: 3}), WithLeadTime(15))
	_, _ = src.Create(owner(), 7, "weekly", Naive(base.Add(48*time.Hour)))
	gone, _ := src.Create(owner(), 0, "gone", At(base.Add(time.Hour)))
	_, _ = src.Create(User{Display: "anon"}, 0, "once", At(base.Add(2*time.Hour)))
	_ = src.Remove(gone)

	dst := newTestStore(newFakeClock(base))
	if err := dst.Restore(src.Snapshot()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if dst.Len() != 2 || dst.LeadTime() != 15 || dst.DefaultTimezone() != (Offset{Hours: 3}) {
		t.Fatalf("restored store = len %d lead %d tz %v", dst.Len(), dst.LeadTime(), dst.DefaultTimezone())
	}
	ev, alertAt, ok := dst.Next()
	if !ok || ev.Name != "once" || !alertAt.Equal(base.Add(105*time.Minute)) {
		t.Fatalf("next = %+v at %v", ev, alertAt)
	}
	id, _ := dst.Create(owner(), 1, "new", At(base))
	if id != 3 {
		t.Fatalf("id after restore = %d, want 3", id)
	}
}

func TestRestoreBumpsNextIDPastEvents(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	err := s.Restore(State{
		LeadTime: DefaultLeadTime,
		NextID:   0,
		Events:   []EventState{{ID: 9, RepeatDays: 1, Name: "x", NextTime: base}},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if id, _ := s.Create(owner(), 1, "y", At(base)); id != 10 {
		t.Fatalf("id = %d, want 10", id)
	}
}

func TestRestoreRejectsInvalidState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		st   State
	}{
		{"bad tz", State{DefaultTZ: Offset{Hours: 30}}},
		{"negative lead", State{LeadTime: -1}},
		{"negative repeat", State{Events: []EventState{{ID: 1, RepeatDays: -2, NextTime: base}}}},
		{"lead too large", State{LeadTime: MaxLeadTime + 1}},
		{"repeat too large", State{Events: []EventState{{ID: 1, RepeatDays: MaxRepeatDays + 1, NextTime: base}}}},
		{"duplicate id", State{Events: []EventState{{ID: 1, NextTime: base}, {ID: 1, NextTime: base}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(newFakeClock(base))
			_, _ = s.Create(owner(), 1, "keep", At(base.Add(time.Hour)))
			if err := s.Restore(tt.st); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if s.Len() != 1 {
				t.Fatalf("store changed by rejected restore")
			}
		})
	}
}
