package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(clock Clock, opts ...Option) *Store {
	return NewStore(append([]Option{WithClock(clock)}, opts...)...)
}

func TestCreateThenDisplay(t *testing.T) {
	t.Parallel()
	for _, days := range []int{0, 1, 7, 30} {
		s := newTestStore(newFakeClock(base), WithDefaultTimezone(Offset{Hours: 2}))
		id, err := s.Create(owner(), days, "Weekly sync", Naive(time.Date(2024, 5, 3, 18, 30, 0, 0, time.UTC)))
		if err != nil {
			t.Fatalf("Create(%d): %v", days, err)
		}
		out := s.String()
		want := "- " + (&Event{ID: id, Name: "Weekly sync", RepeatDays: days, NextTime: time.Date(2024, 5, 3, 18, 30, 0, 0, Offset{Hours: 2}.Location())}).String()
		if !strings.Contains(out, want) {
			t.Fatalf("display %q missing line %q", out, want)
		}
		if !strings.Contains(out, "2024-05-03 18:30:00 +02:00") {
			t.Fatalf("naive time not pinned to default zone: %q", out)
		}
	}
}

func TestCreateKeepsExplicitZone(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base), WithDefaultTimezone(Offset{Hours: 2}))
	loc := time.FixedZone("", -3*3600)
	at := time.Date(2024, 5, 3, 18, 30, 0, 0, loc)
	if _, err := s.Create(owner(), 1, "x", At(at)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ev, _, _ := s.Next()
	if !ev.NextTime.Equal(at) || ev.NextTime.Location() != loc {
		t.Fatalf("NextTime = %v, want %v", ev.NextTime, at)
	}
}

func TestCreateNegativeIntervalRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	if _, err := s.Create(owner(), -1, "bad", At(base)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if s.Len() != 0 || s.HasNext() {
		t.Fatalf("store mutated by rejected create")
	}
	id, err := s.Create(owner(), 0, "ok", At(base))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 0 {
		t.Fatalf("rejected create consumed an id; got %d", id)
	}
}

func TestNextEventTracksSoonest(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	id3, _ := s.Create(owner(), 0, "third", At(base.Add(3*time.Hour)))
	id1, _ := s.Create(owner(), 0, "first", At(base.Add(1*time.Hour)))
	id2, _ := s.Create(owner(), 0, "second", At(base.Add(2*time.Hour)))

	ev, _, ok := s.Next()
	if !ok || ev.ID != id1 {
		t.Fatalf("next = %d (ok=%v), want %d", ev.ID, ok, id1)
	}
	if err := s.Remove(id1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ev, _, _ := s.Next(); ev.ID != id2 {
		t.Fatalf("next after remove = %d, want %d", ev.ID, id2)
	}
	if err := s.Remove(id3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ev, _, _ := s.Next(); ev.ID != id2 {
		t.Fatalf("removing a later event changed next to %d", ev.ID)
	}
}

func TestNextEventTieKeepsFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	first, _ := s.Create(owner(), 1, "a", At(base.Add(time.Hour)))
	_, _ = s.Create(owner(), 1, "b", At(base.Add(time.Hour)))
	if ev, _, _ := s.Next(); ev.ID != first {
		t.Fatalf("tie resolved to %d, want %d", ev.ID, first)
	}
}

func TestIDsNeverReused(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	a, _ := s.Create(owner(), 1, "a", At(base.Add(time.Hour)))
	b, _ := s.Create(owner(), 1, "b", At(base.Add(time.Hour)))
	_ = s.Remove(b)
	c, _ := s.Create(owner(), 1, "c", At(base.Add(time.Hour)))
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("ids = %d,%d,%d, want 0,1,2", a, b, c)
	}
}

func TestRemoveMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	if err := s.Remove(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCheckBeforeAlertInstant(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(base)
	s := newTestStore(clock)
	_, _ = s.Create(owner(), 0, "later", At(base.Add(61*time.Minute)))
	before := s.Snapshot()

	n := &recordingNotifier{}
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("alert fired before its instant")
	}
	clock.Set(base.Add(time.Minute))
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("alert fired exactly at its instant")
	}
	if n.count() != 0 {
		t.Fatalf("notifier called %d times", n.count())
	}
	after := s.Snapshot()
	if len(after.Events) != 1 || !after.Events[0].NextTime.Equal(before.Events[0].NextTime) {
		t.Fatalf("state changed: %+v", after)
	}
}

func TestCheckFiresOneShotAndRetires(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(base)
	s := newTestStore(clock)
	_, _ = s.Create(owner(), 0, "launch", At(base.Add(30*time.Minute)))

	n := &recordingNotifier{}
	if !s.CheckNextEvent(context.Background(), n) {
		t.Fatal("expected alert to fire")
	}
	if n.count() != 1 || !strings.Contains(n.sent[0], FinalNotice) {
		t.Fatalf("sent = %q", n.sent)
	}
	if s.Len() != 0 || s.HasNext() {
		t.Fatal("one-shot event was not retired")
	}
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("empty store fired")
	}
}

func TestCheckFiresRecurringAndAdvances(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(base)
	s := newTestStore(clock)
	id, _ := s.Create(owner(), 7, "weekly", At(base.Add(30*time.Minute)))
	_, _ = s.Create(owner(), 0, "in two days", At(base.Add(2*day)))

	n := &recordingNotifier{}
	if !s.CheckNextEvent(context.Background(), n) {
		t.Fatal("expected alert to fire")
	}
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("same occurrence fired twice")
	}
	evs := s.Events()
	if evs[0].ID != id || !evs[0].NextTime.Equal(base.Add(7*day+30*time.Minute)) {
		t.Fatalf("recurring event not advanced: %+v", evs[0])
	}
	if next, _, _ := s.Next(); next.Name != "in two days" {
		t.Fatalf("next = %q, want the two-day event", next.Name)
	}
}

func TestCheckDeliveryFailureLeavesStateForRetry(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(base)
	s := newTestStore(clock)
	_, _ = s.Create(owner(), 0, "launch", At(base.Add(10*time.Minute)))

	n := &recordingNotifier{err: errSendFailed}
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("failed delivery reported as fired")
	}
	if s.Len() != 1 {
		t.Fatal("event retired despite delivery failure")
	}

	n.err = nil
	if !s.CheckNextEvent(context.Background(), n) {
		t.Fatal("retry on next poll did not fire")
	}
	if s.Len() != 0 {
		t.Fatal("event not retired after successful retry")
	}
}

func TestCheckRecoversFromPanickingNotifier(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	_, _ = s.Create(owner(), 1, "x", At(base))
	n := NotifierFunc(func(ctx context.Context, text string) error { panic("boom") })
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("panicking notifier reported as fired")
	}
	if !s.HasNext() {
		t.Fatal("cache lost after recovered panic")
	}
}

func TestSetLeadTimeMovesAlertInstant(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	at := base.Add(5 * time.Hour)
	_, _ = s.Create(owner(), 1, "x", At(at))
	if _, alertAt, _ := s.Next(); !alertAt.Equal(at.Add(-60 * time.Minute)) {
		t.Fatalf("default alert instant = %v", alertAt)
	}
	if err := s.SetLeadTime(90); err != nil {
		t.Fatalf("SetLeadTime: %v", err)
	}
	ev, alertAt, _ := s.Next()
	if !alertAt.Equal(at.Add(-90 * time.Minute)) {
		t.Fatalf("alert instant = %v, want %v", alertAt, at.Add(-90*time.Minute))
	}
	if !ev.NextTime.Equal(at) {
		t.Fatalf("lead time change moved the event to %v", ev.NextTime)
	}
	if err := s.SetLeadTime(-5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative lead time err = %v", err)
	}
}

func TestOversizedIntervalAndLeadRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	if _, err := s.Create(owner(), MaxRepeatDays+1, "x", At(base.Add(30*time.Minute))); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized interval err = %v, want ErrInvalidInput", err)
	}
	if s.Len() != 0 {
		t.Fatal("store mutated by rejected create")
	}
	if err := s.SetLeadTime(MaxLeadTime + 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized lead time err = %v, want ErrInvalidInput", err)
	}
	if got := NewStore(WithLeadTime(MaxLeadTime + 1)).LeadTime(); got != DefaultLeadTime {
		t.Fatalf("WithLeadTime accepted oversized value, lead = %d", got)
	}
	if err := s.SetLeadTime(MaxLeadTime); err != nil {
		t.Fatalf("SetLeadTime(max): %v", err)
	}
	at := base.Add(30 * time.Minute)
	if _, err := s.Create(owner(), MaxRepeatDays, "x", At(at)); err != nil {
		t.Fatalf("Create(max interval): %v", err)
	}
	if _, alertAt, _ := s.Next(); !alertAt.Before(at) {
		t.Fatalf("alert instant %v not before event %v", alertAt, at)
	}
}

func TestLongestIntervalFiresOncePerOccurrence(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(base)
	s := newTestStore(clock)
	if _, err := s.Create(owner(), MaxRepeatDays, "x", At(base.Add(30*time.Minute))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	n := &recordingNotifier{}
	for i := 0; i < 3; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Minute))
		s.CheckNextEvent(context.Background(), n)
	}
	if n.count() != 1 {
		t.Fatalf("sent %d alerts for one occurrence, want 1", n.count())
	}
	if ev, _, _ := s.Next(); !ev.NextTime.After(base) {
		t.Fatalf("NextTime = %v, want after %v", ev.NextTime, base)
	}
}

func TestLeadTimeChangeCanMakeAlertDue(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	_, _ = s.Create(owner(), 1, "x", At(base.Add(2*time.Hour)))
	n := &recordingNotifier{}
	if s.CheckNextEvent(context.Background(), n) {
		t.Fatal("fired too early")
	}
	_ = s.SetLeadTime(180)
	if !s.CheckNextEvent(context.Background(), n) {
		t.Fatal("larger lead time should make the alert due")
	}
}

func TestSetDefaultTimezone(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	wall := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	_, _ = s.Create(owner(), 1, "before", Naive(wall))

	for _, bad := range []Offset{{24, 0}, {-24, 0}, {0, 60}, {0, -60}} {
		if err := s.SetDefaultTimezone(bad.Hours, bad.Minutes); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("SetDefaultTimezone(%v) err = %v", bad, err)
		}
	}
	if err := s.SetDefaultTimezone(-5, 30); err != nil {
		t.Fatalf("SetDefaultTimezone: %v", err)
	}
	_, _ = s.Create(owner(), 1, "after", Naive(wall))

	evs := s.Events()
	if _, off := evs[0].NextTime.Zone(); off != 0 {
		t.Fatalf("existing event zone changed to offset %d", off)
	}
	if _, off := evs[1].NextTime.Zone(); off != -5*3600+30*60 {
		t.Fatalf("new event offset = %d, want %d", off, -5*3600+30*60)
	}
	if evs[1].NextTime.Hour() != 8 {
		t.Fatalf("naive wall clock not kept: %v", evs[1].NextTime)
	}
}

func TestDisplayShowsNextAlert(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(base))
	if out := s.String(); strings.Contains(out, "Next alert") || !strings.HasSuffix(out, "---") {
		t.Fatalf("empty display = %q", out)
	}
	id, _ := s.Create(owner(), 1, "x", At(base.Add(3*time.Hour)))
	out := s.String()
	for _, want := range []string{
		"Bot's time in default timezone is 2024-05-01 12:00:00 +00:00",
		"Next alert at 2024-05-01 14:00:00 +00:00 for event ID: 0 in 2:00:00",
		"Events:\n- ID: 0,",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("display %q missing %q", out, want)
		}
	}
	_ = id
}
