package alert

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"text/template"
	"time"

	logx "alertbot/pkg/logx"
)

// DefaultLeadTime is the number of minutes before an event its alert fires.
const DefaultLeadTime = 60

// Notifier delivers rendered alert text to the alert channel. The target is
// bound at construction; see internal/notifier.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string) error

func (f NotifierFunc) Notify(ctx context.Context, text string) error { return f(ctx, text) }

// Store owns a set of events and tracks which one is due next.
//
// All mutating operations hold the write lock for their whole duration,
// including the notifier call inside CheckNextEvent. Reads take the read lock.
type Store struct {
	mu sync.RWMutex

	log     logx.Logger
	clock   Clock
	tmpl    *template.Template
	mention string

	leadTime  int
	events    []*Event
	nextID    int
	defaultTZ Offset
	loc       *time.Location

	// Derived; rebuilt by refreshLocked.
	next    *Event
	alertAt time.Time
}

type Option func(*Store)

func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithDefaultTimezone sets the zone naive timestamps are pinned to. Invalid
// offsets are ignored; callers validate config before constructing a store.
func WithDefaultTimezone(o Offset) Option {
	return func(s *Store) {
		if o.Validate() == nil {
			s.defaultTZ = o
			s.loc = o.Location()
		}
	}
}

// WithLeadTime sets the lead time in minutes. Values outside
// [0, MaxLeadTime] are ignored.
func WithLeadTime(minutes int) Option {
	return func(s *Store) {
		if validLeadTime(minutes) == nil {
			s.leadTime = minutes
		}
	}
}

// WithMessage sets the alert template and the mention prefix passed to it.
func WithMessage(tmpl *template.Template, mention string) Option {
	return func(s *Store) {
		if tmpl != nil {
			s.tmpl = tmpl
		}
		s.mention = mention
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:    SystemClock{},
		tmpl:     defaultMessage,
		leadTime: DefaultLeadTime,
		loc:      time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Create adds an event and returns its ID. Naive timestamps are pinned to the
// default timezone.
func (s *Store) Create(owner User, repeatDays int, name string, next Timestamp) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validRepeatDays(repeatDays); err != nil {
		return 0, err
	}
	ev := &Event{
		ID:         s.allocIDLocked(),
		Owner:      owner,
		RepeatDays: repeatDays,
		Name:       name,
		NextTime:   next.In(s.loc),
	}
	s.events = append(s.events, ev)
	s.refreshLocked()
	s.log.Info("event created",
		logx.Int("event_id", ev.ID),
		logx.String("name", ev.Name),
		logx.Int("repeat_days", ev.RepeatDays),
		logx.Time("next_time", ev.NextTime),
	)
	return ev.ID, nil
}

// Remove deletes the event with the given ID.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(id) {
		return fmt.Errorf("%w: no event found with id %d", ErrNotFound, id)
	}
	s.log.Info("event removed", logx.Int("event_id", id))
	return nil
}

// SetLeadTime changes how many minutes before an event its alert fires.
func (s *Store) SetLeadTime(minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validLeadTime(minutes); err != nil {
		return err
	}
	s.leadTime = minutes
	s.refreshLocked()
	return nil
}

// SetDefaultTimezone changes the zone used for naive timestamps of events
// created from now on. Existing events keep their times.
func (s *Store) SetDefaultTimezone(hours, minutes int) error {
	o := Offset{Hours: hours, Minutes: minutes}
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.defaultTZ = o
	s.loc = o.Location()
	s.mu.Unlock()
	return nil
}

// SetMessage swaps the alert template (config hot reload).
func (s *Store) SetMessage(tmpl *template.Template, mention string) {
	s.mu.Lock()
	if tmpl != nil {
		s.tmpl = tmpl
	}
	s.mention = mention
	s.mu.Unlock()
}

// CheckNextEvent fires the next event's alert if its alert instant has
// passed and reports whether an alert went out.
//
// A delivery failure is logged and leaves the store untouched, so the alert
// is retried on the next poll. Once delivery succeeded the alert counts as
// fired: the event is advanced or retired even if later bookkeeping panics.
func (s *Store) CheckNextEvent(ctx context.Context, n Notifier) (fired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic checking next event", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			s.refreshLocked()
		}
	}()

	if s.next == nil || n == nil {
		return false
	}
	if !s.clock.Now(s.loc).After(s.alertAt) {
		return false
	}

	due := s.next
	text, err := due.AlertText(s.tmpl, s.mention, s.clock.Now(due.Location()))
	if err != nil {
		s.log.Error("render alert failed", logx.Int("event_id", due.ID), logx.Err(err))
		return false
	}
	if err := n.Notify(ctx, text); err != nil {
		s.log.Error("exception checking next event", logx.Int("event_id", due.ID), logx.Err(err))
		return false
	}
	fired = true

	due.Advance(s.clock.Now(due.Location()))
	if due.Expired() {
		s.log.Info("event expired", logx.Int("event_id", due.ID), logx.String("name", due.Name))
		s.removeLocked(due.ID)
	} else {
		s.log.Info("event advanced", logx.Int("event_id", due.ID), logx.Time("next_time", due.NextTime))
	}
	s.refreshLocked()
	return fired
}

// Next returns a copy of the next event and its alert instant.
func (s *Store) Next() (Event, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.next == nil {
		return Event{}, time.Time{}, false
	}
	return *s.next, s.alertAt, true
}

// HasNext reports whether any event is pending.
func (s *Store) HasNext() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next != nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Events returns copies of all events in insertion order.
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}

func (s *Store) LeadTime() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leadTime
}

func (s *Store) DefaultTimezone() Offset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultTZ
}

// String renders the human readable summary shown by the display command.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now(s.loc)
	var b strings.Builder
	fmt.Fprintf(&b, "Bot's time in default timezone is %s\n\n", formatTime(now))
	if s.next != nil {
		fmt.Fprintf(&b, "Next alert at %s for event ID: %d in %s\n\n",
			formatTime(s.alertAt), s.next.ID, formatRemaining(s.alertAt.Sub(now)))
	}
	b.WriteString("Events:\n")
	for _, ev := range s.events {
		b.WriteString("- ")
		b.WriteString(ev.String())
		b.WriteString("\n")
	}
	b.WriteString("---")
	return b.String()
}

func validRepeatDays(days int) error {
	if days < 0 {
		return fmt.Errorf("%w: repeat interval must be 0 for once only or greater but %d received", ErrInvalidInput, days)
	}
	if days > MaxRepeatDays {
		return fmt.Errorf("%w: repeat interval must be at most %d days but %d received", ErrInvalidInput, MaxRepeatDays, days)
	}
	return nil
}

func validLeadTime(minutes int) error {
	if minutes < 0 || minutes > MaxLeadTime {
		return fmt.Errorf("%w: lead time must be in range 0 to %d but %d received", ErrInvalidInput, MaxLeadTime, minutes)
	}
	return nil
}

func (s *Store) allocIDLocked() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) removeLocked(id int) bool {
	for i, ev := range s.events {
		if ev.ID != id {
			continue
		}
		s.events = append(s.events[:i], s.events[i+1:]...)
		if ev == s.next {
			s.refreshLocked()
		}
		return true
	}
	return false
}

// refreshLocked rescans events for the soonest one and derives the alert
// instant. Ties keep the first event found.
func (s *Store) refreshLocked() {
	var next *Event
	for _, ev := range s.events {
		if next == nil || ev.Before(next) {
			next = ev
		}
	}
	s.next = next
	if next == nil {
		s.alertAt = time.Time{}
		return
	}
	s.alertAt = next.NextTime.Add(-time.Duration(s.leadTime) * time.Minute)
}
