package alert

import (
	"fmt"
	"time"

	logx "alertbot/pkg/logx"
)

// State is the serializable form of a Store, used by storage and export.
type State struct {
	Events    []EventState `json:"events" yaml:"events"`
	LeadTime  int          `json:"lead_time" yaml:"lead_time"`
	NextID    int          `json:"next_id" yaml:"next_id"`
	DefaultTZ Offset       `json:"default_tz" yaml:"default_tz"`
}

type EventState struct {
	ID         int       `json:"id" yaml:"id"`
	Owner      User      `json:"owner" yaml:"owner"`
	RepeatDays int       `json:"repeat_days" yaml:"repeat_days"`
	Name       string    `json:"name" yaml:"name"`
	NextTime   time.Time `json:"next_time" yaml:"next_time"`
}

// Snapshot captures the full store state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Events:    make([]EventState, 0, len(s.events)),
		LeadTime:  s.leadTime,
		NextID:    s.nextID,
		DefaultTZ: s.defaultTZ,
	}
	for _, ev := range s.events {
		st.Events = append(st.Events, EventState{
			ID:         ev.ID,
			Owner:      ev.Owner,
			RepeatDays: ev.RepeatDays,
			Name:       ev.Name,
			NextTime:   ev.NextTime,
		})
	}
	return st
}

// Restore replaces the store contents with st. The state is validated as a
// whole; on error the store is left unchanged.
func (s *Store) Restore(st State) error {
	if err := st.DefaultTZ.Validate(); err != nil {
		return fmt.Errorf("restore default_tz: %w", err)
	}
	if err := validLeadTime(st.LeadTime); err != nil {
		return fmt.Errorf("restore lead_time: %w", err)
	}

	seen := make(map[int]struct{}, len(st.Events))
	events := make([]*Event, 0, len(st.Events))
	nextID := st.NextID
	for _, es := range st.Events {
		if err := validRepeatDays(es.RepeatDays); err != nil {
			return fmt.Errorf("restore event %d: %w", es.ID, err)
		}
		if _, dup := seen[es.ID]; dup {
			return fmt.Errorf("%w: restore event %d: duplicate id", ErrInvalidInput, es.ID)
		}
		seen[es.ID] = struct{}{}
		// IDs are never reused, so the counter must stay ahead of every event.
		if es.ID >= nextID {
			nextID = es.ID + 1
		}
		events = append(events, &Event{
			ID:         es.ID,
			Owner:      es.Owner,
			RepeatDays: es.RepeatDays,
			Name:       es.Name,
			NextTime:   es.NextTime,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.nextID = nextID
	s.leadTime = st.LeadTime
	s.defaultTZ = st.DefaultTZ
	s.loc = st.DefaultTZ.Location()
	s.refreshLocked()
	s.log.Info("state restored", logx.Int("events", len(events)), logx.Int("next_id", nextID))
	return nil
}
