package export

import (
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	yaml "go.yaml.in/yaml/v3"

	"alertbot/internal/alert"
)

func testState() alert.State {
	id := int64(7)
	return alert.State{
		LeadTime:  60,
		NextID:    3,
		DefaultTZ: alert.Offset{Hours: -5, Minutes: 30},
		Events: []alert.EventState{
			{ID: 0, Owner: alert.User{ID: &id, Display: "alice"}, RepeatDays: 7, Name: "Raid night", NextTime: time.Date(2024, 5, 3, 20, 0, 0, 0, time.UTC)},
			{ID: 2, Owner: alert.User{Display: "bob"}, RepeatDays: 0, Name: "Launch", NextTime: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)},
		},
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := YAML(testState())
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	out := string(b)
	for _, want := range []string{"lead_time: 60", "name: Raid night", "repeat_days: 7", "hours: -5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("yaml missing %q:\n%s", want, out)
		}
	}
	var back alert.State
	if err := yaml.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Events) != 2 || back.Events[1].Owner.ID != nil || *back.Events[0].Owner.ID != 7 {
		t.Fatalf("decoded = %+v", back)
	}
	if !back.Events[0].NextTime.Equal(testState().Events[0].NextTime) {
		t.Fatalf("next_time = %v", back.Events[0].NextTime)
	}
}

func TestICSFeed(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := ICS(testState(), now)
	out := string(b)

	for _, want := range []string{
		"PRODID:" + ProdID,
		"RRULE:FREQ=DAILY;INTERVAL=7",
		"TRIGGER:-PT60M",
		"SUMMARY:Raid night",
		"DTSTART:20240503T200000Z",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("ics missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "RRULE:") != 1 {
		t.Fatalf("one-shot event must not carry an RRULE:\n%s", out)
	}

	cal, err := ics.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	if got := len(cal.Events()); got != 2 {
		t.Fatalf("events = %d, want 2", got)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	if trigger(0) != "PT0M" || trigger(90) != "-PT90M" {
		t.Fatalf("trigger = %q / %q", trigger(0), trigger(90))
	}
}
