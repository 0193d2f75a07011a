// Package export renders the alert store for download: a YAML dump of the
// persisted state and an iCalendar feed for calendar apps.
package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	yaml "go.yaml.in/yaml/v3"

	"alertbot/internal/alert"
)

const ProdID = "-//alertbot//event alerts//EN"

// YAML encodes st as a YAML document.
func YAML(st alert.State) ([]byte, error) {
	b, err := yaml.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("export yaml: %w", err)
	}
	return b, nil
}

// ICS renders st as an iCalendar feed. Each event becomes a VEVENT starting
// at its next occurrence, with a daily RRULE for recurring events and a
// display alarm at the lead time.
func ICS(st alert.State, now time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProdID)
	cal.SetXWRCalName("alertbot")

	for _, ev := range st.Events {
		ve := cal.AddEvent(fmt.Sprintf("event-%d@alertbot", ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.NextTime)
		ve.SetEndAt(ev.NextTime)
		ve.SetSummary(ev.Name)
		if ev.Owner.Display != "" {
			ve.SetDescription("Created by " + ev.Owner.Display)
		}
		if ev.RepeatDays > 0 {
			ve.AddRrule(fmt.Sprintf("FREQ=DAILY;INTERVAL=%d", ev.RepeatDays))
		}

		alarm := ve.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetTrigger(trigger(st.LeadTime))
		alarm.SetProperty(ics.ComponentPropertyDescription, ev.Name)
	}
	return []byte(cal.Serialize())
}

func trigger(leadMinutes int) string {
	if leadMinutes <= 0 {
		return "PT0M"
	}
	return fmt.Sprintf("-PT%dM", leadMinutes)
}
