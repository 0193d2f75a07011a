package alert

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// DefaultMessage is the alert text used when no template is configured.
const DefaultMessage = `{{if .Mention}}{{.Mention}} {{end}}"{{.Name}}" starts at {{.NextTime}}.
This event is in {{.Remaining}} from now
{{.FinalNotice}}`

// FinalNotice is appended to the alert text of one-shot events.
const FinalNotice = " (FINAL OCCURRENCE)"

// MessageData is the value a message template is executed with.
type MessageData struct {
	ID          int
	Name        string
	NextTime    string
	Remaining   string
	FinalNotice string
	Mention     string
	Owner       string
}

// ParseMessage compiles an alert message template.
func ParseMessage(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultMessage
	}
	t, err := template.New("alert").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: alert message template: %v", ErrInvalidInput, err)
	}
	return t, nil
}

var defaultMessage = template.Must(ParseMessage(DefaultMessage))

// AlertText renders the alert for e. Remaining time is measured against now
// taken in the event's own zone. Pure; no side effects.
func (e *Event) AlertText(tmpl *template.Template, mention string, now time.Time) (string, error) {
	if tmpl == nil {
		tmpl = defaultMessage
	}
	data := MessageData{
		ID:        e.ID,
		Name:      e.Name,
		NextTime:  formatTime(e.NextTime),
		Remaining: formatRemaining(e.NextTime.Sub(now.In(e.Location()))),
		Mention:   mention,
		Owner:     e.Owner.Display,
	}
	if e.Expired() {
		data.FinalNotice = FinalNotice
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render alert %d: %w", e.ID, err)
	}
	return b.String(), nil
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 -07:00")
}

// formatRemaining renders a duration as "[-][N day(s), ]H:MM:SS".
func formatRemaining(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)
	days := int64(d / day)
	d -= time.Duration(days) * day
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int64(d / time.Second)

	clock := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch days {
	case 0:
		return sign + clock
	case 1:
		return sign + "1 day, " + clock
	default:
		return fmt.Sprintf("%s%d days, %s", sign, days, clock)
	}
}
