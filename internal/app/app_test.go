package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"alertbot/internal/alert"
	"alertbot/internal/config"
	"alertbot/internal/eventbus"
	"alertbot/internal/storage"
	"alertbot/internal/task/scheduler"
	kit "alertbot/internal/transport"
	"alertbot/internal/transport/telegram/router"
	logx "alertbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	text []string
	docs []kit.Document
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.text)}, nil
}

func (f *fakeAdapter) SendDocument(_ context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.text) == 0 {
		return ""
	}
	return f.text[len(f.text)-1]
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ac      *alertCommands
	adapter *fakeAdapter
	db      storage.Store
	path    string
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "alertbot")
	}
	db, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := alert.NewStore(alert.WithClock(alert.ClockFunc(func(loc *time.Location) time.Time {
		return testNow.In(loc)
	})))
	notify := alert.NotifierFunc(func(context.Context, string) error { return nil })
	poller, err := scheduler.New(scheduler.Config{}, store, notify, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("poller: %v", err)
	}
	t.Cleanup(func() { poller.Stop(context.Background()) })

	return &fixture{
		ac: &alertCommands{
			log:     logx.Nop(),
			bus:     eventbus.New(),
			store:   store,
			poller:  poller,
			db:      db,
			version: "test",
			runCtx:  context.Background,
			now:     func() time.Time { return testNow },
		},
		adapter: &fakeAdapter{},
		db:      db,
		path:    path,
	}
}

func (f *fixture) run(t *testing.T, h router.HandlerFunc, args ...string) error {
	t.Helper()
	req := &router.Request{
		Chat:        kit.ChatTarget{ChatID: -100, ThreadID: 4},
		FromID:      42,
		FromDisplay: "@ann",
		Args:        args,
		Adapter:     f.adapter,
		Logger:      logx.Nop(),
	}
	return h(context.Background(), req)
}

func TestAlertCommandsLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ac := f.ac

	if err := f.run(t, ac.audited("alert.create", ac.create), "7", "2024-05-02T18:30", "Weekly", "sync"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.adapter.last(); !strings.HasPrefix(got, `New event "Weekly sync" added.`) || !strings.Contains(got, "---") {
		t.Fatalf("create reply = %q", got)
	}
	if !ac.poller.Running() {
		t.Fatal("create did not start polling")
	}
	ev := ac.store.Events()[0]
	if ev.Owner.Display != "@ann" || *ev.Owner.ID != 42 || ev.RepeatDays != 7 {
		t.Fatalf("event = %+v", ev)
	}

	for _, tc := range []struct {
		name string
		h    router.HandlerFunc
		args []string
		want error
	}{
		{"bad days", ac.create, []string{"x", "2024-05-02", "n"}, alert.ErrInvalidInput},
		{"negative days", ac.create, []string{"-1", "2024-05-02", "n"}, alert.ErrInvalidInput},
		{"bad time", ac.create, []string{"1", "tomorrow", "n"}, alert.ErrInvalidInput},
		{"missing id", ac.remove, []string{"9"}, alert.ErrNotFound},
		{"negative lead", ac.setLead, []string{"-5"}, alert.ErrInvalidInput},
		{"bad tz", ac.setTZ, []string{"24"}, alert.ErrInvalidInput},
		{"bad tz minutes", ac.setTZ, []string{"1", "60"}, alert.ErrInvalidInput},
	} {
		if err := f.run(t, tc.h, tc.args...); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if ac.store.Len() != 1 {
		t.Fatalf("rejected commands changed the store: %d events", ac.store.Len())
	}

	if err := f.run(t, ac.setLead, "30"); err != nil || f.adapter.last() != "Lead time set to 30 minutes before the event" {
		t.Fatalf("set_lead: %v %q", err, f.adapter.last())
	}
	if err := f.run(t, ac.setTZ, "2", "30"); err != nil || !strings.HasPrefix(f.adapter.last(), "Timezone updated") {
		t.Fatalf("set_tz: %v %q", err, f.adapter.last())
	}
	if got := ac.store.DefaultTimezone(); got != (alert.Offset{Hours: 2, Minutes: 30}) {
		t.Fatalf("tz = %+v", got)
	}
	if err := f.run(t, ac.display); err != nil || !strings.HasPrefix(f.adapter.last(), "Alerts sent 30 minutes before event.") {
		t.Fatalf("disp: %v %q", err, f.adapter.last())
	}

	if err := f.run(t, ac.exportYAML); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := f.run(t, ac.exportICS); err != nil {
		t.Fatalf("ics: %v", err)
	}
	if len(f.adapter.docs) != 2 || f.adapter.docs[0].FileName != "alerts.yaml" || !bytes.Contains(f.adapter.docs[1].Data, []byte("BEGIN:VCALENDAR")) {
		t.Fatalf("docs = %+v", f.adapter.docs)
	}
	if !bytes.Contains(f.adapter.docs[0].Data, []byte("Weekly sync")) {
		t.Fatalf("yaml export = %s", f.adapter.docs[0].Data)
	}

	// A fresh store restores everything that was saved.
	g := newFixture(t, f.path+"-copy")
	g.ac.db = f.db
	if err := g.ac.restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if g.ac.store.Len() != 1 || g.ac.store.LeadTime() != 30 || g.ac.store.DefaultTimezone().Minutes != 30 {
		t.Fatalf("restored lead=%d tz=%+v len=%d", g.ac.store.LeadTime(), g.ac.store.DefaultTimezone(), g.ac.store.Len())
	}

	if err := f.run(t, ac.audited("alert.remove", ac.remove), "0"); err != nil || !strings.HasPrefix(f.adapter.last(), "Alert With ID: 0 removed") {
		t.Fatalf("rem: %v %q", err, f.adapter.last())
	}
	if st, ok, err := f.db.LoadAlerts(context.Background()); err != nil || !ok || len(st.Events) != 0 || st.NextID != 1 {
		t.Fatalf("saved after remove: %+v %v %v", st, ok, err)
	}

	audit, err := os.ReadFile(f.path + ".audit.jsonl")
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(audit)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `"action":"alert.create"`) || !strings.Contains(lines[1], `"action":"alert.remove"`) {
		t.Fatalf("audit = %q", lines)
	}
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	routes := map[string]router.Access{}
	for _, c := range f.ac.commands() {
		routes[c.Route] = c.Access
	}
	for _, r := range []string{"save", "a create", "a rem", "a set_lead", "a set_tz", "a export", "a ics"} {
		if routes[r] != router.AccessPrivileged {
			t.Fatalf("%s access = %v", r, routes[r])
		}
	}
	for _, r := range []string{"a disp", "ping", "version"} {
		if a, ok := routes[r]; !ok || a != router.AccessEveryone {
			t.Fatalf("%s missing or restricted", r)
		}
	}
}

func TestDirectMessageCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	var dm []string
	for _, c := range f.ac.commands() {
		if c.DirectMessage {
			dm = append(dm, c.Route)
		}
	}
	if strings.Join(dm, ",") != "ping,version" {
		t.Fatalf("direct message commands = %v", dm)
	}
}

func TestSaveCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ac := f.ac
	if _, err := ac.store.Create(alert.NewUser(1, "x"), 1, "n", alert.At(testNow.Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.run(t, ac.saveNow); err != nil || f.adapter.last() != "Saved 1 events" {
		t.Fatalf("save: %v %q", err, f.adapter.last())
	}
	if st, ok, err := f.db.LoadAlerts(context.Background()); err != nil || !ok || len(st.Events) != 1 {
		t.Fatalf("loaded %+v %v %v", st, ok, err)
	}

	ac.db = nil
	if err := f.run(t, ac.saveNow); err == nil {
		t.Fatal("save without storage should fail")
	}
}

func TestParseCreateArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		args     []string
		wantDays int
		wantName string
		wantTime time.Time
		wantErr  bool
	}{
		{name: "iso time", args: []string{"7", "2024-05-01T18:30", "Standup"}, wantDays: 7, wantName: "Standup", wantTime: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)},
		{name: "spaced time", args: []string{"7", "2024-05-01", "18:30", "Team", "standup"}, wantDays: 7, wantName: "Team standup", wantTime: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)},
		{name: "date only", args: []string{"1", "2024-05-01", "Launch", "day"}, wantDays: 1, wantName: "Launch day", wantTime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "spaced time without name", args: []string{"7", "2024-05-01", "18:30"}, wantErr: true},
		{name: "too few", args: []string{"7", "2024-05-01"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			days, ts, name, err := parseCreateArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCreateArgs(%q) expected error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCreateArgs(%q): %v", tt.args, err)
			}
			if days != tt.wantDays || name != tt.wantName {
				t.Fatalf("days=%d name=%q", days, name)
			}
			if got := ts.In(time.UTC); !got.Equal(tt.wantTime) {
				t.Fatalf("time = %v, want %v", got, tt.wantTime)
			}
		})
	}
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()
	lead := 15
	cfg := &config.Config{
		Telegram: config.TelegramConfig{GroupLog: " -1001 "},
		Alert: config.AlertConfig{
			ChatID:    -5,
			ThreadID:  2,
			DefaultTZ: &config.TimezoneConfig{Hours: -3},
			LeadTime:  &lead,
			Mention:   "@here",
		},
		Storage: &config.StorageConfig{Driver: " SQLite ", Path: "x.db"},
	}
	if got := groupLogChat(cfg); got != -1001 {
		t.Fatalf("group log = %d", got)
	}
	if nc, err := mapNotifierConfig(cfg); err != nil || nc.RetryMax != 1 {
		t.Fatalf("notifier defaults = %+v %v", nc, err)
	}
	if sc, err := mapStorageConfig(cfg); err != nil || sc.Driver != "sqlite" || sc.BusyTimeout != time.Second {
		t.Fatalf("storage = %+v %v", sc, err)
	}
	if tgt := alertTarget(cfg); tgt.ChatID != -5 || tgt.ThreadID != 2 {
		t.Fatalf("target = %+v", tgt)
	}

	opts, err := storeOptions(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("storeOptions: %v", err)
	}
	s := alert.NewStore(opts...)
	if s.LeadTime() != 15 || s.DefaultTimezone().Hours != -3 {
		t.Fatalf("seeded lead=%d tz=%+v", s.LeadTime(), s.DefaultTimezone())
	}

	cfg.Alert.DefaultTZ.Hours = 30
	if _, err := storeOptions(cfg, logx.Nop()); !errors.Is(err, alert.ErrInvalidInput) {
		t.Fatalf("bad tz err = %v", err)
	}
}
