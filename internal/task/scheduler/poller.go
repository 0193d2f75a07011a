package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alertbot/internal/alert"
	"alertbot/internal/eventbus"
	logx "alertbot/pkg/logx"
)

const DefaultSchedule = "60s"

// Checker is the part of alert.Store the poller drives.
type Checker interface {
	CheckNextEvent(ctx context.Context, n alert.Notifier) bool
	HasNext() bool
}

type Config struct {
	// Schedule is a poll interval accepted by ParseInterval. Empty means
	// DefaultSchedule.
	Schedule string
	Location *time.Location
}

// FiredEvent is published on the bus after an alert went out.
type FiredEvent struct {
	At time.Time `json:"at"`
}

// Poller periodically asks the store to fire its next alert.
type Poller struct {
	mu      sync.Mutex
	log     logx.Logger
	bus     eventbus.Bus
	store   Checker
	notify  alert.Notifier
	parser  cron.Parser
	onFired func(ctx context.Context)

	cfg  Config
	spec string
	ctx  context.Context
	c    *cron.Cron
}

func New(cfg Config, store Checker, n alert.Notifier, log logx.Logger, bus eventbus.Bus) (*Poller, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		log:    log,
		bus:    bus,
		store:  store,
		notify: n,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if err := p.setConfigLocked(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateSchedule reports whether raw is a usable poll schedule.
func ValidateSchedule(raw string) error {
	p := &Poller{parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)}
	return p.setConfigLocked(Config{Schedule: raw})
}

func (p *Poller) setConfigLocked(cfg Config) error {
	raw := strings.TrimSpace(cfg.Schedule)
	if raw == "" {
		raw = DefaultSchedule
	}
	every, err := ParseInterval(raw)
	if err != nil {
		return err
	}
	spec := cronSpec(every)
	if _, err := p.parser.Parse(spec); err != nil {
		return fmt.Errorf("poll schedule %q: %w", raw, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	p.cfg = cfg
	p.spec = spec
	return nil
}

// OnFired installs a hook run after every tick that sent an alert. The app
// uses it to persist the advanced state.
func (p *Poller) OnFired(fn func(ctx context.Context)) {
	p.mu.Lock()
	p.onFired = fn
	p.mu.Unlock()
}

// Ensure starts polling if it is not running. ctx bounds every tick.
// It reports whether a new cron instance was started.
func (p *Poller) Ensure(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.ctx = ctx
	p.startLocked()
	return true
}

func (p *Poller) startLocked() {
	cl := cronLogger{log: p.log}
	c := cron.New(
		cron.WithParser(p.parser),
		cron.WithLocation(p.cfg.Location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx := p.ctx
	if _, err := c.AddFunc(p.spec, func() { p.Tick(ctx) }); err != nil {
		// The spec was validated when the config was set.
		p.log.Error("poll schedule rejected", logx.String("spec", p.spec), logx.Err(err))
		return
	}
	c.Start()
	p.c = c
	p.log.Info("polling started", logx.String("spec", p.spec))
	eventbus.Publish(p.bus, eventbus.TypePollStarted, p.spec)
}

// Stop halts polling and waits for a running tick to finish or ctx to end.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	p.log.Info("polling stopped")
	eventbus.Publish(p.bus, eventbus.TypePollStopped, "stop")
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c != nil
}

// Spec returns the cron spec currently in use.
func (p *Poller) Spec() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

// Apply swaps the schedule. A running poller restarts on the new spec.
func (p *Poller) Apply(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.spec
	oldLoc := p.cfg.Location
	if err := p.setConfigLocked(cfg); err != nil {
		return err
	}
	if p.c == nil || (old == p.spec && oldLoc == p.cfg.Location) {
		return nil
	}
	// Do not wait: Apply may be called from a tick.
	p.c.Stop()
	p.c = nil
	p.startLocked()
	return nil
}

// Tick runs one poll: fire the next alert if due, then stop polling if
// nothing is left. Exported for tests and the cron entry.
func (p *Poller) Tick(ctx context.Context) {
	if p.store.CheckNextEvent(ctx, p.notify) {
		eventbus.Publish(p.bus, eventbus.TypeAlertFired, FiredEvent{At: time.Now()})
		p.mu.Lock()
		hook := p.onFired
		p.mu.Unlock()
		if hook != nil {
			hook(ctx)
		}
	}

	// Checked under p.mu so a concurrent Create+Ensure either sees this
	// poller still running or finds it stopped and starts a new one.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store.HasNext() || p.c == nil {
		return
	}
	// Inside a cron job; waiting for Stop().Done() would deadlock.
	p.c.Stop()
	p.c = nil
	p.log.Info("no pending alerts; polling stopped")
	eventbus.Publish(p.bus, eventbus.TypePollStopped, "empty")
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
