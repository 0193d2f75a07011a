package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"alertbot/internal/alert"
	"alertbot/internal/config"
	"alertbot/internal/eventbus"
	"alertbot/internal/notifier"
	"alertbot/internal/runtime/supervisor"
	"alertbot/internal/storage"
	"alertbot/internal/task/scheduler"
	kit "alertbot/internal/transport"
	telegram "alertbot/internal/transport/telegram/adapter"
	"alertbot/internal/transport/telegram/router"
	logx "alertbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   storage.Store

	adapter kit.Adapter

	store  *alert.Store
	notif  *notifier.Service
	poller *scheduler.Poller
	alerts *alertCommands

	cmdm *router.CommandManager

	updates chan kit.Message
}

func NewApp(cfgPath, version string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// The Telegram log sink stays silent until it has a transport.
	logSvc.SetTelegramSender(func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
		return err
	}, groupLogChat(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if db != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	opts, err := storeOptions(cfg, log.With(logx.String("comp", "alert")))
	if err != nil {
		return nil, err
	}
	store := alert.NewStore(opts...)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, alertTarget(cfg), log.With(logx.String("comp", "notifier")), bus)

	poller, err := scheduler.New(mapPollerConfig(cfg, store.DefaultTimezone().Location()), store, notif,
		log.With(logx.String("comp", "poller")), bus)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		db:      db,
		adapter: ad,
		store:   store,
		notif:   notif,
		poller:  poller,
		updates: make(chan kit.Message, 256),
	}
	a.alerts = &alertCommands{
		log:     log.With(logx.String("comp", "alert.commands")),
		bus:     bus,
		store:   store,
		poller:  poller,
		db:      db,
		version: version,
		runCtx:  a.runContext,
		now:     time.Now,
	}
	poller.OnFired(a.alerts.save)

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), ad)
	a.cmdm.SetAccess(cfg.Telegram.OwnerUserIDs, cfg.Alert.PrivilegedUserIDs)
	a.cmdm.SetChats(cfg.Telegram.AllowedChatIDs)
	return a, nil
}

func (a *App) runContext() context.Context {
	if a.sup == nil {
		return context.Background()
	}
	return a.sup.Context()
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	// Reloads are validated before they are committed and published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.alerts.restore(runCtx); err != nil {
		return err
	}
	// Restored lead time and timezone override the config seed.
	if err := a.poller.Apply(mapPollerConfig(a.cfgm.Get(), a.store.DefaultTimezone().Location())); err != nil {
		return err
	}
	if a.store.HasNext() {
		a.poller.Ensure(runCtx)
	}

	a.cmdm.SetAppSupervisor(a.sup)
	a.cmdm.SetRegistry(a.alerts.commands())

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started",
		logx.Int("events", a.store.Len()),
		logx.Bool("polling", a.poller.Running()),
		logx.String("poll_spec", a.poller.Spec()),
	)
	return nil
}

// applyConfig applies a validated config reload to the live components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "telegram":
			if oldCfg.Telegram.Token != newCfg.Telegram.Token {
				a.log.Warn("telegram token changed; restart required for changes to take effect")
			}
		}
	}

	a.logs.SetTelegramSender(func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
		return err
	}, groupLogChat(newCfg))
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.cmdm.SetAccess(newCfg.Telegram.OwnerUserIDs, newCfg.Alert.PrivilegedUserIDs)
	a.cmdm.SetChats(newCfg.Telegram.AllowedChatIDs)

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.notif.SetTarget(alertTarget(newCfg))

	if tmpl, err := alert.ParseMessage(newCfg.Alert.Message); err != nil {
		a.log.Warn("invalid alert message; keeping previous", logx.Err(err))
	} else {
		a.store.SetMessage(tmpl, newCfg.Alert.Mention)
	}

	if err := a.poller.Apply(mapPollerConfig(newCfg, a.store.DefaultTimezone().Location())); err != nil {
		a.log.Warn("invalid poll interval; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step runs one shutdown step bounded by max so a stuck component cannot
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("poller", 2*time.Second, func(c context.Context) error { a.poller.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("state", 2*time.Second, func(c context.Context) error { a.alerts.save(c); return nil })
	step("storage", time.Second, func(c context.Context) error {
		if a.db != nil {
			return a.db.Close()
		}
		return nil
	})
	// Config watch/reload, the dispatcher and the bus logger.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
