package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"alertbot/internal/alert"
	"alertbot/internal/eventbus"
	"alertbot/internal/export"
	"alertbot/internal/storage"
	"alertbot/internal/task/scheduler"
	kit "alertbot/internal/transport"
	"alertbot/internal/transport/telegram/router"
	logx "alertbot/pkg/logx"
)

// alertCommands implements the /a command group on top of an alert store.
type alertCommands struct {
	log     logx.Logger
	bus     eventbus.Bus
	store   *alert.Store
	poller  *scheduler.Poller
	db      storage.Store // nil when persistence is disabled
	version string

	// runCtx bounds poll ticks started by commands.
	runCtx func() context.Context
	now    func() time.Time
}

func (ac *alertCommands) commands() []router.Command {
	return []router.Command{
		{
			Route:         "ping",
			Description:   "check the bot is alive",
			DirectMessage: true,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Route:         "version",
			Description:   "show the bot version",
			DirectMessage: true,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, fmt.Sprintf("alertbot %s (%s)", ac.version, runtime.Version()))
			},
		},
		{
			Route:       "save",
			Description: "Persist alert state now",
			Usage:       "/save",
			Access:      router.AccessPrivileged,
			Handle:      ac.audited("alert.save", ac.saveNow),
		},
		{
			Route:       "a disp",
			Aliases:     []string{"alerts"},
			Description: "Display currently configured events",
			Usage:       "/a disp",
			Handle:      ac.display,
		},
		{
			Route:       "a create",
			Description: "Creates a new event",
			Usage:       "/a create <interval_days> <next_time> <name>",
			Access:      router.AccessPrivileged,
			Handle:      ac.audited("alert.create", ac.create),
		},
		{
			Route:       "a rem",
			Description: "Remove an event",
			Usage:       "/a rem <id>",
			Access:      router.AccessPrivileged,
			Handle:      ac.audited("alert.remove", ac.remove),
		},
		{
			Route:       "a set_lead",
			Description: "Sets the number of minutes before an event that the notification is sent",
			Usage:       "/a set_lead <minutes>",
			Access:      router.AccessPrivileged,
			Handle:      ac.audited("alert.set_lead", ac.setLead),
		},
		{
			Route:       "a set_tz",
			Description: "Sets default timezone used when an event time has no offset",
			Usage:       "/a set_tz <hours> [minutes]",
			Access:      router.AccessPrivileged,
			Handle:      ac.audited("alert.set_tz", ac.setTZ),
		},
		{
			Route:       "a export",
			Description: "Export events as YAML",
			Usage:       "/a export",
			Access:      router.AccessPrivileged,
			Timeout:     30 * time.Second,
			Handle:      ac.audited("alert.export", ac.exportYAML),
		},
		{
			Route:       "a ics",
			Description: "Export events as an iCalendar file",
			Usage:       "/a ics",
			Access:      router.AccessPrivileged,
			Timeout:     30 * time.Second,
			Handle:      ac.audited("alert.ics", ac.exportICS),
		},
	}
}

// dataText is the confirmation followed by the current event listing.
func (ac *alertCommands) dataText(msg string) string {
	return msg + "\n" + ac.store.String()
}

func (ac *alertCommands) display(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, ac.dataText(fmt.Sprintf("Alerts sent %d minutes before event.", ac.store.LeadTime())))
}

func (ac *alertCommands) create(ctx context.Context, req *router.Request) error {
	days, next, name, err := parseCreateArgs(req.Args)
	if err != nil {
		return err
	}
	owner := alert.NewUser(req.FromID, req.FromDisplay)

	if _, err := ac.store.Create(owner, days, name, next); err != nil {
		return err
	}
	ac.save(ctx)
	if ac.poller.Ensure(ac.runCtx()) {
		req.Logger.Debug("polling ensured after create")
	}
	return req.Reply(ctx, ac.dataText(fmt.Sprintf(`New event "%s" added.`, name)))
}

func (ac *alertCommands) remove(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return errors.New("usage: /a rem <id>")
	}
	id, err := intArg("alert_id", req.Args[0])
	if err != nil {
		return err
	}
	if err := ac.store.Remove(id); err != nil {
		return err
	}
	ac.save(ctx)
	return req.Reply(ctx, ac.dataText(fmt.Sprintf("Alert With ID: %d removed", id)))
}

func (ac *alertCommands) setLead(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return errors.New("usage: /a set_lead <minutes>")
	}
	minutes, err := intArg("lead_time_in_min", req.Args[0])
	if err != nil {
		return err
	}
	if err := ac.store.SetLeadTime(minutes); err != nil {
		return err
	}
	ac.save(ctx)
	return req.Reply(ctx, fmt.Sprintf("Lead time set to %d minutes before the event", minutes))
}

func (ac *alertCommands) setTZ(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 || len(req.Args) > 2 {
		return errors.New("usage: /a set_tz <hours> [minutes]")
	}
	hours, err := intArg("tz_offset_hours", req.Args[0])
	if err != nil {
		return err
	}
	minutes := 0
	if len(req.Args) == 2 {
		if minutes, err = intArg("tz_offset_minutes", req.Args[1]); err != nil {
			return err
		}
	}
	if err := ac.store.SetDefaultTimezone(hours, minutes); err != nil {
		return err
	}
	ac.save(ctx)
	return req.Reply(ctx, ac.dataText("Timezone updated"))
}

func (ac *alertCommands) exportYAML(ctx context.Context, req *router.Request) error {
	b, err := export.YAML(ac.store.Snapshot())
	if err != nil {
		return err
	}
	_, err = req.Adapter.SendDocument(ctx, req.Chat, kit.Document{
		FileName: "alerts.yaml",
		MIME:     "application/yaml",
		Data:     b,
		Caption:  fmt.Sprintf("%d events", ac.store.Len()),
	})
	return err
}

func (ac *alertCommands) exportICS(ctx context.Context, req *router.Request) error {
	b := export.ICS(ac.store.Snapshot(), ac.now())
	_, err := req.Adapter.SendDocument(ctx, req.Chat, kit.Document{
		FileName: "alerts.ics",
		MIME:     "text/calendar",
		Data:     b,
		Caption:  fmt.Sprintf("%d events", ac.store.Len()),
	})
	return err
}

// parseCreateArgs splits "<interval_days> <next_time> <name...>". A time
// written with a space ("2024-05-01 18:30") is joined before parsing.
func parseCreateArgs(args []string) (days int, next alert.Timestamp, name string, err error) {
	if len(args) < 3 {
		return 0, next, "", errors.New("usage: /a create <interval_days> <next_time> <name>")
	}
	if days, err = intArg("interval_in_days", args[0]); err != nil {
		return 0, next, "", err
	}
	if ts, jerr := alert.ParseTimestamp(args[1] + " " + args[2]); jerr == nil {
		if len(args) == 3 {
			return 0, next, "", fmt.Errorf("%w: event name required after %q", alert.ErrInvalidInput, args[1]+" "+args[2])
		}
		return days, ts, strings.Join(args[3:], " "), nil
	}
	if next, err = alert.ParseTimestamp(args[1]); err != nil {
		return 0, next, "", err
	}
	return days, next, strings.Join(args[2:], " "), nil
}

func intArg(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number, got %q", alert.ErrInvalidInput, name, raw)
	}
	return n, nil
}

func (ac *alertCommands) saveNow(ctx context.Context, req *router.Request) error {
	if ac.db == nil {
		return errors.New("persistence is disabled (no storage configured)")
	}
	n, err := ac.persist(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Saved %d events", n))
}

// save persists the store. Failures are logged; the in-memory state stays
// authoritative until the next successful save.
func (ac *alertCommands) save(ctx context.Context) {
	if _, err := ac.persist(ctx); err != nil {
		ac.log.Error("save alert state failed", logx.Err(err))
	}
}

func (ac *alertCommands) persist(ctx context.Context) (int, error) {
	if ac.db == nil {
		return 0, nil
	}
	st := ac.store.Snapshot()
	if err := ac.db.SaveAlerts(ctx, st); err != nil {
		return 0, fmt.Errorf("save alert state: %w", err)
	}
	eventbus.Publish(ac.bus, eventbus.TypeStateSaved, len(st.Events))
	return len(st.Events), nil
}

// restore loads persisted state into the store, if any.
func (ac *alertCommands) restore(ctx context.Context) error {
	if ac.db == nil {
		return nil
	}
	st, ok, err := ac.db.LoadAlerts(ctx)
	if err != nil {
		return fmt.Errorf("load alert state: %w", err)
	}
	if !ok {
		return nil
	}
	return ac.store.Restore(st)
}

// audited records an audit entry for each run of h.
func (ac *alertCommands) audited(action string, h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		start := time.Now()
		err := h(ctx, req)
		if ac.db == nil {
			return err
		}
		e := storage.AuditEntry{
			At:        start,
			ActorID:   req.FromID,
			ActorName: req.FromDisplay,
			ChatID:    req.Chat.ChatID,
			ThreadID:  req.Chat.ThreadID,
			Action:    action,
			Target:    strings.Join(req.Args, " "),
			OK:        err == nil,
			TookMS:    time.Since(start).Milliseconds(),
		}
		if err != nil {
			e.Error = err.Error()
		}
		// The request ctx may have timed out; the audit write gets its own budget.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if aerr := ac.db.AppendAudit(actx, e); aerr != nil {
			req.Logger.Warn("audit write failed", logx.Err(aerr))
		}
		return err
	}
}
