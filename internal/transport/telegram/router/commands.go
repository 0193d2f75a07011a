package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"alertbot/internal/runtime/supervisor"
	kit "alertbot/internal/transport"
	logx "alertbot/pkg/logx"
)

// Access is the minimum role a sender needs to run a command.
type Access int

const (
	AccessEveryone Access = iota
	// AccessPrivileged admits owners and privileged users.
	AccessPrivileged
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g. "ping" or "a create".
	Route       string
	Aliases     []string // root-level aliases, e.g. ["alerts"]
	Description string
	Usage       string
	Access      Access
	// DirectMessage allows the command in private chats. Everything else
	// only runs in group chats.
	DirectMessage bool

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Message     kit.Message
	Chat        kit.ChatTarget
	FromID      int64
	FromDisplay string
	Path        []string // matched command path tokens
	Command     string
	Args        []string
	ReqID       string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML is Reply with HTML parse mode.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

type CommandManager struct {
	mu sync.RWMutex

	root  *cmdNode
	alias map[string]*cmdNode // alias -> leaf node

	owners     []int64
	privileged []int64
	chats      []int64 // allowed group chats; empty allows all

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	appSup  *supervisor.Supervisor

	jobs    chan func()
	workers int
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 256),
		workers: max(runtime.NumCPU(), 2),
	}
}

// SetAppSupervisor makes background work (menu updates) run under the app
// supervisor so it is cancelled on shutdown.
func (m *CommandManager) SetAppSupervisor(sup *supervisor.Supervisor) {
	m.runMu.Lock()
	m.appSup = sup
	m.runMu.Unlock()
}

// SetAccess replaces the owner and privileged user lists. Safe during hot
// reload.
func (m *CommandManager) SetAccess(owners, privileged []int64) {
	o := slices.Clone(owners)
	p := slices.Clone(privileged)
	m.mu.Lock()
	m.owners = o
	m.privileged = p
	m.mu.Unlock()
}

// SetChats restricts commands to the given group chats. An empty list
// allows every group chat. Private chats are governed by
// Command.DirectMessage instead.
func (m *CommandManager) SetChats(ids []int64) {
	c := slices.Clone(ids)
	m.mu.Lock()
	m.chats = c
	m.mu.Unlock()
}

func (m *CommandManager) chatAllowed(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chats) == 0 || slices.Contains(m.chats, chatID)
}

// allowed reports whether id may run a command with access level a.
func (m *CommandManager) allowed(id int64, a Access) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch a {
	case AccessEveryone:
		return true
	case AccessPrivileged:
		return slices.Contains(m.owners, id) || slices.Contains(m.privileged, id)
	default:
		return slices.Contains(m.owners, id)
	}
}

// SetRegistry installs the command set. A help command is always added.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Route:         "help",
		Aliases:       []string{"h"},
		Description:   "show help",
		Usage:         "/help [cmd] [sub...]",
		DirectMessage: true,
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args))
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		leaf := root.find(route)
		// Multi-word routes also answer to their joined menu name
		// ("a set_lead" -> /a_set_lead). A single-word route never aliases
		// itself, or its subcommands would be unreachable.
		if menu, ok := telegramCommandNameFromRoute(route); ok && (len(route) > 1 || menu != route[0]) {
			if _, exists := alias[menu]; !exists {
				alias[menu] = leaf
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()

	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildTelegramMenuCommands(root, cmds)
	run := func(parent context.Context) error {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	}
	m.runMu.Lock()
	appSup := m.appSup
	m.runMu.Unlock()
	if appSup != nil {
		appSup.Go("telegram.menu.update", run)
		return
	}
	go func() { _ = run(context.Background()) }()
}

// DispatchLoop routes incoming messages until ctx is done or updates is
// closed. Commands run on a bounded worker pool.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Message) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.running = true
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.sup = nil
		m.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, msg)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) tryEnqueue(fn func()) bool {
	m.runMu.Lock()
	running := m.running
	m.runMu.Unlock()
	if !running {
		return false
	}
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// resolve maps a message to a command. A nil command with a non-empty path
// means the path names a group.
func (m *CommandManager) resolve(text string) (cmd *Command, path, args []string, known bool) {
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return nil, nil, nil, false
	}
	word := commandWord(parts[0])
	args = parts[1:]

	m.mu.RLock()
	root := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		c := *leaf.cmd
		return &c, splitRoute(c.Route), args, true
	}

	cur, ok := root.child(word)
	if !ok {
		return nil, nil, nil, false
	}
	path = []string{word}
	for len(args) > 0 {
		child, ok := cur.child(strings.ToLower(args[0]))
		if !ok {
			break
		}
		cur = child
		path = append(path, child.name)
		args = args[1:]
	}
	if cur.cmd == nil {
		return nil, path, args, true
	}
	c := *cur.cmd
	return &c, path, args, true
}

func (m *CommandManager) route(ctx context.Context, msg kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !msg.Private && !m.chatAllowed(msg.ChatID) {
		m.log.Debug("command from chat not allowed", logx.Int64("chat_id", msg.ChatID))
		return
	}

	cmd, path, args, known := m.resolve(text)
	if !known {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if cmd == nil {
		_, _ = m.adapter.SendText(ctx, chat, m.helpText(path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}
	if msg.Private && !cmd.DirectMessage {
		_, _ = m.adapter.SendText(ctx, chat, "This command is not available in direct messages.", nil)
		return
	}
	if !m.allowed(msg.FromID, cmd.Access) {
		m.log.Info("command denied", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Route))
		_, _ = m.adapter.SendText(ctx, chat, "You do not have permission to use this command.", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Message:     msg,
		Chat:        chat,
		FromID:      msg.FromID,
		FromDisplay: msg.FromDisplay,
		Path:        path,
		Command:     cmd.Route,
		Args:        args,
		ReqID:       rid,
		Adapter:     m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}

	final := Chain(
		cmd.Handle,
		MWReplyError(),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again", nil)
	}
}
