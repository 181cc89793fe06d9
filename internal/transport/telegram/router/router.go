// Package router turns adapter updates into handler calls: slash commands,
// inline-button callbacks ("scope:action:payload") and free text.
//
// Updates from one chat are handled in arrival order by a single worker, so
// conversation state for a chat never sees concurrent input.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "timetablebot/internal/runtime/supervisor"
	kit "timetablebot/internal/transport"
	logx "timetablebot/pkg/logx"
	"timetablebot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

const (
	msgUnknown   = "Неизвестная команда. Наберите /help."
	msgForbidden = "Команда доступна только администраторам."
	msgBusy      = "Бот перегружен, попробуйте ещё раз."
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
	// Hidden commands work but are left out of the menu and /help.
	Hidden bool
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	// Args is the text after the command word, trimmed.
	Args string
	// Text is the full message text for free-text requests.
	Text string
	// Callback fields.
	CallbackID string
	MessageID  int
	Payload    string

	ReqID  string
	Logger logx.Logger
}

type Options struct {
	Workers     int
	QueueSize   int
	TextTimeout time.Duration
}

type Router struct {
	adapter kit.Adapter
	log     logx.Logger
	opts    Options

	mu      sync.RWMutex
	cmds    map[string]*Command
	ordered []*Command
	cbs     map[string]CallbackRoute
	text    HandlerFunc
	admins  map[int64]bool

	runMu  sync.Mutex
	sup    *rtsup.Supervisor
	queues []chan func()
}

func New(adapter kit.Adapter, opts Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = time.Minute
	}
	return &Router{
		adapter: adapter,
		log:     log.With(logx.String("comp", "telegram.router")),
		opts:    opts,
		cmds:    map[string]*Command{},
		cbs:     map[string]CallbackRoute{},
		admins:  map[int64]bool{},
	}
}

// SetAdmins replaces the admin list. Safe during hot reload.
func (r *Router) SetAdmins(ids []int64) {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	r.mu.Lock()
	r.admins = m
	r.mu.Unlock()
}

func (r *Router) IsAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[id]
}

// Register replaces the routing table. A /help command is always added.
func (r *Router) Register(cmds []Command, cbs []CallbackRoute, text HandlerFunc) {
	table := map[string]*Command{}
	var ordered []*Command
	add := func(c Command) {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			return
		}
		c.Name = name
		cc := &c
		table[name] = cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, taken := table[a]; !taken {
					table[a] = cc
				}
			}
		}
	}
	for _, c := range cmds {
		add(c)
	}
	add(Command{Name: "help", Description: "список команд", Handle: r.handleHelp})

	cb := map[string]CallbackRoute{}
	for _, c := range cbs {
		if c.Scope == "" || c.Action == "" || c.Handle == nil {
			continue
		}
		cb[c.Scope+":"+c.Action] = c
	}

	r.mu.Lock()
	r.cmds, r.ordered, r.cbs, r.text = table, ordered, cb, text
	r.mu.Unlock()
}

// Supervisor exposes the worker goroutines for /status. Nil when not running.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// DispatchLoop consumes updates until ctx ends or the channel closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	queues := make([]chan func(), r.opts.Workers)
	for i := range queues {
		q := make(chan func(), r.opts.QueueSize)
		queues[i] = q
		sup.GoRestart("worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-q:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.runMu.Lock()
	r.sup, r.queues = sup, queues
	r.runMu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := r.menu()
		sup.Go("menu.update", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	r.log.Info("dispatcher started", logx.Int("workers", len(queues)))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.runMu.Lock()
		r.sup, r.queues = nil, nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(sup.Context(), queues, up)
		}
	}
}

func shard(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

func (r *Router) route(ctx context.Context, queues []chan func(), up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.routeMessage(ctx, queues, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.routeCallback(ctx, queues, up)
		}
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) routeMessage(ctx context.Context, queues []chan func(), up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	r.mu.RLock()
	cmds, textH := r.cmds, r.text
	r.mu.RUnlock()

	if word, args, ok := splitCommand(text); ok {
		cmd, found := cmds[word]
		if !found {
			r.enqueue(ctx, queues, chat, func() { r.reply(ctx, chat, msgUnknown) })
			return
		}
		if cmd.Access == AccessAdminOnly && !r.IsAdmin(msg.FromID) {
			r.enqueue(ctx, queues, chat, func() { r.reply(ctx, chat, msgForbidden) })
			return
		}
		req := r.newRequest(up, chat, msg.FromID, cmd.Name)
		req.Args, req.Text = args, text
		h := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(cmd.Timeout))
		r.enqueue(ctx, queues, chat, func() { _ = h(ctx, req) })
		return
	}

	if textH == nil || text == "" {
		return
	}
	req := r.newRequest(up, chat, msg.FromID, "text")
	req.Text = text
	h := Chain(textH, MWPanicRecover(), MWRequestLog(), MWTimeout(r.opts.TextTimeout))
	r.enqueue(ctx, queues, chat, func() { _ = h(ctx, req) })
}

func (r *Router) routeCallback(ctx context.Context, queues []chan func(), up kit.Update) {
	cb := up.Callback
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	r.mu.RLock()
	route, found := r.cbs[scope+":"+action]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if route.Access == AccessAdminOnly && !r.IsAdmin(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, msgForbidden)
		return
	}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.CallbackID, req.MessageID, req.Payload = cb.ID, cb.MessageID, payload
	h := Chain(route.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(route.Timeout))
	r.enqueue(ctx, queues, chat, func() {
		_ = h(ctx, req)
		// stops the loading indicator; a handler may have answered already
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	})
}

func (r *Router) enqueue(ctx context.Context, queues []chan func(), chat kit.ChatTarget, job func()) {
	select {
	case queues[shard(chat.ChatID, len(queues))] <- job:
	default:
		r.log.Warn("request dropped (queue full)", logx.Int64("chat_id", chat.ChatID))
		r.reply(ctx, chat, msgBusy)
	}
}

func (r *Router) reply(ctx context.Context, chat kit.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, chat, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}

// splitCommand returns the lower-cased command word without "/" or "@bot".
func splitCommand(text string) (word, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(head)
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}
