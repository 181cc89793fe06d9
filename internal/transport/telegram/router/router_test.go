package router

import (
	"context"
	"sync"
	"testing"
	"time"

	kit "timetablebot/internal/transport"
	logx "timetablebot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	answers []string
	menu    []kit.BotCommand
}

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{MessageID: len(f.sent)}, nil
}
func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}
func (f *fakeAdapter) SendDocument(context.Context, kit.ChatTarget, kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func run(t *testing.T, r *Router) chan kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func msg(chat int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chat, FromID: chat, Text: text}}
}

func TestRoutesCommandsTextAndCallbacks(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(ad, Options{Workers: 2}, logx.Nop())

	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
	r.Register(
		[]Command{{Name: "start", Aliases: []string{"menu"}, Description: "главное меню", Handle: func(_ context.Context, req *Request) error {
			record("start:" + req.Args)
			return nil
		}}},
		[]CallbackRoute{{Scope: "tt", Action: "range", Handle: func(_ context.Context, req *Request) error {
			record("cb:" + req.Payload)
			return nil
		}}},
		func(_ context.Context, req *Request) error {
			record("text:" + req.Text)
			return nil
		},
	)
	updates := run(t, r)

	updates <- msg(1, "/start@timetable_bot  hello ")
	updates <- msg(1, "/Menu")
	updates <- msg(1, "БИ25-1")
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c1", ChatID: 1, FromID: 1, Data: "tt:range:today"}}

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 4 })
	want := []string{"start:hello", "start:", "text:БИ25-1", "cb:today"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled = %q, want %q", got, want)
		}
	}
}

func TestUnknownAndAdminCommands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(ad, Options{}, logx.Nop())
	r.SetAdmins([]int64{7})
	r.Register([]Command{{Name: "status", Access: AccessAdminOnly, Description: "состояние", Handle: func(ctx context.Context, req *Request) error {
		_, err := ad.SendText(ctx, req.Chat, "ok", nil)
		return err
	}}}, nil, nil)
	updates := run(t, r)

	updates <- msg(5, "/nope")
	waitFor(t, func() bool { return len(ad.texts()) == 1 })
	updates <- msg(5, "/status")
	waitFor(t, func() bool { return len(ad.texts()) == 2 })
	updates <- msg(7, "/status")
	waitFor(t, func() bool { return len(ad.texts()) == 3 })

	got := ad.texts()
	if got[0] != msgUnknown || got[1] != msgForbidden || got[2] != "ok" {
		t.Fatalf("replies = %q", got)
	}
}

func TestPanicInHandlerKeepsWorkerAlive(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(ad, Options{Workers: 1}, logx.Nop())
	r.Register([]Command{
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }},
		{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
			_, err := ad.SendText(ctx, req.Chat, "pong", nil)
			return err
		}},
	}, nil, nil)
	updates := run(t, r)
	updates <- msg(1, "/boom")
	updates <- msg(1, "/ping")
	waitFor(t, func() bool { return len(ad.texts()) == 1 })
}

func TestMenuAndHelp(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(ad, Options{}, logx.Nop())
	r.Register([]Command{
		{Name: "status", Access: AccessAdminOnly, Description: "состояние"},
		{Name: "start", Description: "главное меню"},
		{Name: "cancel", Description: "отменить", Hidden: true},
	}, nil, nil)
	// commands without handlers are dropped
	if m := r.menu(); len(m) != 1 || m[0].Command != "help" {
		t.Fatalf("menu = %+v", m)
	}

	noop := func(context.Context, *Request) error { return nil }
	r.Register([]Command{
		{Name: "status", Access: AccessAdminOnly, Description: "состояние", Handle: noop},
		{Name: "start", Description: "главное меню", Handle: noop},
		{Name: "cancel", Description: "отменить", Hidden: true, Handle: noop},
	}, nil, nil)
	m := r.menu()
	if len(m) != 3 || m[0].Command != "start" || m[1].Command != "help" || m[2].Description != "🔒 состояние" {
		t.Fatalf("menu = %+v", m)
	}
	if h := r.helpText(false); h != "📚 <b>Команды</b>\n\n/start - главное меню\n/help - список команд" {
		t.Fatalf("helpText = %q", h)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/Start":     "start",
		"my-cmd":     "my_cmd",
		"  ics  ":    "ics",
		"расписание": "",
	}
	for in, want := range cases {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
