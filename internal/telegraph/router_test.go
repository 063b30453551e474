package telegraph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"

	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/knowledge"
	"github.com/zulandar/helpline/internal/session"
	"github.com/zulandar/helpline/internal/ticket"
)

type testRig struct {
	engine   *engine.Engine
	sessions *session.Manager
	adapter  *MockAdapter
	tickets  *ticket.Memory
	events   *engine.Broker
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		sessions: session.NewManager(session.ManagerOpts{Platform: "slack", Logger: zaptest.NewLogger(t)}),
		adapter:  NewMockAdapter(),
		tickets:  &ticket.Memory{},
		events:   engine.NewBroker(),
	}
	e, err := engine.New(engine.Opts{
		KB:      knowledge.NewBase(knowledge.DefaultDataset()),
		Tickets: rig.tickets,
		Events:  rig.events,
		Logger:  zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	rig.engine = e
	if err := rig.adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return rig
}

func (rig *testRig) router(t *testing.T, opts RouterOpts) *Router {
	t.Helper()
	opts.Engine = rig.engine
	opts.Sessions = rig.sessions
	opts.Adapter = rig.adapter
	opts.Logger = zaptest.NewLogger(t)
	r, err := NewRouter(opts)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func slackMsg(user, thread, text string) InboundMessage {
	return InboundMessage{
		Platform:  "slack",
		ChannelID: "C1",
		ThreadID:  thread,
		UserID:    user,
		UserName:  "user-" + user,
		Text:      text,
	}
}

// --- NewRouter tests ---

func TestNewRouter_Validation(t *testing.T) {
	rig := newTestRig(t)
	tests := []struct {
		name string
		opts RouterOpts
		want string
	}{
		{"no engine", RouterOpts{Sessions: rig.sessions, Adapter: rig.adapter}, "engine is required"},
		{"no sessions", RouterOpts{Engine: rig.engine, Adapter: rig.adapter}, "session manager is required"},
		{"no adapter", RouterOpts{Engine: rig.engine, Sessions: rig.sessions}, "adapter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNewRouter_Defaults(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})
	if r.prefix != DefaultCommandPrefix {
		t.Errorf("prefix = %q, want %q", r.prefix, DefaultCommandPrefix)
	}
	if r.maxReply != DefaultMaxReplyLen {
		t.Errorf("maxReply = %d, want %d", r.maxReply, DefaultMaxReplyLen)
	}
	if r.cmdHandler == nil {
		t.Error("command handler should be built by default")
	}
}

// --- Handle tests ---

func TestHandle_AnswersInThread(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})

	r.Handle(context.Background(), slackMsg("U1", "T1", "How long does shipping take?"))

	sent, ok := rig.adapter.LastSent()
	if !ok {
		t.Fatal("expected a reply")
	}
	if !strings.Contains(sent.Text, "3-5 business days") {
		t.Errorf("Text = %q", sent.Text)
	}
	if sent.ChannelID != "C1" || sent.ThreadID != "T1" {
		t.Errorf("reply routed to %s/%s, want C1/T1", sent.ChannelID, sent.ThreadID)
	}
	if rig.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", rig.sessions.Len())
	}
}

func TestHandle_IgnoresSelf(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{BotUserID: "B1"})

	r.Handle(context.Background(), slackMsg("B1", "", "Hello"))

	if rig.adapter.SentCount() != 0 {
		t.Errorf("bot messages should be ignored, sent %d", rig.adapter.SentCount())
	}
}

func TestHandle_StripsMentions(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})

	r.Handle(context.Background(), slackMsg("U1", "", "<@U0BOT> hello"))

	sent, _ := rig.adapter.LastSent()
	if sent.Text != "Hello! How can I assist you today?" {
		t.Errorf("Text = %q", sent.Text)
	}
}

func TestHandle_BareMentionIgnored(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})

	r.Handle(context.Background(), slackMsg("U1", "", "<@!123456>  "))

	if rig.adapter.SentCount() != 0 {
		t.Errorf("bare mention should not trigger a turn")
	}
	if rig.sessions.Len() != 0 {
		t.Errorf("bare mention should not create a session")
	}
}

func TestHandle_SessionsPerUser(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})
	ctx := context.Background()

	r.Handle(ctx, slackMsg("U1", "T1", "Where is my order?"))
	r.Handle(ctx, slackMsg("U2", "T1", "Hello"))
	r.Handle(ctx, slackMsg("U1", "T1", "ORD12345678"))

	sent := rig.adapter.AllSent()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sent))
	}
	if !strings.Contains(sent[2].Text, "ORD12345678") {
		t.Errorf("order reply = %q", sent[2].Text)
	}
	if rig.sessions.Len() != 2 {
		t.Errorf("sessions = %d, want 2", rig.sessions.Len())
	}
}

func TestHandle_EscalationAttachesTicket(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})
	ctx := context.Background()

	r.Handle(ctx, slackMsg("U1", "T1", "asdkjh"))
	r.Handle(ctx, slackMsg("U1", "T1", "qweqwe"))

	sent, _ := rig.adapter.LastSent()
	if len(sent.Events) != 1 {
		t.Fatalf("expected an escalation event, got %+v", sent)
	}
	ev := sent.Events[0]
	if ev.Color != ColorWarning {
		t.Errorf("Color = %q", ev.Color)
	}
	if ev.Fields[0].Value != "MEM-1" {
		t.Errorf("ticket field = %+v", ev.Fields[0])
	}

	reqs := rig.tickets.Requests()
	if len(reqs) != 1 || reqs[0].Platform != "slack" {
		t.Fatalf("tickets = %+v", reqs)
	}
}

func TestHandle_TruncatesReply(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{MaxReplyLen: 20})

	r.Handle(context.Background(), slackMsg("U1", "", "How long does shipping take?"))

	sent, _ := rig.adapter.LastSent()
	if utf8.RuneCountInString(sent.Text) != 20 || !strings.HasSuffix(sent.Text, "...") {
		t.Errorf("Text = %q", sent.Text)
	}
}

func TestHandle_SendErrorDoesNotPanic(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})
	rig.adapter.SetSendError(errors.New("rate limited"))

	r.Handle(context.Background(), slackMsg("U1", "", "Hello"))

	s, err := rig.sessions.Get(session.ThreadKey("slack", "C1", "C1", "U1"))
	if err != nil {
		t.Fatalf("session should exist: %v", err)
	}
	if len(s.Turns()) != 2 {
		t.Errorf("turns = %d, want 2", len(s.Turns()))
	}
}

func TestHandle_CancelledContext(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Handle(ctx, slackMsg("U1", "", "Hello"))

	if rig.adapter.SentCount() != 0 {
		t.Errorf("no reply expected after cancellation")
	}
}

func TestHandle_Commands(t *testing.T) {
	rig := newTestRig(t)
	r := rig.router(t, RouterOpts{CommandPrefix: "!support"})
	ctx := context.Background()

	r.Handle(ctx, slackMsg("U1", "", "!support help"))
	sent, _ := rig.adapter.LastSent()
	if !strings.Contains(sent.Text, "`!support reset`") {
		t.Errorf("help = %q", sent.Text)
	}

	r.Handle(ctx, slackMsg("U1", "", "<@123456> topics"))
	sent, _ = rig.adapter.LastSent()
	if !strings.Contains(sent.Text, "Where is my order?") {
		t.Errorf("topics = %q", sent.Text)
	}

	if rig.sessions.Len() != 0 {
		t.Errorf("commands should not start a conversation")
	}
}

// --- helper tests ---

func TestResolveThreadID(t *testing.T) {
	if got := resolveThreadID("C1", ""); got != "C1" {
		t.Errorf("top-level = %q, want C1", got)
	}
	if got := resolveThreadID("C1", "T9"); got != "T9" {
		t.Errorf("thread = %q, want T9", got)
	}
}

func TestStripMentions(t *testing.T) {
	tests := map[string]string{
		"<@U024BE7LH> where is my order": "where is my order",
		"<@!42> hi <@7>":                 "hi",
		"no mention here":                "no mention here",
		"email me@example.com":           "email me@example.com",
	}
	for in, want := range tests {
		if got := stripMentions(in); got != want {
			t.Errorf("stripMentions(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("héllo wörld", 8); got != "héllo..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestIsCommand(t *testing.T) {
	if !isCommand("!hl", "!hl") || !isCommand("!hl stats", "!hl") {
		t.Error("prefixed text should be a command")
	}
	if isCommand("!hlstats", "!hl") || isCommand("hello !hl", "!hl") {
		t.Error("prefix must be a standalone leading word")
	}
}
