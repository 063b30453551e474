package telegraph

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/zulandar/helpline/internal/session"
)

const testKey = "slack:C1:T1:U1"

func newTestCommandHandler(t *testing.T) (*CommandHandler, *testRig) {
	t.Helper()
	rig := newTestRig(t)
	ch, err := NewCommandHandler(CommandHandlerOpts{Engine: rig.engine, Sessions: rig.sessions})
	if err != nil {
		t.Fatalf("NewCommandHandler: %v", err)
	}
	return ch, rig
}

// talk runs user turns in the session under testKey.
func talk(t *testing.T, rig *testRig, texts ...string) *session.Session {
	t.Helper()
	s := rig.sessions.GetOrCreate(testKey)
	for _, text := range texts {
		if _, err := rig.engine.Turn(context.Background(), s, text); err != nil {
			t.Fatalf("Turn(%q): %v", text, err)
		}
	}
	return s
}

func TestNewCommandHandler_Validation(t *testing.T) {
	rig := newTestRig(t)
	if _, err := NewCommandHandler(CommandHandlerOpts{Sessions: rig.sessions}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewCommandHandler(CommandHandlerOpts{Engine: rig.engine}); err == nil {
		t.Error("expected error without session manager")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"!hl", nil},
		{"!hl   ", nil},
		{"!hl history 5", []string{"history", "5"}},
		{"  !hl  stats  ", []string{"stats"}},
	}
	for _, tt := range tests {
		if got := parseCommand(tt.in, "!hl"); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseCommand(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExecute_Help(t *testing.T) {
	ch, _ := newTestCommandHandler(t)
	for _, text := range []string{"!hl", "!hl help", "!hl HELP"} {
		got := ch.Execute(testKey, text)
		if !strings.Contains(got, "Support Bot Commands") {
			t.Errorf("Execute(%q) = %q", text, got)
		}
	}
}

func TestExecute_Unknown(t *testing.T) {
	ch, _ := newTestCommandHandler(t)
	got := ch.Execute(testKey, "!hl dance")
	if !strings.HasPrefix(got, "Unknown command: `dance`") {
		t.Errorf("got %q", got)
	}
}

func TestExecute_Reset(t *testing.T) {
	ch, rig := newTestCommandHandler(t)

	if got := ch.Execute(testKey, "!hl reset"); !strings.Contains(got, "Nothing to reset") {
		t.Errorf("reset without session = %q", got)
	}

	s := talk(t, rig, "Where is my order?")
	got := ch.Execute(testKey, "!hl reset")
	if !strings.HasPrefix(got, "Conversation cleared.") {
		t.Errorf("reset = %q", got)
	}
	if len(s.Turns()) != 0 {
		t.Errorf("turns after reset = %d", len(s.Turns()))
	}
	if s.State().Mode.String() != "idle" {
		t.Errorf("mode after reset = %s", s.State().Mode)
	}
}

func TestExecute_History(t *testing.T) {
	ch, rig := newTestCommandHandler(t)

	if got := ch.Execute(testKey, "!hl history"); got != "No conversation history yet." {
		t.Errorf("empty history = %q", got)
	}

	talk(t, rig, "Hello", "How long does shipping take?")

	got := ch.Execute(testKey, "!hl history")
	if !strings.HasPrefix(got, "**History** (last 4)") {
		t.Errorf("history = %q", got)
	}
	if !strings.Contains(got, "You: Hello") || !strings.Contains(got, "Bot: Shipping typically") {
		t.Errorf("history = %q", got)
	}

	got = ch.Execute(testKey, "!hl history 1")
	if !strings.HasPrefix(got, "**History** (last 1)") || strings.Contains(got, "You:") {
		t.Errorf("history 1 = %q", got)
	}

	if got := ch.Execute(testKey, "!hl history zero"); !strings.HasPrefix(got, "Usage:") {
		t.Errorf("bad count = %q", got)
	}
}

func TestExecute_Stats(t *testing.T) {
	ch, rig := newTestCommandHandler(t)
	if got := ch.Execute(testKey, "!hl stats"); got != "No conversation yet." {
		t.Errorf("stats without session = %q", got)
	}

	talk(t, rig, "How long does shipping take?", "asdkjh", "qweqwe")

	got := ch.Execute(testKey, "!hl stats")
	if !strings.Contains(got, "Messages: 3 | Escalations: 1") {
		t.Errorf("stats = %q", got)
	}
	// fallback (2) sorts ahead of shipping_info (1).
	fi := strings.Index(got, "fallback")
	si := strings.Index(got, "shipping_info")
	if fi < 0 || si < 0 || fi > si {
		t.Errorf("intent order wrong: %q", got)
	}
}

func TestExecute_Export(t *testing.T) {
	ch, rig := newTestCommandHandler(t)
	if got := ch.Execute(testKey, "!hl export"); got != "No conversation history to export." {
		t.Errorf("export without session = %q", got)
	}

	talk(t, rig, "Hello")
	got := ch.Execute(testKey, "!hl export")
	if !strings.HasPrefix(got, "`chat_history_") {
		t.Errorf("export = %q", got)
	}
	if !strings.Contains(got, "role,content,intent,category,timestamp") {
		t.Errorf("export missing header: %q", got)
	}
	if !strings.HasSuffix(got, "```") {
		t.Errorf("export should end with a code fence: %q", got)
	}
}

func TestExecute_Topics(t *testing.T) {
	ch, _ := newTestCommandHandler(t)
	got := ch.Execute(testKey, "!hl topics")
	for _, q := range []string{"Where is my order?", "I want to return an item", "How long does shipping take?"} {
		if !strings.Contains(got, q) {
			t.Errorf("topics missing %q: %q", q, got)
		}
	}
}

func TestFormatIntents(t *testing.T) {
	if got := formatIntents(nil); got != "No intents yet.\n" {
		t.Errorf("got %q", got)
	}
	got := formatIntents(map[string]int{"b": 1, "a": 1, "c": 3})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "c") || !strings.HasPrefix(lines[1], "a") {
		t.Errorf("got %q", got)
	}
}
