package dialogue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver answers only the texts it knows.
type stubResolver map[string]Resolution

func (s stubResolver) Resolve(text string) Resolution {
	if r, ok := s[strings.ToLower(strings.TrimSpace(text))]; ok {
		r.Matched = true
		return r
	}
	return Resolution{Score: 0.05}
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(MachineOpts{
		Resolver: stubResolver{
			"how long does shipping take?": {
				Response: "Shipping takes 3-5 business days.",
				Intent:   "shipping_info",
				Category: "shipping",
				Score:    1,
			},
		},
	})
	require.NoError(t, err)
	return m
}

// --- NewMachine tests ---

func TestNewMachine_RequiresResolver(t *testing.T) {
	_, err := NewMachine(MachineOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver is required")
}

func TestNewMachine_BadPattern(t *testing.T) {
	_, err := NewMachine(MachineOpts{Resolver: stubResolver{}, OrderPattern: "([a-z"})
	require.Error(t, err)
}

func TestCompileOrderPattern_CaptureGroups(t *testing.T) {
	_, err := CompileOrderPattern(`[0-9]{8}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one capture group")

	_, err = CompileOrderPattern(`([A-Z]+)-([0-9]+)`)
	require.Error(t, err)

	_, err = CompileOrderPattern(DefaultOrderPattern)
	require.NoError(t, err)
}

func TestNewMachine_Defaults(t *testing.T) {
	m := newTestMachine(t)
	assert.Equal(t, DefaultEscalateAfter, m.EscalateAfter())
	assert.Equal(t, DefaultMessages(), m.msgs)
}

func TestMessages_WithDefaults_KeepsOverrides(t *testing.T) {
	got := Messages{Greeting: "Howdy!"}.WithDefaults()
	assert.Equal(t, "Howdy!", got.Greeting)
	assert.Equal(t, DefaultMessages().Escalation, got.Escalation)
}

// --- Greeting ---

func TestStep_GreetingResetsFallback(t *testing.T) {
	m := newTestMachine(t)
	for _, in := range []string{"Hi", "HELLO there", "hey!", "Good Morning team", "good   afternoon"} {
		s := &State{FallbackCount: 3}
		r := m.Step(s, in)
		assert.Equal(t, KindGreeting, r.Kind, "input %q", in)
		assert.Equal(t, DefaultMessages().Greeting, r.Content)
		assert.Equal(t, "greeting", r.Intent)
		assert.Equal(t, 0, s.FallbackCount)
		assert.Equal(t, Idle, s.Mode)
	}
}

func TestStep_GreetingIsWordBounded(t *testing.T) {
	m := newTestMachine(t)
	assert.False(t, m.IsGreeting("How long does shipping take?"))
	assert.False(t, m.IsGreeting("this is history"))
	assert.False(t, m.IsGreeting("ähi"))
	assert.False(t, m.IsGreeting("heyñ"))
	assert.True(t, m.IsGreeting("¿hola? hi"))
	assert.True(t, m.IsGreeting("oh hi"))
}

// --- Order tracking ---

func TestStep_TrackOrderWithNumber(t *testing.T) {
	m := newTestMachine(t)
	s := &State{FallbackCount: 1}
	r := m.Step(s, "track order ABC123XY")

	assert.Equal(t, KindOrderProcessing, r.Kind)
	assert.Equal(t, "ABC123XY", r.OrderNumber)
	assert.Contains(t, r.Content, "ABC123XY")
	assert.Equal(t, Idle, s.Mode)
	assert.Equal(t, PendingNone, s.PendingIntent)
	assert.Equal(t, "ABC123XY", s.CapturedOrderNumber)
	assert.Equal(t, 0, s.FallbackCount)
}

func TestStep_TrackOrderNumberTooShort(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}
	r := m.Step(s, "track order AB")

	assert.Equal(t, KindAskOrderNumber, r.Kind)
	assert.Equal(t, AwaitingOrderNumber, s.Mode)
	assert.Equal(t, PendingTrackOrder, s.PendingIntent)
	assert.Empty(t, s.CapturedOrderNumber)
}

func TestStep_OrderScenario(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}

	r1 := m.Step(s, "Where is my order?")
	assert.Equal(t, KindAskOrderNumber, r1.Kind)
	assert.Equal(t, AwaitingOrderNumber, s.Mode)
	assert.Equal(t, DefaultMessages().AskOrderNumber, r1.Content)

	r2 := m.Step(s, "ABCD1234EFGH")
	assert.Equal(t, KindOrderProcessing, r2.Kind)
	assert.Equal(t, Idle, s.Mode)
	assert.Equal(t, "ABCD1234EFGH", s.CapturedOrderNumber)
	assert.Contains(t, r2.Content, "ABCD1234EFGH")
	assert.NotContains(t, r2.Content, OrderNumberPlaceholder)
}

func TestStep_AwaitingInvalidInputLeavesStateUnchanged(t *testing.T) {
	m := newTestMachine(t)
	s := &State{Mode: AwaitingOrderNumber, PendingIntent: PendingTrackOrder, FallbackCount: 1}
	before := *s

	for _, in := range []string{"I don't know it", "hello", "how long does it take?", "", "1234"} {
		r := m.Step(s, in)
		assert.Equal(t, KindRepromptOrderNumber, r.Kind, "input %q", in)
		assert.Equal(t, DefaultMessages().RepromptOrderNumber, r.Content)
		assert.Equal(t, before, *s, "input %q", in)
	}
}

func TestStep_OrderPhrasesAreCaseInsensitive(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}
	m.Step(s, "ORDER STATUS please")
	assert.Equal(t, AwaitingOrderNumber, s.Mode)
}

func TestExtractOrderNumber(t *testing.T) {
	m := newTestMachine(t)
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABC123XY", "ABC123XY", true},
		{"my number is abcd1234efgh.", "abcd1234efgh", true},
		{"first 11111111 then 22222222", "11111111", true},
		{"ABC1234", "", false},         // 7 chars
		{"ABCDEFGHIJKLM", "", false},   // 13 chars
		{"ABC-123-XYZ", "", false},     // separators break the run
		{"order #ZX98765432!", "ZX98765432", true},
		{"ÄBCDEFGH12", "", false}, // non-ASCII letter extends the run
		{"ABCDEFGH12é", "", false},
		{"ABCDEFGH12_x", "", false},
		{"né: ABCDEFGH12", "ABCDEFGH12", true},
	}
	for _, tt := range tests {
		got, ok := m.ExtractOrderNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestStep_CustomOrderPattern(t *testing.T) {
	m, err := NewMachine(MachineOpts{
		Resolver:     stubResolver{},
		OrderPattern: `(?i)\b(ORD-\d{6})\b`,
	})
	require.NoError(t, err)

	s := &State{}
	r := m.Step(s, "track order ord-123456")
	assert.Equal(t, KindOrderProcessing, r.Kind)
	assert.Equal(t, "ord-123456", s.CapturedOrderNumber)
}

// --- Delegation and fallback ---

func TestStep_MatchResetsFallback(t *testing.T) {
	m := newTestMachine(t)
	s := &State{FallbackCount: 1}
	r := m.Step(s, "How long does shipping take?")

	assert.Equal(t, KindAnswer, r.Kind)
	assert.Equal(t, "Shipping takes 3-5 business days.", r.Content)
	assert.Equal(t, "shipping_info", r.Intent)
	assert.Equal(t, "shipping", r.Category)
	assert.Equal(t, 0, s.FallbackCount)
}

func TestStep_TwoMissesEscalate(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}

	r1 := m.Step(s, "asdkjh")
	assert.Equal(t, KindRephrase, r1.Kind)
	assert.Equal(t, DefaultMessages().Rephrase, r1.Content)
	assert.Equal(t, 1, s.FallbackCount)

	r2 := m.Step(s, "qweqwe")
	assert.Equal(t, KindEscalation, r2.Kind)
	assert.Equal(t, DefaultMessages().Escalation, r2.Content)
	assert.Equal(t, 2, s.FallbackCount)
}

func TestStep_EscalationIsMonotonic(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}
	for i := 1; i <= 6; i++ {
		r := m.Step(s, "zzz")
		assert.Equal(t, i, s.FallbackCount)
		if i >= 2 {
			assert.Equal(t, KindEscalation, r.Kind, "turn %d", i)
		}
	}
}

func TestStep_CustomEscalateAfter(t *testing.T) {
	m, err := NewMachine(MachineOpts{Resolver: stubResolver{}, EscalateAfter: 3})
	require.NoError(t, err)
	s := &State{}
	assert.Equal(t, KindRephrase, m.Step(s, "a").Kind)
	assert.Equal(t, KindRephrase, m.Step(s, "b").Kind)
	assert.Equal(t, KindEscalation, m.Step(s, "c").Kind)
}

func TestStep_AwaitingDoesNotTouchFallbackCount(t *testing.T) {
	m := newTestMachine(t)
	s := &State{}
	m.Step(s, "zzz")
	require.Equal(t, 1, s.FallbackCount)

	m.Step(s, "track my order")
	m.Step(s, "no idea")
	assert.Equal(t, 1, s.FallbackCount)
	assert.Equal(t, AwaitingOrderNumber, s.Mode)
}

func TestStep_UnknownModeRecoversToIdle(t *testing.T) {
	m := newTestMachine(t)
	s := &State{Mode: Mode(42), PendingIntent: PendingTrackOrder}
	r := m.Step(s, "hello")
	assert.Equal(t, KindGreeting, r.Kind)
	assert.Equal(t, Idle, s.Mode)
	assert.Equal(t, PendingNone, s.PendingIntent)
}

func TestStep_AdversarialInput(t *testing.T) {
	m := newTestMachine(t)
	inputs := []string{
		"",
		strings.Repeat("A", 1<<20),
		"¿Dónde está mi pedido?",
		"\x00\xff\xfe",
		strings.Repeat("track order ", 10000),
	}
	for _, in := range inputs {
		s := &State{}
		assert.NotPanics(t, func() { m.Step(s, in) }, "input len %d", len(in))
	}
}

func TestResolverFunc(t *testing.T) {
	var f Resolver = ResolverFunc(func(text string) Resolution {
		return Resolution{Response: text, Matched: true}
	})
	assert.Equal(t, "echo", f.Resolve("echo").Response)
}

// --- State tests ---

func TestState_Reset(t *testing.T) {
	s := State{Mode: AwaitingOrderNumber, FallbackCount: 4, PendingIntent: PendingTrackOrder, CapturedOrderNumber: "X"}
	s.Reset()
	assert.Equal(t, State{}, s)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "awaiting_order_number", AwaitingOrderNumber.String())
	assert.Equal(t, "unknown", Mode(9).String())

	text, err := AwaitingOrderNumber.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_order_number", string(text))
}
