package dialogue

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zulandar/helpline/internal/textnorm"
)

// DefaultOrderPattern matches an 8-12 character alphanumeric order number.
// The run must not touch another letter, digit or underscore in any script.
const DefaultOrderPattern = `(?i)` + wordStart + `([A-Za-z0-9]{8,12})` + wordEnd

// Unicode-aware word guards. RE2's \b only knows ASCII word characters, so
// "Ä" would count as a boundary.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:[^\p{L}\p{N}_]|$)`
)

// DefaultEscalateAfter is the fallback streak that triggers escalation.
const DefaultEscalateAfter = 2

// OrderNumberPlaceholder is replaced by the captured number in
// Messages.OrderProcessing.
const OrderNumberPlaceholder = "{order_number}"

// Reply intents and categories produced by the machine itself.
const (
	IntentGreeting    = "greeting"
	IntentOrderStatus = "order_status"
	IntentFallback    = "fallback"
	CategoryGreeting  = "greeting"
	CategoryOrders    = "orders"
	CategoryFallback  = "fallback"
	CategoryEscalate  = "escalation"
)

// Messages are the reply texts the machine produces on its own.
type Messages struct {
	Greeting            string `yaml:"greeting"`
	AskOrderNumber      string `yaml:"ask_order_number"`
	RepromptOrderNumber string `yaml:"reprompt_order_number"`
	OrderProcessing     string `yaml:"order_processing"`
	Rephrase            string `yaml:"rephrase"`
	Escalation          string `yaml:"escalation"`
}

// DefaultMessages returns the built-in reply texts.
func DefaultMessages() Messages {
	return Messages{
		Greeting:            "Hello! How can I assist you today?",
		AskOrderNumber:      "I can help you track your order. Please provide your order number.",
		RepromptOrderNumber: "That doesn't look like a valid order number. Please enter the 8-12 character order number from your confirmation email.",
		OrderProcessing:     "Thanks! I'm looking up order " + OrderNumberPlaceholder + " now. You'll receive a status update shortly.",
		Rephrase:            "I'm sorry, I didn't understand. Can you please rephrase?",
		Escalation:          "I'm having trouble understanding your request. I've opened a support ticket and a human agent will contact you shortly.",
	}
}

// WithDefaults returns m with empty fields taken from DefaultMessages.
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages()
	m.Greeting = orDefault(m.Greeting, d.Greeting)
	m.AskOrderNumber = orDefault(m.AskOrderNumber, d.AskOrderNumber)
	m.RepromptOrderNumber = orDefault(m.RepromptOrderNumber, d.RepromptOrderNumber)
	m.OrderProcessing = orDefault(m.OrderProcessing, d.OrderProcessing)
	m.Rephrase = orDefault(m.Rephrase, d.Rephrase)
	m.Escalation = orDefault(m.Escalation, d.Escalation)
	return m
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// DefaultGreetingPhrases returns the built-in greeting triggers.
func DefaultGreetingPhrases() []string {
	return []string{"hi", "hello", "hey", "good morning", "good afternoon"}
}

// DefaultOrderPhrases returns the built-in order-tracking triggers.
func DefaultOrderPhrases() []string {
	return []string{"where is my order", "track order", "track my order", "order status"}
}

// Resolution is a matcher's answer to free text.
type Resolution struct {
	Response string
	Intent   string
	Category string
	Score    float64
	Matched  bool
}

// Resolver answers text the machine does not handle itself.
type Resolver interface {
	Resolve(text string) Resolution
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(text string) Resolution

// Resolve calls f.
func (f ResolverFunc) Resolve(text string) Resolution { return f(text) }

// transition handles one input in a given mode and mutates the state.
type transition func(s *State, text, norm string) Reply

// Machine is the dialogue state machine. It holds no per-conversation data
// and is safe to share across conversations.
type Machine struct {
	resolver      Resolver
	greetings     []*regexp.Regexp
	orderTriggers []*regexp.Regexp
	orderRe       *regexp.Regexp
	escalateAfter int
	msgs          Messages
	transitions   map[Mode]transition
}

// MachineOpts holds parameters for creating a Machine.
type MachineOpts struct {
	Resolver        Resolver
	GreetingPhrases []string // defaults to DefaultGreetingPhrases()
	OrderPhrases    []string // defaults to DefaultOrderPhrases()
	OrderPattern    string   // defaults to DefaultOrderPattern
	EscalateAfter   int      // defaults to DefaultEscalateAfter
	Messages        Messages // empty fields take DefaultMessages()
}

// NewMachine creates a Machine.
func NewMachine(opts MachineOpts) (*Machine, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("dialogue: machine: resolver is required")
	}

	greetings := opts.GreetingPhrases
	if len(greetings) == 0 {
		greetings = DefaultGreetingPhrases()
	}
	orderPhrases := opts.OrderPhrases
	if len(orderPhrases) == 0 {
		orderPhrases = DefaultOrderPhrases()
	}
	pattern := opts.OrderPattern
	if pattern == "" {
		pattern = DefaultOrderPattern
	}
	orderRe, err := CompileOrderPattern(pattern)
	if err != nil {
		return nil, err
	}
	escalateAfter := opts.EscalateAfter
	if escalateAfter <= 0 {
		escalateAfter = DefaultEscalateAfter
	}
	m := &Machine{
		resolver:      opts.Resolver,
		greetings:     compilePhrases(greetings),
		orderTriggers: compilePhrases(orderPhrases),
		orderRe:       orderRe,
		escalateAfter: escalateAfter,
		msgs:          opts.Messages.WithDefaults(),
	}
	m.transitions = map[Mode]transition{
		Idle:                m.idle,
		AwaitingOrderNumber: m.awaitingOrderNumber,
	}
	return m, nil
}

// CompileOrderPattern compiles an order-number pattern and checks that it
// has exactly one capture group.
func CompileOrderPattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("dialogue: order pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("dialogue: order pattern must have exactly one capture group, has %d", re.NumSubexp())
	}
	return re, nil
}

// compilePhrases turns phrases into case-insensitive, word-bounded patterns.
// Internal whitespace matches any run of whitespace.
func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(textnorm.Normalize(p))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, regexp.MustCompile(`(?i)`+wordStart+strings.Join(words, `\s+`)+wordEnd))
	}
	return out
}

func containsAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// EscalateAfter returns the fallback streak that triggers escalation.
func (m *Machine) EscalateAfter() int {
	return m.escalateAfter
}

// ExtractOrderNumber returns the first order number in text.
func (m *Machine) ExtractOrderNumber(text string) (string, bool) {
	sub := m.orderRe.FindStringSubmatch(text)
	if sub == nil || sub[1] == "" {
		return "", false
	}
	return sub[1], true
}

// IsGreeting reports whether text contains a greeting phrase.
func (m *Machine) IsGreeting(text string) bool {
	return containsAny(m.greetings, textnorm.Normalize(text))
}

// IsOrderTracking reports whether text contains an order-tracking phrase.
func (m *Machine) IsOrderTracking(text string) bool {
	return containsAny(m.orderTriggers, textnorm.Normalize(text))
}

// Step processes one user input, mutates s, and returns the reply. s must
// belong to a single conversation and must not be stepped concurrently.
func (m *Machine) Step(s *State, text string) Reply {
	t, ok := m.transitions[s.Mode]
	if !ok {
		s.enter(Idle)
		t = m.transitions[Idle]
	}
	return t(s, text, textnorm.Normalize(text))
}

func (m *Machine) idle(s *State, text, norm string) Reply {
	switch {
	case containsAny(m.greetings, norm):
		return m.greet(s)
	case containsAny(m.orderTriggers, norm):
		return m.trackOrder(s, text)
	default:
		return m.delegate(s, text)
	}
}

func (m *Machine) awaitingOrderNumber(s *State, text, _ string) Reply {
	if num, ok := m.ExtractOrderNumber(text); ok {
		return m.captureOrder(s, num)
	}
	return Reply{
		Content:  m.msgs.RepromptOrderNumber,
		Intent:   IntentOrderStatus,
		Category: CategoryOrders,
		Kind:     KindRepromptOrderNumber,
	}
}

func (m *Machine) greet(s *State) Reply {
	s.FallbackCount = 0
	return Reply{
		Content:  m.msgs.Greeting,
		Intent:   IntentGreeting,
		Category: CategoryGreeting,
		Kind:     KindGreeting,
	}
}

func (m *Machine) trackOrder(s *State, text string) Reply {
	if num, ok := m.ExtractOrderNumber(text); ok {
		return m.captureOrder(s, num)
	}
	s.enter(AwaitingOrderNumber)
	return Reply{
		Content:  m.msgs.AskOrderNumber,
		Intent:   IntentOrderStatus,
		Category: CategoryOrders,
		Kind:     KindAskOrderNumber,
	}
}

func (m *Machine) captureOrder(s *State, num string) Reply {
	s.enter(Idle)
	s.CapturedOrderNumber = num
	s.FallbackCount = 0
	return Reply{
		Content:     strings.ReplaceAll(m.msgs.OrderProcessing, OrderNumberPlaceholder, num),
		Intent:      IntentOrderStatus,
		Category:    CategoryOrders,
		Kind:        KindOrderProcessing,
		OrderNumber: num,
	}
}

func (m *Machine) delegate(s *State, text string) Reply {
	res := m.resolver.Resolve(text)
	if res.Matched {
		s.FallbackCount = 0
		return Reply{
			Content:  res.Response,
			Intent:   res.Intent,
			Category: res.Category,
			Kind:     KindAnswer,
			Score:    res.Score,
		}
	}

	s.FallbackCount++
	if s.FallbackCount >= m.escalateAfter {
		return Reply{
			Content:  m.msgs.Escalation,
			Intent:   IntentFallback,
			Category: CategoryEscalate,
			Kind:     KindEscalation,
			Score:    res.Score,
		}
	}
	return Reply{
		Content:  m.msgs.Rephrase,
		Intent:   IntentFallback,
		Category: CategoryFallback,
		Kind:     KindRephrase,
		Score:    res.Score,
	}
}
