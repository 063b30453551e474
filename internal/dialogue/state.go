// Package dialogue is the per-conversation state machine: greeting and
// order-number slot filling, delegation to a matcher, and fallback
// escalation.
package dialogue

// Mode is the state of the dialogue machine.
type Mode int

const (
	// Idle accepts fresh queries.
	Idle Mode = iota
	// AwaitingOrderNumber treats the next input as an order-number slot value.
	AwaitingOrderNumber
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case AwaitingOrderNumber:
		return "awaiting_order_number"
	default:
		return "unknown"
	}
}

// MarshalText lets modes render as names in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// PendingIntent names the slot the machine is waiting to fill.
type PendingIntent string

const (
	PendingNone       PendingIntent = ""
	PendingTrackOrder PendingIntent = "track_order"
)

// State is the mutable dialogue state of one conversation. Only Machine.Step
// changes it. PendingIntent is PendingTrackOrder exactly when Mode is
// AwaitingOrderNumber.
type State struct {
	Mode                Mode          `json:"mode"`
	FallbackCount       int           `json:"fallback_count"`
	PendingIntent       PendingIntent `json:"pending_intent,omitempty"`
	CapturedOrderNumber string        `json:"captured_order_number,omitempty"`
}

// Reset returns the state to a fresh Idle conversation.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) enter(mode Mode) {
	s.Mode = mode
	if mode == AwaitingOrderNumber {
		s.PendingIntent = PendingTrackOrder
	} else {
		s.PendingIntent = PendingNone
	}
}

// Kind classifies a reply by the transition that produced it.
type Kind string

const (
	KindGreeting            Kind = "greeting"
	KindOrderProcessing     Kind = "order_processing"
	KindAskOrderNumber      Kind = "ask_order_number"
	KindRepromptOrderNumber Kind = "reprompt_order_number"
	KindAnswer              Kind = "answer"
	KindRephrase            Kind = "rephrase"
	KindEscalation          Kind = "escalation"
)

// Reply is the structured answer for one turn.
type Reply struct {
	Content     string  `json:"content"`
	Intent      string  `json:"intent,omitempty"`
	Category    string  `json:"category,omitempty"`
	Kind        Kind    `json:"kind"`
	Score       float64 `json:"score,omitempty"`
	OrderNumber string  `json:"order_number,omitempty"`
}
