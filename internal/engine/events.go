package engine

import (
	"sync"
	"time"

	"github.com/zulandar/helpline/internal/ticket"
)

// Escalation is published when a conversation is handed to a human.
type Escalation struct {
	SessionID     string      `json:"session_id"`
	Platform      string      `json:"platform,omitempty"`
	LastMessage   string      `json:"last_message"`
	FallbackCount int         `json:"fallback_count"`
	Ticket        *ticket.Ref `json:"ticket,omitempty"`
	At            time.Time   `json:"at"`
}

// Broker fans escalations out to subscribers. Slow subscribers miss events
// rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Escalation]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Escalation]struct{})}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Broker) Subscribe(buf int) (<-chan Escalation, func()) {
	ch := make(chan Escalation, buf)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Broker) Publish(ev Escalation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
