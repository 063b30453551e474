// Package ticket opens human-support tickets for escalated conversations.
package ticket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/helpline/internal/session"
)

// Request describes an escalated conversation.
type Request struct {
	SessionID     string
	Platform      string // "http", "cli", "slack", "discord"
	LastMessage   string
	FallbackCount int
	Transcript    []session.Turn
	At            time.Time
}

// Ref identifies an opened ticket.
type Ref struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Opener opens tickets. A nil Ref with a nil error means no ticket system
// is configured.
type Opener interface {
	Open(ctx context.Context, req Request) (*Ref, error)
}

// Noop discards every request.
type Noop struct{}

// Open returns nil, nil.
func (Noop) Open(context.Context, Request) (*Ref, error) { return nil, nil }

// Memory keeps requests in memory and numbers them from 1. Useful for
// tests and for running without an external tracker.
type Memory struct {
	mu   sync.Mutex
	reqs []Request
}

// Open records req.
func (m *Memory) Open(ctx context.Context, req Request) (*Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return &Ref{ID: fmt.Sprintf("MEM-%d", len(m.reqs))}, nil
}

// Requests returns a copy of the recorded requests.
func (m *Memory) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

// Title builds a one-line ticket title.
func Title(req Request) string {
	msg := strings.Join(strings.Fields(req.LastMessage), " ")
	if r := []rune(msg); len(r) > 60 {
		msg = string(r[:57]) + "..."
	}
	if msg == "" {
		msg = "(empty message)"
	}
	return fmt.Sprintf("Support escalation: %s", msg)
}

// Body renders the transcript as Markdown.
func Body(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Session:** `%s`\n", req.SessionID)
	if req.Platform != "" {
		fmt.Fprintf(&b, "**Platform:** %s\n", req.Platform)
	}
	fmt.Fprintf(&b, "**Consecutive misses:** %d\n", req.FallbackCount)
	if !req.At.IsZero() {
		fmt.Fprintf(&b, "**Escalated at:** %s\n", req.At.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n### Transcript\n\n")
	if len(req.Transcript) == 0 {
		b.WriteString("_no messages_\n")
		return b.String()
	}
	for _, t := range req.Transcript {
		line := strings.ReplaceAll(t.Content, "\n", " ")
		if t.Intent != "" {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.Role, t.Intent, line)
		} else {
			fmt.Fprintf(&b, "- **%s**: %s\n", t.Role, line)
		}
	}
	return b.String()
}
