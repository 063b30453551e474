// Package session holds per-conversation history and dialogue state.
package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zulandar/helpline/internal/dialogue"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role     Role          `json:"role"`
	Content  string        `json:"content"`
	Intent   string        `json:"intent,omitempty"`
	Category string        `json:"category,omitempty"`
	Kind     dialogue.Kind `json:"kind,omitempty"`
	At       time.Time     `json:"timestamp"`
}

// Session is one user's conversation. Turns are processed one at a time.
type Session struct {
	id        string
	platform  string
	createdAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	turns      []Turn
	state      dialogue.State
	lastActive time.Time
}

// New creates an empty session.
func New(id string) *Session {
	return newSession(id, "", time.Now)
}

func newSession(id, platform string, now func() time.Time) *Session {
	t := now()
	return &Session{id: id, platform: platform, createdAt: t, lastActive: t, now: now}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Platform returns the front-end that owns the session, if known.
func (s *Session) Platform() string { return s.platform }

// CreatedAt returns when the session started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive returns when the last turn was processed.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Exchange records userText, runs step against the dialogue state, and
// records the reply. The whole exchange holds the session lock, so two
// turns of the same session never interleave.
func (s *Session) Exchange(userText string, step func(*dialogue.State) dialogue.Reply) (dialogue.Reply, dialogue.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Role: RoleUser, Content: userText, At: s.now()})
	reply := step(&s.state)
	at := s.now()
	s.turns = append(s.turns, Turn{
		Role:     RoleAssistant,
		Content:  reply.Content,
		Intent:   reply.Intent,
		Category: reply.Category,
		Kind:     reply.Kind,
		At:       at,
	})
	s.lastActive = at
	return reply, s.state
}

// AppendAssistant records an assistant message that did not come from a
// user turn, such as a welcome message.
func (s *Session) AppendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: content, At: s.now()})
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// State returns a copy of the dialogue state.
func (s *Session) State() dialogue.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clear drops the history and resets the dialogue state.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.state.Reset()
	s.lastActive = s.now()
}

// Stats summarises a conversation for analytics.
type Stats struct {
	UserMessages int            `json:"user_messages"`
	Escalations  int            `json:"escalations"`
	Intents      map[string]int `json:"intents"`
}

// Stats counts user messages, escalations and assistant intents.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Intents: make(map[string]int)}
	for _, t := range s.turns {
		switch t.Role {
		case RoleUser:
			st.UserMessages++
		case RoleAssistant:
			if t.Intent != "" {
				st.Intents[t.Intent]++
			}
			if t.Kind == dialogue.KindEscalation {
				st.Escalations++
			}
		}
	}
	return st
}

// ExportHeader is the CSV header written by ExportCSV.
var ExportHeader = []string{"role", "content", "intent", "category", "timestamp"}

// ExportCSV writes the history as CSV.
func (s *Session) ExportCSV(w io.Writer) error {
	turns := s.Turns()
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("session: export: %w", err)
	}
	for _, t := range turns {
		row := []string{string(t.Role), t.Content, t.Intent, t.Category, t.At.Format(time.RFC3339)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("session: export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("session: export: %w", err)
	}
	return nil
}

// ExportFilename returns the download name for a history exported at t.
func ExportFilename(t time.Time) string {
	return "chat_history_" + t.Format("20060102_1504") + ".csv"
}
