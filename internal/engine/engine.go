// Package engine wires the knowledge base, a matcher and the dialogue
// machine into a single conversational responder.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/intent"
	"github.com/zulandar/helpline/internal/knowledge"
	"github.com/zulandar/helpline/internal/retrieval"
	"github.com/zulandar/helpline/internal/session"
	"github.com/zulandar/helpline/internal/ticket"
)

// DefaultWelcome greets a new conversation.
const DefaultWelcome = "Welcome! I'm your customer support assistant. Ask me about orders, returns, shipping, or account issues!"

// QuickQuestion is a one-click prompt offered to new users.
type QuickQuestion struct {
	Label  string `yaml:"label" json:"label"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// DefaultQuickQuestions returns the built-in shortcut prompts.
func DefaultQuickQuestions() []QuickQuestion {
	return []QuickQuestion{
		{Label: "Where is my order?", Prompt: "Where is my order?"},
		{Label: "I want to return an item", Prompt: "I want to return an item"},
		{Label: "Shipping information", Prompt: "How long does shipping take?"},
	}
}

// Engine answers user turns. It is built once and shared by all sessions.
type Engine struct {
	variant   knowledge.Variant
	kbSize    int
	machine   *dialogue.Machine
	welcome   string
	quick     []QuickQuestion
	tickets   ticket.Opener
	events    *Broker
	log       *zap.Logger
	now       func() time.Time
	threshold float64
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	KB        *knowledge.Base
	Variant   knowledge.Variant // defaults to VariantKeyword
	Threshold *float64          // similarity variant only; nil means retrieval.DefaultThreshold

	// Keyword variant rule table; defaults to intent.DefaultRules().
	Rules []intent.Rule

	// Dialogue settings. Resolver is ignored; the engine supplies one.
	Dialogue dialogue.MachineOpts

	Welcome        string          // defaults to DefaultWelcome
	QuickQuestions []QuickQuestion // defaults to DefaultQuickQuestions()

	Tickets ticket.Opener // defaults to ticket.Noop
	Events  *Broker       // optional
	Logger  *zap.Logger
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.KB == nil {
		return nil, fmt.Errorf("engine: knowledge base is required")
	}
	variant := opts.Variant
	if variant == "" {
		variant = knowledge.VariantKeyword
	}
	if !variant.Valid() {
		return nil, fmt.Errorf("engine: unknown variant %q", variant)
	}
	threshold := retrieval.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("engine: threshold %v out of range [0,1]", threshold)
	}

	var resolver dialogue.Resolver
	switch variant {
	case knowledge.VariantKeyword:
		m, err := intent.NewMatcher(intent.MatcherOpts{Rules: opts.Rules, KB: opts.KB})
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		resolver = keywordResolver{m: m}
	case knowledge.VariantSimilarity:
		r, err := retrieval.NewRetriever(opts.KB)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		resolver = similarityResolver{r: r, threshold: threshold}
	}

	mopts := opts.Dialogue
	mopts.Resolver = resolver
	machine, err := dialogue.NewMachine(mopts)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	welcome := opts.Welcome
	if welcome == "" {
		welcome = DefaultWelcome
	}
	quick := opts.QuickQuestions
	if len(quick) == 0 {
		quick = DefaultQuickQuestions()
	}
	tickets := opts.Tickets
	if tickets == nil {
		tickets = ticket.Noop{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("engine ready",
		zap.String("variant", string(variant)),
		zap.Int("records", opts.KB.Len()),
		zap.Int("escalate_after", machine.EscalateAfter()))

	return &Engine{
		variant:   variant,
		kbSize:    opts.KB.Len(),
		machine:   machine,
		welcome:   welcome,
		quick:     append([]QuickQuestion(nil), quick...),
		tickets:   tickets,
		events:    opts.Events,
		log:       log,
		now:       time.Now,
		threshold: threshold,
	}, nil
}

// Variant returns the matcher variant in use.
func (e *Engine) Variant() knowledge.Variant { return e.variant }

// Threshold returns the similarity threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// KnowledgeSize returns the number of loaded records.
func (e *Engine) KnowledgeSize() int { return e.kbSize }

// Welcome returns the welcome message.
func (e *Engine) Welcome() string { return e.welcome }

// QuickQuestions returns the shortcut prompts.
func (e *Engine) QuickQuestions() []QuickQuestion {
	return append([]QuickQuestion(nil), e.quick...)
}

// Outcome is the full result of one turn.
type Outcome struct {
	Reply  dialogue.Reply
	State  dialogue.State
	Ticket *ticket.Ref
}

// Respond processes one user turn and returns the reply.
func (e *Engine) Respond(ctx context.Context, sess *session.Session, text string) (dialogue.Reply, error) {
	out, err := e.Turn(ctx, sess, text)
	if err != nil {
		return dialogue.Reply{}, err
	}
	return out.Reply, nil
}

// Turn processes one user turn. The only error is a done context; user
// text never fails. On the first escalation of a fallback streak a ticket
// is opened and an Escalation is published.
func (e *Engine) Turn(ctx context.Context, sess *session.Session, text string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if sess == nil {
		return Outcome{}, fmt.Errorf("engine: session is required")
	}

	reply, state := sess.Exchange(text, func(s *dialogue.State) dialogue.Reply {
		return e.machine.Step(s, text)
	})
	out := Outcome{Reply: reply, State: state}

	e.log.Debug("turn",
		zap.String("session", sess.ID()),
		zap.String("kind", string(reply.Kind)),
		zap.String("intent", reply.Intent),
		zap.Float64("score", reply.Score),
		zap.String("mode", state.Mode.String()),
		zap.Int("fallback_count", state.FallbackCount))

	if reply.Kind == dialogue.KindEscalation && state.FallbackCount == e.machine.EscalateAfter() {
		out.Ticket = e.escalate(ctx, sess, text, state)
	}
	return out, nil
}

func (e *Engine) escalate(ctx context.Context, sess *session.Session, text string, state dialogue.State) *ticket.Ref {
	at := e.now()
	ref, err := e.tickets.Open(ctx, ticket.Request{
		SessionID:     sess.ID(),
		Platform:      sess.Platform(),
		LastMessage:   text,
		FallbackCount: state.FallbackCount,
		Transcript:    sess.Turns(),
		At:            at,
	})
	if err != nil {
		e.log.Warn("ticket open failed", zap.String("session", sess.ID()), zap.Error(err))
		ref = nil
	}
	e.log.Info("conversation escalated",
		zap.String("session", sess.ID()),
		zap.String("platform", sess.Platform()),
		zap.Int("fallback_count", state.FallbackCount))

	if e.events != nil {
		e.events.Publish(Escalation{
			SessionID:     sess.ID(),
			Platform:      sess.Platform(),
			LastMessage:   text,
			FallbackCount: state.FallbackCount,
			Ticket:        ref,
			At:            at,
		})
	}
	return ref
}
