// Package intent classifies user text by counting trigger-phrase hits per
// intent and answers from the knowledge base.
package intent

import (
	"fmt"
	"strings"

	"github.com/zulandar/helpline/internal/knowledge"
	"github.com/zulandar/helpline/internal/textnorm"
)

// DefaultFallbackResponse is returned when the chosen intent has no record.
const DefaultFallbackResponse = "I'm sorry, I didn't understand. Can you please rephrase?"

// Rule lists the trigger phrases for one intent.
type Rule struct {
	Intent  string   `yaml:"intent"`
	Phrases []string `yaml:"phrases"`
}

// DefaultRules returns the built-in intent table in declaration order.
// Order matters: ties go to the earlier rule.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: "greeting", Phrases: []string{"hi", "hello", "hey", "good morning", "good afternoon"}},
		{Intent: "order_status", Phrases: []string{"order", "track", "package", "delivery", "shipped", "where is"}},
		{Intent: "return_request", Phrases: []string{"return", "send back", "exchange"}},
		{Intent: "refund_request", Phrases: []string{"refund", "money back", "refund"}},
		{Intent: "shipping_info", Phrases: []string{"shipping", "delivery time", "how long", "when will"}},
		{Intent: "account_help", Phrases: []string{"password", "login", "account", "forgot"}},
		{Intent: "payment_help", Phrases: []string{"payment", "declined", "card", "billing"}},
		{Intent: "goodbye", Phrases: []string{"thank you", "thanks", "bye", "goodbye"}},
	}
}

// Result is the outcome of a keyword match.
type Result struct {
	Intent   string
	Response string
	Category string
	Score    int  // phrase hits for the winning intent
	Found    bool // a knowledge record backs the response
}

// Matched reports whether the result should be treated as an answer rather
// than a fallback.
func (r Result) Matched() bool {
	return r.Found && r.Intent != knowledge.FallbackIntent
}

// Matcher scores text against an ordered rule table.
type Matcher struct {
	rules    []Rule
	kb       *knowledge.Base
	fallback string
}

// MatcherOpts holds parameters for creating a Matcher.
type MatcherOpts struct {
	Rules            []Rule // defaults to DefaultRules()
	KB               *knowledge.Base
	FallbackResponse string // defaults to DefaultFallbackResponse
}

// NewMatcher creates a Matcher. Phrases are normalized once here.
func NewMatcher(opts MatcherOpts) (*Matcher, error) {
	if opts.KB == nil {
		return nil, fmt.Errorf("intent: matcher: knowledge base is required")
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Intent) == "" {
			return nil, fmt.Errorf("intent: matcher: rules[%d] has no intent", i)
		}
		nr := Rule{Intent: r.Intent}
		for _, p := range r.Phrases {
			if p = textnorm.Normalize(p); p != "" {
				nr.Phrases = append(nr.Phrases, p)
			}
		}
		normalized = append(normalized, nr)
	}
	fallback := opts.FallbackResponse
	if fallback == "" {
		fallback = DefaultFallbackResponse
	}
	return &Matcher{rules: normalized, kb: opts.KB, fallback: fallback}, nil
}

// Rules returns a copy of the normalized rule table.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	for i, r := range m.rules {
		out[i] = Rule{Intent: r.Intent, Phrases: append([]string(nil), r.Phrases...)}
	}
	return out
}

// Classify returns the winning intent and its hit count. Each listed phrase
// counts once if it occurs anywhere in the normalized text, so a phrase
// listed twice counts twice. Only a strictly greater count replaces the
// current best.
func (m *Matcher) Classify(text string) (string, int) {
	norm := textnorm.Normalize(text)
	best, bestScore := knowledge.FallbackIntent, 0
	if norm == "" {
		return best, 0
	}
	for _, r := range m.rules {
		score := 0
		for _, p := range r.Phrases {
			if strings.Contains(norm, p) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r.Intent, score
		}
	}
	return best, bestScore
}

// Match classifies text and looks up the canonical response.
func (m *Matcher) Match(text string) Result {
	name, score := m.Classify(text)
	rec, ok := m.kb.FirstByIntent(name)
	if !ok {
		return Result{
			Intent:   name,
			Response: m.fallback,
			Category: knowledge.FallbackIntent,
			Score:    score,
		}
	}
	return Result{
		Intent:   name,
		Response: rec.Response,
		Category: rec.Category,
		Score:    score,
		Found:    true,
	}
}
