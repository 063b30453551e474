package telegraph

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
)

// defaultHistoryTurns is how many turns "history" shows without an argument.
const defaultHistoryTurns = 10

// knownCommands is the set of top-level commands the CommandHandler supports.
var knownCommands = map[string]bool{
	"help":    true,
	"reset":   true,
	"history": true,
	"stats":   true,
	"export":  true,
	"topics":  true,
}

// CommandHandler answers prefixed chat commands about the sender's own
// conversation.
type CommandHandler struct {
	engine   *engine.Engine
	sessions *session.Manager
	prefix   string
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	Engine   *engine.Engine
	Sessions *session.Manager
	Prefix   string // defaults to DefaultCommandPrefix
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("telegraph: command handler: engine is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: command handler: session manager is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultCommandPrefix
	}
	return &CommandHandler{
		engine:   opts.Engine,
		sessions: opts.Sessions,
		prefix:   opts.Prefix,
	}, nil
}

// Execute parses and runs a command for the session stored under key.
// Returns the response text to send back to the chat channel.
func (ch *CommandHandler) Execute(key, text string) string {
	args := parseCommand(text, ch.prefix)
	if len(args) == 0 {
		return ch.helpText()
	}

	switch strings.ToLower(args[0]) {
	case "help":
		return ch.helpText()
	case "reset":
		return ch.cmdReset(key)
	case "history":
		return ch.cmdHistory(key, args[1:])
	case "stats":
		return ch.cmdStats(key)
	case "export":
		return ch.cmdExport(key)
	case "topics":
		return ch.cmdTopics()
	default:
		return fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText())
	}
}

// parseCommand strips the prefix and splits the remaining text.
func parseCommand(text, prefix string) []string {
	text = strings.TrimSpace(text)
	if text == prefix {
		return nil
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, prefix+" "))
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

func (ch *CommandHandler) cmdReset(key string) string {
	s, err := ch.sessions.Get(key)
	if err != nil {
		return "Nothing to reset, you have no conversation yet."
	}
	s.Clear()
	return "Conversation cleared. " + ch.engine.Welcome()
}

func (ch *CommandHandler) cmdHistory(key string, args []string) string {
	n := defaultHistoryTurns
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Sprintf("Usage: `%s history [count]`", ch.prefix)
		}
		n = v
	}
	s, err := ch.sessions.Get(key)
	if err != nil {
		return "No conversation history yet."
	}
	turns := s.Turns()
	if len(turns) == 0 {
		return "No conversation history yet."
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**History** (last %d)\n", len(turns))
	for _, t := range turns {
		who := "You"
		if t.Role == session.RoleAssistant {
			who = "Bot"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", t.At.Format("15:04"), who, t.Content)
	}
	return b.String()
}

func (ch *CommandHandler) cmdStats(key string) string {
	s, err := ch.sessions.Get(key)
	if err != nil {
		return "No conversation yet."
	}
	st := s.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "**Conversation stats**\nMessages: %d | Escalations: %d\n", st.UserMessages, st.Escalations)
	b.WriteString(formatIntents(st.Intents))
	return b.String()
}

func (ch *CommandHandler) cmdExport(key string) string {
	s, err := ch.sessions.Get(key)
	if err != nil || len(s.Turns()) == 0 {
		return "No conversation history to export."
	}
	var buf bytes.Buffer
	if err := s.ExportCSV(&buf); err != nil {
		return fmt.Sprintf("Error exporting history: %v", err)
	}
	return fmt.Sprintf("`%s`\n```\n%s```", session.ExportFilename(s.LastActive()), buf.String())
}

func (ch *CommandHandler) cmdTopics() string {
	var b strings.Builder
	b.WriteString("**Try asking**\n")
	for _, q := range ch.engine.QuickQuestions() {
		fmt.Fprintf(&b, "- %s\n", q.Prompt)
	}
	return b.String()
}

// formatIntents renders an intent histogram, most frequent first.
func formatIntents(intents map[string]int) string {
	if len(intents) == 0 {
		return "No intents yet.\n"
	}
	names := make([]string, 0, len(intents))
	for k := range intents {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if intents[names[i]] != intents[names[j]] {
			return intents[names[i]] > intents[names[j]]
		}
		return names[i] < names[j]
	})
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%-20s %d\n", name, intents[name])
	}
	return b.String()
}

// helpText returns usage information for all commands.
func (ch *CommandHandler) helpText() string {
	p := ch.prefix
	return "**Support Bot Commands**\n" +
		"`" + p + " history [count]`: recent messages in this conversation\n" +
		"`" + p + " stats`: intents detected so far\n" +
		"`" + p + " export`: conversation as CSV\n" +
		"`" + p + " reset`: start over\n" +
		"`" + p + " topics`: example questions\n" +
		"`" + p + " help`: this message"
}
