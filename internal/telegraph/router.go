package telegraph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
)

// DefaultCommandPrefix triggers command handling instead of a support turn.
const DefaultCommandPrefix = "!hl"

// DefaultMaxReplyLen caps a single outbound message.
const DefaultMaxReplyLen = 3000

// Router classifies inbound chat messages: bot self-messages are dropped,
// prefixed commands go to the command handler, everything else is one
// support turn in the sender's session.
type Router struct {
	engine     *engine.Engine
	sessions   *session.Manager
	cmdHandler *CommandHandler
	adapter    Adapter
	botUserID  string
	prefix     string
	maxReply   int
	log        *zap.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Engine        *engine.Engine
	Sessions      *session.Manager
	CmdHandler    *CommandHandler // defaults to one built from Engine and Sessions
	Adapter       Adapter
	BotUserID     string // bot's user ID for self-message filtering
	CommandPrefix string // defaults to DefaultCommandPrefix
	MaxReplyLen   int    // defaults to DefaultMaxReplyLen
	Logger        *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("telegraph: router: engine is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: router: session manager is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = DefaultCommandPrefix
	}
	if opts.MaxReplyLen <= 0 {
		opts.MaxReplyLen = DefaultMaxReplyLen
	}
	ch := opts.CmdHandler
	if ch == nil {
		var err error
		ch, err = NewCommandHandler(CommandHandlerOpts{
			Engine:   opts.Engine,
			Sessions: opts.Sessions,
			Prefix:   opts.CommandPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("telegraph: router: %w", err)
		}
	}
	return &Router{
		engine:     opts.Engine,
		sessions:   opts.Sessions,
		cmdHandler: ch,
		adapter:    opts.Adapter,
		botUserID:  opts.BotUserID,
		prefix:     opts.CommandPrefix,
		maxReply:   opts.MaxReplyLen,
		log:        opts.Logger,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message → ignore
//  2. Command prefix, or a mention followed by a known command → command handler
//  3. Empty text once mentions are stripped → ignore
//  4. Anything else → one engine turn in the sender's session
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	key := sessionKey(msg)
	r.log.Debug("inbound message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("thread", msg.ThreadID),
		zap.String("user", msg.UserName),
		zap.String("text", truncate(text, 80)))

	if isCommand(text, r.prefix) {
		r.handleCommand(ctx, msg, key, text)
		return
	}
	if cmd := r.extractMentionCommand(text); cmd != "" {
		r.handleCommand(ctx, msg, key, r.prefix+" "+cmd)
		return
	}

	text = stripMentions(text)
	if text == "" {
		return
	}

	sess := r.sessions.GetOrCreate(key)
	out, err := r.engine.Turn(ctx, sess, text)
	if err != nil {
		r.log.Warn("turn aborted", zap.String("session", key), zap.Error(err))
		return
	}

	reply := OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      truncate(out.Reply.Content, r.maxReply),
	}
	if out.Reply.Kind == dialogue.KindEscalation && out.Ticket != nil {
		reply.Events = []FormattedEvent{escalationEvent(out)}
	}
	if err := r.adapter.Send(ctx, reply); err != nil {
		r.log.Error("send reply failed", zap.String("session", key), zap.Error(err))
	}
}

// escalationEvent renders the ticket opened for an escalated turn.
func escalationEvent(out engine.Outcome) FormattedEvent {
	fields := []Field{
		{Name: "Ticket", Value: out.Ticket.ID, Short: true},
		{Name: "Missed replies", Value: fmt.Sprintf("%d", out.State.FallbackCount), Short: true},
	}
	if out.Ticket.URL != "" {
		fields = append(fields, Field{Name: "Link", Value: out.Ticket.URL})
	}
	return FormattedEvent{
		Title:    "Escalated to a human agent",
		Body:     "A support agent will follow up on this conversation.",
		Severity: "warning",
		Color:    ColorWarning,
		Fields:   fields,
	}
}

// sessionKey scopes a conversation to one user in one thread.
func sessionKey(msg InboundMessage) string {
	return session.ThreadKey(msg.Platform, msg.ChannelID, resolveThreadID(msg.ChannelID, msg.ThreadID), msg.UserID)
}

// resolveThreadID returns the effective thread ID for session lookups.
// Top-level channel messages use the channel ID.
func resolveThreadID(channelID, threadID string) string {
	if threadID == "" {
		return channelID
	}
	return threadID
}

// truncate returns s cut to maxLen runes with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// handleCommand dispatches a prefixed command and sends the response.
func (r *Router) handleCommand(ctx context.Context, msg InboundMessage, key, text string) {
	response := r.cmdHandler.Execute(key, text)
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      truncate(response, r.maxReply),
	}); err != nil {
		r.log.Error("send command response failed", zap.Error(err))
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text, prefix string) bool {
	return strings.HasPrefix(text, prefix+" ") || text == prefix
}

// mentionRe matches Discord (<@123>, <@!123>) and Slack (<@U024BE7LH>) mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// extractMentionCommand returns "help", "reset ..." and so on when the
// message is a bot mention followed by a known command.
func (r *Router) extractMentionCommand(text string) string {
	if !mentionRe.MatchString(text) {
		return ""
	}
	stripped := stripMentions(text)
	if stripped == "" {
		return ""
	}
	if knownCommands[strings.ToLower(strings.Fields(stripped)[0])] {
		return stripped
	}
	return ""
}
