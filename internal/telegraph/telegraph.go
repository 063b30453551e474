package telegraph

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/config"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
)

// Daemon is the chat bot process. It connects to a chat platform via an
// Adapter, answers inbound messages through the engine, and posts a
// periodic digest plus escalations raised on other surfaces.
type Daemon struct {
	cfg      *config.Config
	adapter  Adapter
	engine   *engine.Engine
	sessions *session.Manager
	events   *engine.Broker
	log      *zap.Logger
	out      io.Writer

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config   *config.Config
	Adapter  Adapter
	Engine   *engine.Engine
	Sessions *session.Manager
	Events   *engine.Broker // optional; relays escalations from other surfaces
	Logger   *zap.Logger
	Out      io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("telegraph: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("telegraph: engine is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		cfg:      opts.Config,
		adapter:  opts.Adapter,
		engine:   opts.Engine,
		sessions: opts.Sessions,
		events:   opts.Events,
		log:      opts.Logger.Named("telegraph"),
		out:      out,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Run connects the adapter, starts the background schedules and blocks
// answering messages until the context is cancelled. On shutdown it
// closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	tcfg := d.cfg.Telegraph

	var digest, sweep *schedule
	if tcfg.Digest.Enabled {
		s, err := parseSchedule(tcfg.Digest.Cron)
		if err != nil {
			return err
		}
		digest = s
	}
	if d.cfg.Session.SweepSchedule != "" {
		s, err := parseSchedule(d.cfg.Session.SweepSchedule)
		if err != nil {
			return err
		}
		sweep = s
	}

	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Engine:        d.engine,
		Sessions:      d.sessions,
		Adapter:       d.adapter,
		BotUserID:     botUserID,
		CommandPrefix: tcfg.CommandPrefix,
		MaxReplyLen:   tcfg.MaxReplyLen,
		Logger:        d.log,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	if digest != nil {
		go digest.run(ctx, d.now, d.after, func() { d.fireDigest(ctx) })
	}
	if sweep != nil {
		go sweep.run(ctx, d.now, d.after, d.sessions.Sweep)
	}
	if d.events != nil {
		escalations, cancel := d.events.Subscribe(16)
		defer cancel()
		go d.relayEscalations(ctx, escalations)
	}

	fmt.Fprintf(d.out, "Telegraph online\n")
	d.log.Info("online", zap.String("platform", tcfg.Platform), zap.String("bot_user", botUserID))
	if err := d.adapter.Send(ctx, OutboundMessage{
		Text: "Support bot online. Type `" + router.prefix + " help` for commands.",
	}); err != nil {
		d.log.Warn("send online message failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			d.sendShutdown()
			if err := d.adapter.Close(); err != nil {
				d.log.Warn("close adapter failed", zap.Error(err))
			}
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// relayEscalations posts escalations from other surfaces (the web API, the
// CLI) to the default channel. Chat escalations are already announced in
// their own thread.
func (d *Daemon) relayEscalations(ctx context.Context, ch <-chan engine.Escalation) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Platform == d.cfg.Telegraph.Platform {
				continue
			}
			if err := d.adapter.Send(ctx, OutboundMessage{
				Events: []FormattedEvent{formatRelayedEscalation(ev)},
			}); err != nil {
				d.log.Warn("relay escalation failed", zap.String("session", ev.SessionID), zap.Error(err))
			}
		}
	}
}

func formatRelayedEscalation(ev engine.Escalation) FormattedEvent {
	platform := ev.Platform
	if platform == "" {
		platform = "web"
	}
	fields := []Field{
		{Name: "Session", Value: ev.SessionID, Short: true},
		{Name: "Source", Value: platform, Short: true},
	}
	if ev.Ticket != nil {
		fields = append(fields, Field{Name: "Ticket", Value: ev.Ticket.ID, Short: true})
		if ev.Ticket.URL != "" {
			fields = append(fields, Field{Name: "Link", Value: ev.Ticket.URL})
		}
	}
	return FormattedEvent{
		Title:    "Conversation needs a human agent",
		Body:     fmt.Sprintf("Last message: %q", truncate(ev.LastMessage, 200)),
		Severity: "warning",
		Color:    ColorWarning,
		Fields:   fields,
	}
}

// fireDigest posts the usage digest. It is suppressed when no user has
// written anything since the sessions were last swept.
func (d *Daemon) fireDigest(ctx context.Context) {
	ev, ok := buildDigest(d.sessions.Stats())
	if !ok {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{Events: []FormattedEvent{ev}}); err != nil {
		d.log.Warn("send digest failed", zap.Error(err))
	}
}

// buildDigest summarises live sessions: volume, escalations and the most
// frequent intents.
func buildDigest(agg session.Aggregate) (FormattedEvent, bool) {
	if agg.UserMessages == 0 {
		return FormattedEvent{}, false
	}
	type count struct {
		intent string
		n      int
	}
	counts := make([]count, 0, len(agg.Intents))
	for k, v := range agg.Intents {
		counts = append(counts, count{k, v})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].intent < counts[j].intent
	})
	if len(counts) > 5 {
		counts = counts[:5]
	}
	var b strings.Builder
	for _, c := range counts {
		fmt.Fprintf(&b, "%s: %d\n", c.intent, c.n)
	}

	color := ColorInfo
	if agg.Escalations > 0 {
		color = ColorWarning
	}
	return FormattedEvent{
		Title:    "Support digest",
		Body:     strings.TrimRight(b.String(), "\n"),
		Severity: "info",
		Color:    color,
		Fields: []Field{
			{Name: "Conversations", Value: fmt.Sprintf("%d", agg.Sessions), Short: true},
			{Name: "Messages", Value: fmt.Sprintf("%d", agg.UserMessages), Short: true},
			{Name: "Escalations", Value: fmt.Sprintf("%d", agg.Escalations), Short: true},
		},
	}, true
}

// sendShutdown posts a shutdown message to the adapter (best-effort).
func (d *Daemon) sendShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.adapter.Send(ctx, OutboundMessage{
		Text: "Support bot going offline",
	}); err != nil {
		d.log.Warn("send shutdown message failed", zap.Error(err))
	}
}
