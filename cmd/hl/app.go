package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/config"
	"github.com/zulandar/helpline/internal/db"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/knowledge"
	"github.com/zulandar/helpline/internal/logging"
	"github.com/zulandar/helpline/internal/session"
	"github.com/zulandar/helpline/internal/ticket"
)

// addConfigFlag registers the -c/--config flag shared by every command that
// reads helpline.yaml.
func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", config.DefaultFile, "path to Helpline config file")
}

// loadConfig reads the config file. When the default file is absent and no
// path was given explicitly, built-in defaults are used.
func loadConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// app holds the components built from a config, shared by the chat, ask,
// serve and telegraph commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	engine  *engine.Engine
	events  *engine.Broker
	tickets ticket.Opener
}

// newApp loads the config and builds the logger, knowledge base, ticket
// opener and engine.
func newApp(ctx context.Context, cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}

	logOpts := cfg.LoggingOptions()
	logOpts.Console = cmd.ErrOrStderr()
	log, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	kb, err := loadKnowledge(ctx, cfg)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnavailable) {
			return nil, fmt.Errorf("%w (run `hl kb seed` to create the sample dataset)", err)
		}
		return nil, err
	}
	log.Info("knowledge base loaded",
		zap.String("source", cfg.Knowledge.Source),
		zap.Int("records", kb.Len()),
		zap.String("variant", cfg.Matcher.Variant))

	tickets, err := newTicketOpener(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	events := engine.NewBroker()
	eng, err := engine.New(engine.Opts{
		KB:             kb,
		Variant:        knowledge.Variant(cfg.Matcher.Variant),
		Threshold:      cfg.Matcher.Threshold,
		Rules:          cfg.Matcher.Rules,
		Dialogue:       cfg.MachineOpts(),
		Welcome:        cfg.Welcome,
		QuickQuestions: cfg.QuickQuestions,
		Tickets:        tickets,
		Events:         events,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, engine: eng, events: events, tickets: tickets}, nil
}

// sessions builds a session manager whose sessions are stamped with platform.
func (a *app) sessions(platform string) *session.Manager {
	return session.NewManager(session.ManagerOpts{
		IdleTimeout: a.cfg.Session.IdleTimeout,
		Platform:    platform,
		Logger:      a.log,
	})
}

// loadKnowledge reads the knowledge base from the configured source.
func loadKnowledge(ctx context.Context, cfg *config.Config) (*knowledge.Base, error) {
	variant := knowledge.Variant(cfg.Matcher.Variant)
	switch cfg.Knowledge.Source {
	case config.SourceDB:
		gormDB, err := db.Connect(cfg.Knowledge.Driver, cfg.Knowledge.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to knowledge db: %w", err)
		}
		if err := db.AutoMigrate(gormDB); err != nil {
			return nil, err
		}
		return knowledge.LoadDB(ctx, gormDB)
	default:
		return knowledge.LoadCSV(cfg.Knowledge.Path, variant)
	}
}

// newTicketOpener builds the escalation ticket opener named in the config.
func newTicketOpener(ctx context.Context, cfg *config.Config, log *zap.Logger) (ticket.Opener, error) {
	switch cfg.Ticket.Provider {
	case "github":
		gh := cfg.Ticket.GitHub
		return ticket.NewGitHub(ctx, ticket.GitHubOpts{
			Owner:   gh.Owner,
			Repo:    gh.Repo,
			Token:   gh.Token,
			Labels:  gh.Labels,
			BaseURL: gh.BaseURL,
			Logger:  log,
		})
	case "memory":
		return &ticket.Memory{}, nil
	default:
		return ticket.Noop{}, nil
	}
}
