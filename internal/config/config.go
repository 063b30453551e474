// Package config provides YAML-based configuration loading for Helpline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/helpline/internal/db"
	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/intent"
	"github.com/zulandar/helpline/internal/knowledge"
	"github.com/zulandar/helpline/internal/logging"
	"github.com/zulandar/helpline/internal/retrieval"
)

// DefaultFile is the config file name looked up by the CLI.
const DefaultFile = "helpline.yaml"

// Knowledge base sources.
const (
	SourceCSV = "csv"
	SourceDB  = "db"
)

// Chat platforms supported by the bridge.
const (
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"
)

// Config is the top-level Helpline configuration, loaded from helpline.yaml.
type Config struct {
	Knowledge      KnowledgeConfig        `yaml:"knowledge"`
	Matcher        MatcherConfig          `yaml:"matcher"`
	Dialogue       DialogueConfig         `yaml:"dialogue"`
	Welcome        string                 `yaml:"welcome"`
	QuickQuestions []engine.QuickQuestion `yaml:"quick_questions"`
	Session        SessionConfig          `yaml:"session"`
	Logging        LoggingConfig          `yaml:"logging"`
	Dashboard      DashboardConfig        `yaml:"dashboard"`
	Telegraph      TelegraphConfig        `yaml:"telegraph"`
	Ticket         TicketConfig           `yaml:"ticket"`
}

// KnowledgeConfig selects where records are loaded from.
type KnowledgeConfig struct {
	Source string `yaml:"source"` // csv or db
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // sqlite or mysql
	DSN    string `yaml:"dsn"`
}

// MatcherConfig selects and tunes the matcher.
type MatcherConfig struct {
	Variant   string        `yaml:"variant"`   // keyword or similarity
	Threshold *float64      `yaml:"threshold"` // nil means retrieval.DefaultThreshold
	Rules     []intent.Rule `yaml:"rules"`
}

// DialogueConfig tunes the dialogue state machine.
type DialogueConfig struct {
	GreetingPhrases []string          `yaml:"greeting_phrases"`
	OrderPhrases    []string          `yaml:"order_phrases"`
	OrderPattern    string            `yaml:"order_pattern"`
	EscalateAfter   int               `yaml:"escalate_after"`
	Messages        dialogue.Messages `yaml:"messages"`
}

// SessionConfig controls conversation lifetime.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// DashboardConfig holds HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// TelegraphConfig holds chat bridge settings.
type TelegraphConfig struct {
	Platform      string        `yaml:"platform"` // slack, discord, or empty
	Channel       string        `yaml:"channel"`
	CommandPrefix string        `yaml:"command_prefix"`
	MaxReplyLen   int           `yaml:"max_reply_len"`
	Digest        DigestConfig  `yaml:"digest"`
	Slack         SlackConfig   `yaml:"slack"`
	Discord       DiscordConfig `yaml:"discord"`
}

// DigestConfig schedules the analytics digest.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// DiscordConfig holds Discord credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// TicketConfig selects where escalations are filed.
type TicketConfig struct {
	Provider string       `yaml:"provider"` // none, memory, github
	GitHub   GitHubConfig `yaml:"github"`
}

// GitHubConfig holds GitHub issue settings.
type GitHubConfig struct {
	Owner   string   `yaml:"owner"`
	Repo    string   `yaml:"repo"`
	Token   string   `yaml:"token"`
	Labels  []string `yaml:"labels"`
	BaseURL string   `yaml:"base_url"`
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
// ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Knowledge.Source == "" {
		c.Knowledge.Source = SourceCSV
	}
	if c.Knowledge.Source == SourceCSV && c.Knowledge.Path == "" {
		c.Knowledge.Path = knowledge.DefaultDatasetFile
	}
	if c.Knowledge.Source == SourceDB && c.Knowledge.Driver == "" {
		c.Knowledge.Driver = db.DriverSQLite
	}

	if c.Matcher.Variant == "" {
		c.Matcher.Variant = string(knowledge.VariantKeyword)
	}
	if c.Matcher.Threshold == nil {
		th := retrieval.DefaultThreshold
		c.Matcher.Threshold = &th
	}
	if len(c.Matcher.Rules) == 0 {
		c.Matcher.Rules = intent.DefaultRules()
	}

	if len(c.Dialogue.GreetingPhrases) == 0 {
		c.Dialogue.GreetingPhrases = dialogue.DefaultGreetingPhrases()
	}
	if len(c.Dialogue.OrderPhrases) == 0 {
		c.Dialogue.OrderPhrases = dialogue.DefaultOrderPhrases()
	}
	if c.Dialogue.OrderPattern == "" {
		c.Dialogue.OrderPattern = dialogue.DefaultOrderPattern
	}
	if c.Dialogue.EscalateAfter == 0 {
		c.Dialogue.EscalateAfter = dialogue.DefaultEscalateAfter
	}
	c.Dialogue.Messages = c.Dialogue.Messages.WithDefaults()

	if c.Welcome == "" {
		c.Welcome = engine.DefaultWelcome
	}
	if len(c.QuickQuestions) == 0 {
		c.QuickQuestions = engine.DefaultQuickQuestions()
	}

	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = "*/5 * * * *"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}

	if c.Telegraph.CommandPrefix == "" {
		c.Telegraph.CommandPrefix = "!hl"
	}
	if c.Telegraph.MaxReplyLen == 0 {
		c.Telegraph.MaxReplyLen = 3000
	}
	if c.Telegraph.Digest.Cron == "" {
		c.Telegraph.Digest.Cron = "0 9 * * *"
	}
	if c.Telegraph.Slack.BotToken == "" {
		c.Telegraph.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if c.Telegraph.Slack.AppToken == "" {
		c.Telegraph.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")
	}
	if c.Telegraph.Discord.BotToken == "" {
		c.Telegraph.Discord.BotToken = os.Getenv("DISCORD_BOT_TOKEN")
	}

	if c.Ticket.Provider == "" {
		c.Ticket.Provider = "none"
	}
	if c.Ticket.Provider == "github" && c.Ticket.GitHub.Token == "" {
		c.Ticket.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if c.Ticket.Provider == "github" && len(c.Ticket.GitHub.Labels) == 0 {
		c.Ticket.GitHub.Labels = []string{"support", "escalation"}
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Knowledge.Source {
	case SourceCSV:
		if c.Knowledge.Path == "" {
			errs = append(errs, "knowledge.path is required for csv source")
		}
	case SourceDB:
		if c.Knowledge.Driver != db.DriverSQLite && c.Knowledge.Driver != db.DriverMySQL {
			errs = append(errs, fmt.Sprintf("knowledge.driver %q is not supported", c.Knowledge.Driver))
		}
		if c.Knowledge.DSN == "" {
			errs = append(errs, "knowledge.dsn is required for db source")
		}
	default:
		errs = append(errs, fmt.Sprintf("knowledge.source %q must be csv or db", c.Knowledge.Source))
	}

	if !knowledge.Variant(c.Matcher.Variant).Valid() {
		errs = append(errs, fmt.Sprintf("matcher.variant %q must be keyword or similarity", c.Matcher.Variant))
	}
	if th := c.Matcher.Threshold; th != nil && (*th < 0 || *th > 1) {
		errs = append(errs, fmt.Sprintf("matcher.threshold %v must be in [0,1]", *th))
	}
	for i, r := range c.Matcher.Rules {
		if strings.TrimSpace(r.Intent) == "" {
			errs = append(errs, fmt.Sprintf("matcher.rules[%d].intent is required", i))
		}
	}

	if _, err := dialogue.CompileOrderPattern(c.Dialogue.OrderPattern); err != nil {
		errs = append(errs, fmt.Sprintf("dialogue.order_pattern: %v", err))
	}
	if c.Dialogue.EscalateAfter < 1 {
		errs = append(errs, "dialogue.escalate_after must be at least 1")
	}

	if c.Session.IdleTimeout < 0 {
		errs = append(errs, "session.idle_timeout must not be negative")
	}
	if _, err := cronParser.Parse(c.Session.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("session.sweep_schedule: %v", err))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a level", c.Logging.Level))
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}

	switch c.Telegraph.Platform {
	case "", PlatformSlack, PlatformDiscord:
	default:
		errs = append(errs, fmt.Sprintf("telegraph.platform %q must be slack or discord", c.Telegraph.Platform))
	}
	if c.Telegraph.Digest.Enabled {
		if _, err := cronParser.Parse(c.Telegraph.Digest.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("telegraph.digest.cron: %v", err))
		}
	}

	switch c.Ticket.Provider {
	case "none", "memory":
	case "github":
		if c.Ticket.GitHub.Owner == "" || c.Ticket.GitHub.Repo == "" {
			errs = append(errs, "ticket.github.owner and ticket.github.repo are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("ticket.provider %q must be none, memory or github", c.Ticket.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateTelegraph checks the settings needed to start the chat bridge.
func (c *Config) ValidateTelegraph() error {
	var errs []string
	switch c.Telegraph.Platform {
	case "":
		errs = append(errs, "telegraph.platform is required")
	case PlatformSlack:
		if c.Telegraph.Slack.BotToken == "" {
			errs = append(errs, "telegraph.slack.bot_token is required")
		}
		if c.Telegraph.Slack.AppToken == "" {
			errs = append(errs, "telegraph.slack.app_token is required")
		}
	case PlatformDiscord:
		if c.Telegraph.Discord.BotToken == "" {
			errs = append(errs, "telegraph.discord.bot_token is required")
		}
	}
	if c.Telegraph.Channel == "" {
		errs = append(errs, "telegraph.channel is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MachineOpts converts the dialogue section to dialogue.MachineOpts.
func (c *Config) MachineOpts() dialogue.MachineOpts {
	return dialogue.MachineOpts{
		GreetingPhrases: c.Dialogue.GreetingPhrases,
		OrderPhrases:    c.Dialogue.OrderPhrases,
		OrderPattern:    c.Dialogue.OrderPattern,
		EscalateAfter:   c.Dialogue.EscalateAfter,
		Messages:        c.Dialogue.Messages,
	}
}

// LoggingOptions converts the logging section to logging.Options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Logging.Level, File: c.Logging.File, JSON: c.Logging.JSON}
}
