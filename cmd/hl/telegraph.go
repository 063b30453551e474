package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/config"
	"github.com/zulandar/helpline/internal/telegraph"
	discordadapter "github.com/zulandar/helpline/internal/telegraph/discord"
	slackadapter "github.com/zulandar/helpline/internal/telegraph/slack"
)

func newTelegraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "telegraph",
		Aliases: []string{"tg"},
		Short:   "Run the Telegraph chat bridge",
		Long:    "Telegraph answers support questions in Slack or Discord threads.",
	}

	cmd.AddCommand(newTelegraphStartCmd())
	cmd.AddCommand(newTelegraphCheckCmd())
	return cmd
}

func newTelegraphStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Telegraph daemon",
		Long:  "Connects to the configured chat platform and answers messages until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTelegraphStart(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newTelegraphCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the Telegraph settings without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTelegraphCheck(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runTelegraphStart(cmd *cobra.Command, configPath string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cmd, configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	daemon, err := newDaemon(cmd, a)
	if err != nil {
		return err
	}

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return daemon.Run(ctx)
}

func runTelegraphCheck(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateTelegraph(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Platform: %s\n", cfg.Telegraph.Platform)
	fmt.Fprintf(out, "Channel:  %s\n", cfg.Telegraph.Channel)
	fmt.Fprintf(out, "Prefix:   %s\n", cfg.Telegraph.CommandPrefix)
	if cfg.Telegraph.Digest.Enabled {
		fmt.Fprintf(out, "Digest:   %s\n", cfg.Telegraph.Digest.Cron)
	} else {
		fmt.Fprintln(out, "Digest:   off")
	}
	fmt.Fprintln(out, "Telegraph config OK")
	return nil
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, log *zap.Logger) (telegraph.Adapter, error) {
	switch cfg.Telegraph.Platform {
	case config.PlatformSlack:
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Telegraph.Slack.AppToken,
			BotToken:  cfg.Telegraph.Slack.BotToken,
			ChannelID: cfg.Telegraph.Channel,
			Logger:    log,
		})
	case config.PlatformDiscord:
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Telegraph.Discord.BotToken,
			ChannelID: cfg.Telegraph.Channel,
			Logger:    log,
		})
	default:
		return nil, fmt.Errorf("telegraph: unsupported platform %q", cfg.Telegraph.Platform)
	}
}
