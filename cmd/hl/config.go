package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/helpline/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config file commands",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, configPath, force)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func runConfigInit(cmd *cobra.Command, configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", configPath, err)
		}
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}

// defaultConfigYAML renders the default config. Secrets are written as
// ${VAR} references so tokens from the environment never land on disk.
func defaultConfigYAML() ([]byte, error) {
	cfg := config.Default()
	cfg.Telegraph.Slack.BotToken = "${SLACK_BOT_TOKEN}"
	cfg.Telegraph.Slack.AppToken = "${SLACK_APP_TOKEN}"
	cfg.Telegraph.Discord.BotToken = "${DISCORD_BOT_TOKEN}"
	cfg.Ticket.GitHub.Token = "${GITHUB_TOKEN}"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return append([]byte("# Helpline configuration\n"), data...), nil
}

func newConfigCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Knowledge: %s", cfg.Knowledge.Source)
			if cfg.Knowledge.Source == config.SourceCSV {
				fmt.Fprintf(out, " (%s)", cfg.Knowledge.Path)
			} else {
				fmt.Fprintf(out, " (%s)", cfg.Knowledge.Driver)
			}
			fmt.Fprintf(out, "\nMatcher:   %s, threshold %.2f\n", cfg.Matcher.Variant, *cfg.Matcher.Threshold)
			fmt.Fprintf(out, "Tickets:   %s\n", cfg.Ticket.Provider)
			fmt.Fprintf(out, "%s OK\n", configPath)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
