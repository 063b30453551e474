package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/helpline/internal/dashboard"
	"github.com/zulandar/helpline/internal/session"
	"github.com/zulandar/helpline/internal/telegraph"
)

func newServeCmd() *cobra.Command {
	var (
		configPath    string
		port          int
		withTelegraph bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat API",
		Long:  "Serves the chat API, history export, analytics and the escalation event stream. With --telegraph the chat bridge runs in the same process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, withTelegraph)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides dashboard.port)")
	cmd.Flags().BoolVar(&withTelegraph, "telegraph", false, "also run the chat bridge")
	return cmd
}

// sweepParser matches the five-field schedules accepted in the config.
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// startSweeper removes expired sessions on schedule until the returned stop
// func is called.
func startSweeper(schedule string, sessions *session.Manager, log *zap.Logger) (func(), error) {
	c := cron.New(cron.WithParser(sweepParser))
	if _, err := c.AddFunc(schedule, sessions.Sweep); err != nil {
		return nil, fmt.Errorf("session sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	log.Debug("session sweep scheduled", zap.String("schedule", schedule))
	return func() { <-c.Stop().Done() }, nil
}

func runServe(cmd *cobra.Command, configPath string, port int, withTelegraph bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cmd, configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if port == 0 {
		port = a.cfg.Dashboard.Port
	}

	sessions := a.sessions("web")
	stopSweep, err := startSweeper(a.cfg.Session.SweepSchedule, sessions, a.log)
	if err != nil {
		return err
	}
	defer stopSweep()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	tgDone := make(chan error, 1)
	if withTelegraph {
		daemon, err := newDaemon(cmd, a)
		if err != nil {
			return err
		}
		go func() {
			err := daemon.Run(ctx)
			if err != nil {
				a.log.Error("telegraph stopped", zap.Error(err))
				cancel()
			}
			tgDone <- err
		}()
	} else {
		tgDone <- nil
	}

	err = dashboard.Start(ctx, dashboard.StartOpts{
		Engine:   a.engine,
		Sessions: sessions,
		Events:   a.events,
		Port:     port,
		Out:      cmd.OutOrStdout(),
		Logger:   a.log,
	})
	cancel()
	if tgErr := <-tgDone; err == nil {
		err = tgErr
	}
	return err
}

// newDaemon validates the bridge settings and builds a Daemon with its own
// session manager.
func newDaemon(cmd *cobra.Command, a *app) (*telegraph.Daemon, error) {
	if err := a.cfg.ValidateTelegraph(); err != nil {
		return nil, err
	}
	adapter, err := createAdapter(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	return telegraph.NewDaemon(telegraph.DaemonOpts{
		Config:   a.cfg,
		Adapter:  adapter,
		Engine:   a.engine,
		Sessions: a.sessions(a.cfg.Telegraph.Platform),
		Events:   a.events,
		Logger:   a.log,
		Out:      cmd.OutOrStdout(),
	})
}
