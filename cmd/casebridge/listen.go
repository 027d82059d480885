package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/casebridge/casebridge/internal/health"
	"github.com/casebridge/casebridge/internal/listener"
	"github.com/casebridge/casebridge/internal/telemetry"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the long-lived event listener",
	Long: `Connects to Slack over Socket Mode and runs until interrupted. The
listener relays channel traffic into mirrored cases, resolves entitlement
replies, answers direct messages, and activates pending mirrors in the
background. Health probes are served on /healthz and /readyz.

When a credentials file is configured (--credentials-file or
CASEBRIDGE_CREDENTIALS_FILE), rotating it reconnects the listener with
fresh tokens.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := telemetry.Init(ctx, "casebridge", Version); err != nil {
		log.Printf("casebridge: telemetry disabled: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	for {
		err := listenOnce(ctx)
		switch {
		case errors.Is(err, listener.ErrCredentialsRotated) && ctx.Err() == nil:
			log.Println("casebridge: reconnecting with rotated credentials")
			continue
		case ctx.Err() != nil:
			log.Println("casebridge: listener stopped")
			return nil
		default:
			return err
		}
	}
}

// listenOnce builds a fresh app (re-reading credentials) and runs one
// listener session.
func listenOnce(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if a.cfg.AppToken == "" {
		return errors.New("Slack app token required for Socket Mode (--app-token or CASEBRIDGE_APP_TOKEN)")
	}

	socket := socketmode.New(a.botClient, socketmode.OptionDebug(a.cfg.Debug))
	dispatcher := listener.NewDispatcher(socket, a.bot, a.store, a.host, a.mirrors, a.dir, a.status, listener.Config{
		AllowIncidents: a.cfg.AllowIncidents,
		IncidentType:   a.cfg.IncidentType,
	})
	poller := listener.NewPoller(a.store, a.mirrors, a.status, a.cfg.PollInterval)
	probes := health.NewServer(a.status, a.cfg.HealthPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return probes.Start(gctx) })
	if a.cfg.CredentialsFile != "" {
		watcher := listener.NewCredWatcher(a.cfg.CredentialsFile, 0)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	log.Printf("casebridge: listening (health=:%d, poll=%s)", a.cfg.HealthPort, poller.Interval())
	return g.Wait()
}
