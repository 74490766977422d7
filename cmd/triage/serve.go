package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the router over HTTP",
	Long: `Run the router as an HTTP service.

POST /v1/requests accepts {"input": "...", "session_id": "..."} and streams
router events back as server-sent events. Suspended conversations are
persisted when session.db_path is configured, so a later request with the
session_id resumes them. /metrics exposes Prometheus metrics and /healthz
reports liveness.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe() error {
	cfg, err := loadValidatedConfig()
	if err != nil {
		return err
	}
	if err := checkCoderCLI(cfg.Coder.Command); err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		log.Printf("[serve] session persistence at %s", store.Path())
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	var srv *server.Server
	if store != nil {
		srv = server.New(addr, orch, store)
	} else {
		srv = server.New(addr, orch, nil)
	}

	// The watcher validates config edits and logs them; provider wiring is
	// fixed at startup, so changes need a restart to take effect.
	if path := config.GetProjectConfigPath(); path != "" {
		err := config.Watch(path, func(fresh *config.Config) {
			log.Printf("[serve] config changed; restart to apply provider changes")
		})
		if err != nil {
			log.Printf("[serve] config watch disabled: %v", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[serve] received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
