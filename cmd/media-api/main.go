package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-media/pkg/mediaingest/api"
	"github.com/tendant/simple-media/pkg/mediaingest/config"
	"github.com/tendant/simple-media/pkg/mediaingest/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Media API failed", "err", err)
		os.Exit(1)
	}
}

// run owns every deferred release so that main only exits after they ran
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media runtime: %w", err)
	}
	defer rt.Close()

	if cfg.WebhookAuthToken == "" {
		logger.Info("WEBHOOK_AUTH_TOKEN not set, storage-events endpoint disabled")
	}
	handler := api.NewMediaHandler(rt.Issuer, rt.Notifier, rt.Metadata, rt.Listener, logger,
		api.WithWebhookToken(cfg.WebhookAuthToken),
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, rt.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting media API", "addr", server.Addr, "bucket", cfg.Bucket, "metadata_store", cfg.MetadataStore, "event_bus", cfg.EventBus)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
