package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendant/simple-media/pkg/mediaingest/config"
	"github.com/tendant/simple-media/pkg/mediaingest/eventbus/kafka"
	"github.com/tendant/simple-media/pkg/mediaingest/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Media worker failed", "err", err)
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

	consumer, err := kafka.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaNotificationsTopic, rt.Listener,
		kafka.WithLogger(logger),
		kafka.WithMaxAttempts(cfg.KafkaMaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to connect notification consumer: %w", err)
	}
	defer consumer.Close()

	logger.Info("Media worker consuming bucket notifications", "topic", cfg.KafkaNotificationsTopic, "group_id", cfg.KafkaGroupID, "max_attempts", cfg.KafkaMaxAttempts, "variants", len(rt.Worker.VariantSpecs()))
	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("notification consumer stopped: %w", err)
	}
	logger.Info("Media worker stopped")
	return nil
}
