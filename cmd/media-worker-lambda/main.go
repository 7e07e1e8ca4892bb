// Command media-worker-lambda runs the ingest worker as an AWS Lambda function
// triggered by S3 object-created notifications, either directly or through an
// SQS queue.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tendant/simple-media/pkg/mediaingest/config"
	"github.com/tendant/simple-media/pkg/mediaingest/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, "json")

	// Built once per cold start and reused by every invocation
	rt, err := cfg.Build(context.Background(), logger)
	if err != nil {
		logger.Error("Failed to initialize media runtime", "err", err)
		os.Exit(1)
	}

	h := newHandler(rt.Listener, logger)
	lambda.Start(h.Handle)
}
