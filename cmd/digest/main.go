// Command digest runs one digest batch and exits. Schedule it from cron when
// the server's in-process scheduler is disabled.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/organizer/internal/app/bootstrap"
	"github.com/dalemusser/organizer/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("digest run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coreCfg, appCfg, err := bootstrap.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := bootstrap.ValidateConfig(coreCfg, appCfg, logger); err != nil {
		return err
	}

	deps, err := bootstrap.Connect(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.MongoClient.Disconnect(context.Background()) }()

	svc := bootstrap.BuildServices(appCfg, deps, logger)

	batchCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "digest batch")
	defer cancel()

	res, err := svc.Digest.Run(batchCtx)
	if err != nil {
		return err
	}
	fmt.Printf("digests sent: %d (persons %d, failed %d, messages %d)\n", res.Sent, res.Persons, res.Failed, res.Messages)
	return nil
}
