package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/image-mod-relay/internal/adapters/gateway"
	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/di"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"github.com/mikey/image-mod-relay/internal/policy"
	"github.com/mikey/image-mod-relay/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	link *gateway.Link,
	sched *scheduler.Scheduler,
	classifierClient *classifier.Client,
	store *policy.Store,
	metricsServer *metrics.Server,
) error {
	defer logger.Sync()

	snapshot := store.Snapshot()
	logger.Info("Starting image moderation relay",
		zap.Strings("admins", snapshot.AdminIDs),
		zap.Strings("whitelist_groups", snapshot.WhitelistGroups),
		zap.Strings("auto_recall_groups", snapshot.AutoRecallGroups),
		zap.Float64("confidence_threshold", snapshot.ConfidenceThreshold),
		zap.Bool("mock_classifier", classifierClient.Mock()))

	metricsServer.Start()

	// Start the gateway link
	link.Start()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop receiving before draining queued work
	link.Stop()
	sched.Shutdown()

	if err := classifierClient.Close(); err != nil {
		logger.Error("Failed to close classifier", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close policy store", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Stop(ctx); err != nil {
		logger.Error("Failed to stop metrics server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
