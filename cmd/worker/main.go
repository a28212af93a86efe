package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agentmem/internal/bootstrap"
	"agentmem/internal/enginedi"
	"agentmem/internal/memconfig"
)

// main hosts the façade's background workers (connection discovery, decay
// batch flushing — both started inside facade.New/enginedi.Build) for as
// long as the process lives, plus one additional periodic safety-net
// flush, mirroring the teacher's worker entrypoint shape: a dependency
// container, a handful of ticker-driven goroutines, and signal-based
// graceful shutdown.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := memconfig.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	bootLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create bootstrap logger: %v", err)
	}

	store, err := bootstrap.BuildStorageProvider(ctx, bootLogger)
	if err != nil {
		log.Fatalf("failed to build storage provider: %v", err)
	}

	container, err := enginedi.Build(ctx, enginedi.Options{Config: cfg, Store: store, Dev: !cfg.IsProduction(), ServiceName: "agentmem-worker"})
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}

	container.Logger.Info("starting worker service", zap.String("environment", cfg.Environment))

	go startDecayFlushWorker(ctx, container, flushInterval())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down worker service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := container.Close(shutdownCtx); err != nil {
		container.Logger.Error("container shutdown error", err)
	}

	log.Println("worker service stopped")
}

func flushInterval() time.Duration {
	return 5 * time.Minute
}

// startDecayFlushWorker periodically flushes any lazy-decay updates the
// façade's own batch runner hasn't picked up yet (e.g. because
// Decay.FlushInterval is disabled for this deployment) — a coarse
// safety net, not this worker's primary job.
func startDecayFlushWorker(ctx context.Context, container *enginedi.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			container.Logger.Info("decay flush worker shutting down")
			return
		case <-ticker.C:
			result, err := container.Facade.FlushLazyDecayUpdates(ctx)
			if err != nil {
				container.Logger.Error("periodic decay flush failed", err)
				continue
			}
			if result.Succeeded > 0 || result.Failed > 0 {
				container.Logger.Info("periodic decay flush completed",
					zap.Int("succeeded", result.Succeeded),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}
