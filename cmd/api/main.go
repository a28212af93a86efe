package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agentmem/internal/bootstrap"
	"agentmem/internal/enginedi"
	"agentmem/internal/httpapi"
	"agentmem/internal/memconfig"
)

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

	container, err := enginedi.Build(ctx, enginedi.Options{
		Config:          cfg,
		Store:           store,
		Dev:             !cfg.IsProduction(),
		ServiceName:     "agentmem",
		TracingEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}

	router := httpapi.NewRouter(container.Facade, container.Logger.Raw())
	handler := router.Setup()

	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		container.Logger.Info("starting server", zap.String("address", addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("server shutdown error", err)
	}
	if err := container.Close(shutdownCtx); err != nil {
		container.Logger.Error("container shutdown error", err)
	}

	log.Println("server stopped")
}
