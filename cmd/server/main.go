// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fablier/fablier/internal/api"
	"github.com/fablier/fablier/internal/app"
	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	if err := config.InitConfig(cfg.DataDir); err != nil {
		log.Fatalf("failed to initialize config system: %v", err)
	}

	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	logger := utils.GetLogger()

	if err := app.InitServices(cfg); err != nil {
		logger.Fatalf("failed to initialize services: %v", err)
	}
	defer app.Shutdown()

	router, err := api.SetupRouter()
	if err != nil {
		logger.Fatalf("failed to set up router: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("forced shutdown: %v", err)
	}

	logger.Infof("server stopped")
}
