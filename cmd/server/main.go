// Package main runs the admin API and the cron-driven sync sweeps with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/app"
	"github.com/stream-sync/recsync/internal/scheduler"
	"github.com/stream-sync/recsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.Log)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	sched := scheduler.New(log)
	if err := sched.Register(ctx, a.Pipeline, cfg.Schedule); err != nil {
		log.Fatal("schedule", zap.Error(err))
	}
	sched.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port), zap.Strings("platforms", cfg.Pipeline.Platforms))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("sweeps still running at shutdown")
	}
	log.Info("server stopped")
}
