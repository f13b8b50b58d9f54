// Package main runs the notification worker that drains the Redis queue into LMS messages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/app"
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

	done := make(chan struct{})
	go func() {
		a.NotificationProcessor().Run(ctx)
		close(done)
	}()
	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	log.Info("worker stopped")
}
