// Package main runs the background worker that expires unpaid bookings.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatepass/backend/config"
	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/internal/worker"
	"github.com/gatepass/backend/pkg/database"
	"github.com/gatepass/backend/pkg/queue"
	"github.com/gatepass/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	schedule := queue.NewExpirySchedule(rdb.Client, logger)
	bookingRepo := bookings.NewRepository(pool, logger)

	// the worker only fails bookings, so no gateway, guard or notifier
	bookingSvc := bookings.NewService(bookingRepo, nil, nil, nil, schedule, nil, nil, cfg.Booking.PendingTTL, logger)
	processor := worker.NewExpiryProcessor(schedule, bookingSvc, bookingRepo, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
