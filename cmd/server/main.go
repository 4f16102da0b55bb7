// Package main runs the ticketing platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatepass/backend/config"
	"github.com/gatepass/backend/internal/auth"
	"github.com/gatepass/backend/internal/bookings"
	"github.com/gatepass/backend/internal/checkin"
	"github.com/gatepass/backend/internal/discounts"
	"github.com/gatepass/backend/internal/events"
	"github.com/gatepass/backend/internal/middleware"
	"github.com/gatepass/backend/internal/payments"
	"github.com/gatepass/backend/internal/realtime"
	"github.com/gatepass/backend/internal/worker"
	"github.com/gatepass/backend/pkg/database"
	"github.com/gatepass/backend/pkg/queue"
	"github.com/gatepass/backend/pkg/redis"
	"github.com/gatepass/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth and authorization
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	guard := auth.NewGuard(authRepo)

	// Events (capacity ledger)
	eventRepo := events.NewRepository(pool, logger)
	eventHandler := events.NewHandler(eventRepo, logger)

	// Discounts
	discountRepo := discounts.NewRepository(pool, logger)
	discountValidator := discounts.NewValidator(discountRepo)
	discountHandler := discounts.NewHandler(discountRepo, guard, logger)

	// Bookings (admission + payment state machine)
	expirySchedule := queue.NewExpirySchedule(rdb.Client, logger)
	gateway := payments.New(cfg.Gateway, logger)
	bookingRepo := bookings.NewRepository(pool, logger)
	bookingSvc := bookings.NewService(bookingRepo, eventRepo, discountValidator, gateway,
		expirySchedule, hub, guard, cfg.Booking.PendingTTL, logger)
	bookingHandler := bookings.NewHandler(bookingSvc, logger)
	webhookHandler := payments.NewWebhookHandler(bookingSvc, cfg.Gateway.WebhookSecret, logger)

	// Check-in
	checkinRepo := checkin.NewRepository(pool)
	checkinSvc := checkin.NewService(checkinRepo, bookingRepo, guard, hub, logger)
	checkinHandler := checkin.NewHandler(checkinSvc, logger)

	// Booking expiry worker, in-process alongside the server; cmd/worker
	// runs the same processor standalone for multi-instance deployments
	expiryProcessor := worker.NewExpiryProcessor(expirySchedule, bookingSvc, bookingRepo, logger)

	jwtValidate := func(token string) (userID string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole("admin"), eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)
		api.POST("/events/:id/admins", middleware.RequireRole("admin"), authHandler.GrantEventAdmin)

		// Discounts (guard-checked per event inside the handler)
		api.POST("/events/:id/discounts", middleware.RequireRole("admin", "staff"), discountHandler.Create)
		api.GET("/events/:id/discounts", middleware.RequireRole("admin", "staff"), discountHandler.List)

		// Bookings
		api.POST("/bookings", bookingHandler.Create)
		api.GET("/bookings", bookingHandler.ListMine)
		api.GET("/bookings/:id", bookingHandler.Get)
		api.GET("/bookings/:id/qr", bookingHandler.QR)
		api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
		api.POST("/bookings/:id/confirm", middleware.RequireRole("admin", "staff"), bookingHandler.AdminConfirm)

		// Check-in
		api.POST("/checkin", middleware.RequireRole("admin", "staff"), checkinHandler.Verify)
		api.GET("/events/:id/checkins", middleware.RequireRole("admin", "staff"), checkinHandler.ListByEvent)
	}

	// Webhooks (no JWT; HMAC signature validated in handler)
	router.POST("/webhooks/payment", webhookHandler.Handle)

	// WebSocket dashboard feed (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, guard, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go expiryProcessor.Run(workerCtx)
	logger.Info("expiry worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
