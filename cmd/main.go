package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/cache"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/config"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/db"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/handlers"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/logger"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Connect to MongoDB
	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		zlog.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			zlog.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	zlog.Info("Successfully connected to MongoDB", zap.String("database", cfg.MongoDB))

	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		zlog.Fatal("Failed to create indexes", zap.Error(err))
	}

	var guard services.ReplayGuard = cache.NoopReplayGuard{}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		guard = cache.NewRedisReplayGuard(rdb, cache.DefaultReplayTTL)
		zlog.Info("Webhook replay guard enabled")
	} else {
		zlog.Warn("REDIS_URL not set, webhook replays rely on the transaction store only")
	}

	if cfg.Payment.WebhookSecret == "" {
		zlog.Warn("PAYMENT_WEBHOOK_SECRET not set, every webhook will be rejected")
	}

	// Initialize services and handlers
	chapa, err := services.NewChapaClient(cfg.Payment, zlog.Named("chapa"))
	if err != nil {
		zlog.Fatal("Failed to configure payment provider", zap.Error(err))
	}

	userService := services.NewUserService(db.NewUserRepository(database), cfg.JWTSecret, zlog.Named("users"))
	paymentService := services.NewPaymentService(
		chapa,
		services.NewReconciler(services.NewSignatureVerifier(cfg.Payment.WebhookSecret), zlog.Named("webhook")),
		db.NewTransactionRepository(database),
		guard,
		userService,
		zlog.Named("payments"),
	)

	limiter := handlers.NewRateLimiter(rate.Every(time.Minute/100), 50)
	limiter.TrustProxy = cfg.TrustProxy

	router := handlers.NewRouter(
		handlers.NewUserHandler(userService, zlog),
		handlers.NewPaymentHandler(paymentService, cfg.PublicBaseURL, zlog),
		userService,
		limiter,
		zlog,
	)

	// WriteTimeout stays above the provider timeout so slow provider calls
	// still get an error response.
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Payment.Timeout + 10*time.Second,
	}

	go func() {
		zlog.Info("Server running", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
}
