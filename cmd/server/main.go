package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/leadline/crm-call-sync/internal/config"
	"github.com/leadline/crm-call-sync/internal/handler"
	"github.com/leadline/crm-call-sync/internal/repository"
	"github.com/leadline/crm-call-sync/pkg/logger"
	appredis "github.com/leadline/crm-call-sync/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if present (development convenience)
	envLoaded := godotenv.Load() == nil

	cfg := config.LoadFromEnv()

	if _, err := logger.Init(cfg.LogEnv); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if envLoaded {
		logger.Base().Info("loaded environment from .env file")
	}

	logger.Base().Info("starting crm-call-sync",
		zap.String("instance", cfg.InstanceID),
		zap.String("port", cfg.Port),
		zap.Bool("signature_verification", cfg.OpenPhoneWebhookSecret != ""),
	)
	if cfg.OpenPhoneWebhookSecret == "" {
		logger.Base().Warn("OPENPHONE_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}
	if cfg.OpenPhoneAPIKey == "" {
		logger.Base().Warn("OPENPHONE_API_KEY not set, outbound dialing and backfill are disabled")
	}

	repos, err := repository.NewRepositoryManager()
	if err != nil {
		logger.Base().Fatal("failed to initialize database", zap.Error(err))
	}
	defer repos.Close()

	var redisSvc appredis.RedisServiceInterface
	redisService, err := appredis.NewRedisService(&appredis.RedisConfig{
		Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     getEnvOrDefault("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	if err != nil {
		logger.Base().Warn("redis connection failed, continuing without it", zap.Error(err))
	} else {
		redisSvc = redisService
		defer redisService.Close()
	}

	r := mux.NewRouter()
	handlerManager := handler.NewHandlerManager(cfg, repos, redisSvc)
	handlerManager.SetupAllRoutes(r)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Base().Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Base().Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Base().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Base().Error("graceful shutdown failed", zap.Error(err))
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
