package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atelier-backend/internal/cache"
	"atelier-backend/internal/config"
	"atelier-backend/internal/database"
	"atelier-backend/internal/events"
	"atelier-backend/internal/logger"
	"atelier-backend/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	l := logger.L()

	if err := database.Init(cfg); err != nil {
		l.Fatal("database", zap.Error(err))
	}
	defer database.Close()

	var store cache.Store = cache.Nop{}
	if cfg.RedisAddr != "" {
		r, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			l.Warn("redis unavailable, caching disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			store = r
		}
	}
	defer store.Close()

	var pub events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			l.Warn("amqp unavailable, events disabled", zap.Error(err))
		} else {
			pub = p
		}
	}
	defer pub.Close()

	app := server.New(cfg, server.Deps{Cache: store, Events: pub})

	go func() {
		l.Info("server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			l.Error("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		l.Error("shutdown", zap.Error(err))
	}
}
