package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collab-service/internal/adapters/kafka"
	"collab-service/internal/api/routes"
	"collab-service/internal/collab"
	"collab-service/internal/config"
	"collab-service/internal/database"
	"collab-service/internal/storage"

	"go.uber.org/zap"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalw("failed to load config", "error", err)
	}

	logger.Info("starting collaboration server")

	mongoDB, err := database.NewMongoConnection(cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Fatalw("failed to connect to mongodb", "error", err)
	}

	hubCfg := collab.HubConfig{
		Store:        storage.NewNotebookRepository(mongoDB.DB),
		HistoryLimit: cfg.Collab.ChatHistoryLimit,
		Logger:       logger,
	}

	// Redis relay is optional; without it the service runs single-instance.
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis.URL)
		if err != nil {
			logger.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		hubCfg.Relay = collab.NewRedisRelay(redisClient, logger)
		logger.Info("cross-instance relay enabled")
	}

	// Kafka event stream is optional as well.
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.Fatalw("failed to connect to kafka", "error", err)
		}
		archiver := kafka.NewEventArchiver(producer, cfg.Kafka.Topic, logger)
		defer archiver.Close()
		hubCfg.Archiver = archiver
		logger.Infow("event stream enabled", "topic", cfg.Kafka.Topic)
	}

	hub := collab.NewHub(hubCfg)
	go hub.Run()

	router := routes.NewRouter(hub, cfg.JWT.Secret, logger)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infow("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("server forced to shutdown", "error", err)
	}

	if err := mongoDB.Close(ctx); err != nil {
		logger.Errorw("failed to close mongodb connection", "error", err)
	}

	logger.Info("server stopped")
}
