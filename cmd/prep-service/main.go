package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/ehrprep/pkg/common/config"
	"github.com/synaptica-ai/ehrprep/pkg/common/database"
	"github.com/synaptica-ai/ehrprep/pkg/common/kafka"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/common/middleware"
	"github.com/synaptica-ai/ehrprep/pkg/runs"
	"github.com/synaptica-ai/ehrprep/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres()

	repo := runs.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate run records")
	}

	redisClient := database.GetRedis(cfg)
	defer database.CloseRedis()
	files := storage.NewFileStore(storage.WithVocabularyCache(
		storage.NewVocabularyCache(redisClient, "", cfg.VocabularyCacheTTL),
	))

	producer := kafka.NewProducer(cfg, cfg.PreparedTopic)
	defer producer.Close()

	service := runs.NewService(repo, files, producer, runs.Roots{
		DataRoot:   cfg.DataRoot,
		OutputRoot: cfg.OutputRoot,
	}, cfg.MaxWorkers)

	consumer := kafka.NewConsumer(cfg, cfg.PrepareRequestTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	defer stopConsuming()
	go func() {
		if err := consumer.Consume(consumeCtx, service.HandleEvent); err != nil && consumeCtx.Err() == nil {
			logger.Log.WithError(err).Error("Prepare request consumer stopped")
		}
	}()

	router := newRouter(&PrepService{runs: service})
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Preparation Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Preparation Service...")
	stopConsuming()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Waiting for running preparations")
	service.Wait()

	logger.Log.Info("Preparation Service stopped")
}
