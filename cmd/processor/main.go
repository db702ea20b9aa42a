package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khaeldev/card-issuance-service/internal/app/processor"
	"github.com/khaeldev/card-issuance-service/internal/config"
	kafka_handler "github.com/khaeldev/card-issuance-service/internal/handler/kafka"
	"github.com/khaeldev/card-issuance-service/internal/infrastructure/database"
	kafka_infra "github.com/khaeldev/card-issuance-service/internal/infrastructure/kafka"
	"github.com/khaeldev/card-issuance-service/internal/provider"
	postgres_card_repo "github.com/khaeldev/card-issuance-service/internal/repository/card_repo/postgres"
	"github.com/khaeldev/card-issuance-service/internal/retry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Card Processor Service starting...")

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.DBHost,
		Port:     cfg.DBConfig.DBPort,
		User:     cfg.DBConfig.DBUser,
		Password: cfg.DBConfig.DBPassword,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.DBSSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}

	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		}
	}()

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = kafka_infra.EnsureTopics(topicCtx,
		cfg.GetKafkaBrokers(),
		[]string{cfg.TopicCardRequested, cfg.TopicCardIssued, cfg.TopicCardDLQ},
		appLogger)
	topicCancel()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	kafkaProducer, err := kafka_infra.NewProducer(cfg.GetKafkaBrokers(), cfg.KafkaClientID, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	cardRepository := postgres_card_repo.NewCardRequestRepository(db, appLogger)

	gateway := provider.NewSimulator(
		cfg.ProviderMinLatency,
		cfg.ProviderMaxLatency,
		cfg.ProviderFailureRate,
		appLogger.With(zap.String("component", "ProviderSimulator")),
	)

	processorService := processor.NewProcessorService(
		cardRepository,
		kafkaProducer,
		gateway,
		retry.NewPolicy(cfg.RetryDelays),
		processor.Topics{Issued: cfg.TopicCardIssued, DeadLetter: cfg.TopicCardDLQ},
		appLogger.With(zap.String("component", "ProcessorService")),
	)

	consumerHandler := kafka_handler.NewCardRequestedConsumer(processorService,
		appLogger.With(zap.String("component", "CardRequestedConsumer")))

	consumer := kafka_infra.NewConsumer(
		cfg.GetKafkaBrokers(),
		cfg.TopicCardRequested,
		cfg.KafkaConsumerGroup,
		cfg.KafkaClientID,
		consumerHandler.HandleMessage,
		appLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Consume(ctx)
	}()
	appLogger.Info("Kafka card requested consumer started!",
		zap.String("topic", cfg.TopicCardRequested),
		zap.String("group_id", cfg.KafkaConsumerGroup))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "Card processor service is healthy"})
	})

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Card Processor Service started", zap.String("address", serverAddr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		appLogger.Info("Shutting down Card Processor Service...")
	case err := <-consumerDone:
		appLogger.Error("Consumer stopped unexpectedly", zap.Error(err))
	}

	cancel()
	if err := consumer.Close(); err != nil {
		appLogger.Error("Error closing Kafka consumer", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}
	appLogger.Info("Card Processor Service stopped.")
}
