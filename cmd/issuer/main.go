package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khaeldev/card-issuance-service/internal/app/issuer"
	"github.com/khaeldev/card-issuance-service/internal/config"
	http_cards "github.com/khaeldev/card-issuance-service/internal/handler/http/cards"
	"github.com/khaeldev/card-issuance-service/internal/infrastructure/database"
	kafka_infra "github.com/khaeldev/card-issuance-service/internal/infrastructure/kafka"
	postgres_card_repo "github.com/khaeldev/card-issuance-service/internal/repository/card_repo/postgres"
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
	appLogger.Info("Issuer Service starting...")

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
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	migrateDSN := "postgres://" + cfg.GetDBMigrationConnectionString()
	m, err := migrate.New(
		"file:///app/migrations",
		migrateDSN,
	)
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

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
	appLogger.Info("Kafka producer created successfully.")

	cardRepository := postgres_card_repo.NewCardRequestRepository(db, appLogger)
	issuerService := issuer.NewIssuerService(cardRepository, kafkaProducer, cfg.TopicCardRequested,
		appLogger.With(zap.String("component", "IssuerService")))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	http_cards.RegisterRoutes(r, issuerService, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Issuer Service started", zap.String("address", serverAddr))

	<-sigChan

	appLogger.Info("Shutting down Issuer Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Fatal("Issuer Service graceful shutdown failed", zap.Error(err))
	}
	appLogger.Info("Issuer Service stopped.")
}
