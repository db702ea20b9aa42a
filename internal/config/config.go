package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBConfig struct {
		DBHost     string `env:"CARDS_DB_HOST"`
		DBPort     string `env:"CARDS_DB_PORT"`
		DBUser     string `env:"CARDS_DB_USER"`
		DBPassword string `env:"CARDS_DB_PASSWORD"`
		DBName     string `env:"CARDS_DB_NAME"`
		DBSSLMode  string `env:"CARDS_DB_SSLMODE"`
	}

	KafkaURL           string `env:"KAFKA_BROKER_URL"`
	KafkaClientID      string `env:"KAFKA_CLIENT_ID"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP"`

	TopicCardRequested string `env:"KAFKA_TOPIC_CARD_REQUESTED"`
	TopicCardIssued    string `env:"KAFKA_TOPIC_CARD_ISSUED"`
	TopicCardDLQ       string `env:"KAFKA_TOPIC_CARD_DLQ"`

	HTTPPort int `env:"HTTP_PORT"`

	RetryDelays []time.Duration `env:"RETRY_DELAYS"`

	ProviderMinLatency  time.Duration `env:"PROVIDER_MIN_LATENCY"`
	ProviderMaxLatency  time.Duration `env:"PROVIDER_MAX_LATENCY"`
	ProviderFailureRate float64       `env:"PROVIDER_FAILURE_RATE"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.DBHost = getEnvOrDefault("CARDS_DB_HOST", "localhost")
	cfg.DBConfig.DBPort = getEnvOrDefault("CARDS_DB_PORT", "5432")
	cfg.DBConfig.DBUser = getEnvOrDefault("CARDS_DB_USER", "postgres")
	cfg.DBConfig.DBPassword = getEnvOrDefault("CARDS_DB_PASSWORD", "postgres")
	cfg.DBConfig.DBName = getEnvOrDefault("CARDS_DB_NAME", "cards_db")
	cfg.DBConfig.DBSSLMode = getEnvOrDefault("CARDS_DB_SSLMODE", "disable")

	cfg.KafkaURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaClientID = getEnvOrDefault("KAFKA_CLIENT_ID", "card-issuance-service")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "card-processor-group")

	cfg.TopicCardRequested = getEnvOrDefault("KAFKA_TOPIC_CARD_REQUESTED", "card_issue_requests")
	cfg.TopicCardIssued = getEnvOrDefault("KAFKA_TOPIC_CARD_ISSUED", "card_issued_events")
	cfg.TopicCardDLQ = getEnvOrDefault("KAFKA_TOPIC_CARD_DLQ", "card_issue_dlq")

	httpPortStr := getEnvOrDefault("HTTP_PORT", "8080")
	port, err := strconv.Atoi(httpPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}
	cfg.HTTPPort = port

	retryDelaysStr := getEnvOrDefault("RETRY_DELAYS", "1s,2s,4s")
	delays, err := parseDurations(retryDelaysStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_DELAYS: %w", err)
	}
	cfg.RetryDelays = delays

	minLatencyStr := getEnvOrDefault("PROVIDER_MIN_LATENCY", "200ms")
	minLatency, err := time.ParseDuration(minLatencyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_MIN_LATENCY: %w", err)
	}
	cfg.ProviderMinLatency = minLatency

	maxLatencyStr := getEnvOrDefault("PROVIDER_MAX_LATENCY", "500ms")
	maxLatency, err := time.ParseDuration(maxLatencyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_MAX_LATENCY: %w", err)
	}
	cfg.ProviderMaxLatency = maxLatency

	failureRateStr := getEnvOrDefault("PROVIDER_FAILURE_RATE", "0.5")
	failureRate, err := strconv.ParseFloat(failureRateStr, 64)
	if err != nil || failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("invalid PROVIDER_FAILURE_RATE: %q", failureRateStr)
	}
	cfg.ProviderFailureRate = failureRate

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDurations(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", part, err)
		}
		delays = append(delays, d)
	}
	return delays, nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("%s:%s@%s:%s/%s?sslmode=%s",
		c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaURL, ",")
}
