package kafka_infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopics creates the given topics if the broker does not have them yet.
// Safe to call from every instance at startup.
func EnsureTopics(ctx context.Context, brokers []string, topics []string, l *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			l.Info("Kafka topics already exist", zap.Strings("topics", topics))
			return nil
		}
		return fmt.Errorf("failed to create kafka topics: %w", err)
	}

	l.Info("Kafka topics ensured", zap.Strings("topics", topics))
	return nil
}
