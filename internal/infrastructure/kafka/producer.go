package kafka_infra

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes keyed messages. Every event in this system is keyed by
// the customer's document number so one customer's events stay on one
// partition and are observed in publish order.
type Producer interface {
	Produce(ctx context.Context, topic string, key, message []byte) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, clientID string, l *zap.Logger) (Producer, error) {
	writer := &kafka.Writer{
		Addr:      kafka.TCP(brokers...),
		Balancer:  &kafka.Hash{},
		Transport: &kafka.Transport{ClientID: clientID},
		Logger:    zap.NewStdLog(l.With(zap.String("kafka_component", "producer"))),
	}

	l.Info("Kafka producer initialized", zap.Strings("brokers", brokers))
	return &kafkaProducer{writer: writer, logger: l}, nil
}

func (p *kafkaProducer) Produce(ctx context.Context, topic string, key, message []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to produce message to Kafka topic",
			zap.String("topic", topic),
			zap.ByteString("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to produce message: %w", err)
	}
	p.logger.Debug("Produced message to topic", zap.String("topic", topic), zap.ByteString("key", key))
	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed.")
	return nil
}
