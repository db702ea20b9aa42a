package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, message kafka.Message) error

// messageReader is the slice of kafka.Reader the consumer loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer pulls from one topic with explicit offset commits: an offset is
// committed only after the handler has durably recorded the outcome. The
// loop never moves past an unprocessed message — a failing handler is
// retried in place on the same message, because fetching the next message
// and committing it would advance the group offset past the failed one and
// silently drop it.
type Consumer struct {
	reader       messageReader
	topic        string
	groupID      string
	handlerRetry time.Duration
	logger       *zap.Logger
	handler      MessageHandler
}

func NewConsumer(brokers []string, topic, groupID, clientID string, handler MessageHandler, l *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		Dialer:      &kafka.Dialer{ClientID: clientID, Timeout: 10 * time.Second, DualStack: true},
		MinBytes:    10e3,
		MaxBytes:    10e6,
		Logger:      kafka.LoggerFunc(l.Sugar().Debugf),
		ErrorLogger: kafka.LoggerFunc(l.Sugar().Errorf),
	})

	return &Consumer{
		reader:       reader,
		topic:        topic,
		groupID:      groupID,
		handlerRetry: 1 * time.Second,
		logger:       l,
		handler:      handler,
	}
}

func (c *Consumer) Consume(ctx context.Context) error {
	c.logger.Info("Kafka consumer starting message consumption",
		zap.String("topic", c.topic),
		zap.String("group_id", c.groupID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer.", zap.String("topic", c.topic))
			return ctx.Err()
		default:
		}

		fetchCtx, cancelFetch := context.WithTimeout(ctx, 5*time.Second)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancelFetch()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Info("Consumer stopping due to context cancellation or reader closure.",
					zap.Error(err), zap.String("topic", c.topic))
				return nil
			}
			c.logger.Error("Error fetching message from Kafka", zap.Error(err), zap.String("topic", c.topic))
			time.Sleep(1 * time.Second)
			continue
		}

		if err := c.processMessage(ctx, m); err != nil {
			return err
		}

		commitCtx, cancelCommit := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.reader.CommitMessages(commitCtx, m); err != nil {
			c.logger.Error("Failed to commit offset for message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
		cancelCommit()
	}
}

// processMessage runs the handler until it succeeds, waiting between
// attempts. It returns only on handler success or context cancellation, so
// the caller never commits an offset for a message that was not processed.
func (c *Consumer) processMessage(ctx context.Context, m kafka.Message) error {
	for {
		err := c.handler(ctx, m)
		if err == nil {
			return nil
		}

		c.logger.Error("Error handling Kafka message, retrying same message",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))

		t := time.NewTimer(c.handlerRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka consumer reader", zap.Error(err), zap.String("topic", c.topic))
		return fmt.Errorf("failed to close Kafka consumer reader: %w", err)
	}
	c.logger.Info("Kafka consumer reader closed.", zap.String("topic", c.topic))
	return nil
}
