package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/app/processor"
	"github.com/khaeldev/card-issuance-service/internal/domain"
)

type CardRequestedConsumer struct {
	processorService processor.ProcessorService
	logger           *zap.Logger
}

func NewCardRequestedConsumer(s processor.ProcessorService, l *zap.Logger) *CardRequestedConsumer {
	return &CardRequestedConsumer{processorService: s, logger: l}
}

// HandleMessage decodes one card-requested event and runs the issuance state
// machine. A malformed payload is logged and dropped (returning an error
// would redeliver it forever); a processing error propagates so the offset
// stays uncommitted.
func (c *CardRequestedConsumer) HandleMessage(ctx context.Context, message kafka.Message) error {
	var event domain.CardRequestedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		c.logger.Error("Error unmarshalling card requested event, dropping message",
			zap.Error(err),
			zap.ByteString("raw_message", message.Value))
		return nil
	}

	c.logger.Info("Received card requested event",
		zap.String("request_id", event.RequestID),
		zap.String("document_number", event.Customer.DocumentNumber))

	if err := c.processorService.ProcessIssuance(ctx, &event); err != nil {
		c.logger.Error("Error processing card requested event",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
		return err
	}
	return nil
}
