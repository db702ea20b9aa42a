package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/domain"
	kafka_infra "github.com/khaeldev/card-issuance-service/internal/infrastructure/kafka"
	"github.com/khaeldev/card-issuance-service/internal/provider"
	"github.com/khaeldev/card-issuance-service/internal/repository/card_repo"
	"github.com/khaeldev/card-issuance-service/internal/retry"
)

const deadLetterReason = "max retries exceeded from external provider"

type Topics struct {
	Issued     string
	DeadLetter string
}

type ProcessorService interface {
	ProcessIssuance(ctx context.Context, event *domain.CardRequestedEvent) error
}

type processorService struct {
	cardRepo card_repo.CardRequestRepository
	producer kafka_infra.Producer
	gateway  provider.Gateway
	policy   retry.Policy
	topics   Topics
	logger   *zap.Logger
}

func NewProcessorService(
	cardRepo card_repo.CardRequestRepository,
	producer kafka_infra.Producer,
	gateway provider.Gateway,
	policy retry.Policy,
	topics Topics,
	logger *zap.Logger,
) ProcessorService {
	return &processorService{
		cardRepo: cardRepo,
		producer: producer,
		gateway:  gateway,
		policy:   policy,
		topics:   topics,
		logger:   logger,
	}
}

// ProcessIssuance drives one card request from PENDING to a terminal state.
// Every provider failure is treated as transient and retried against the
// backoff schedule; exhausting the budget dead-letters the request. A non-nil
// return means the event's offset must not be committed so the broker
// redelivers it.
//
// A redelivered event whose row is already terminal skips the provider loop
// entirely and only republishes the stored outcome.
func (s *processorService) ProcessIssuance(ctx context.Context, event *domain.CardRequestedEvent) error {
	s.logger.Info("Processing card request", zap.String("request_id", event.RequestID))

	request, err := s.cardRepo.GetByID(ctx, event.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", event.RequestID, err)
	}
	if request.Terminal() {
		return s.republishTerminal(ctx, event, request)
	}

	attempts := 0
	maxRetries := s.policy.MaxAttempts() - 1

	for attempts <= maxRetries {
		err := s.gateway.Attempt(ctx, event.Product.SimulateError, attempts)
		if err == nil {
			return s.finishIssued(ctx, event, generateCardData())
		}

		attempts++
		s.logger.Warn("Provider attempt failed",
			zap.String("request_id", event.RequestID),
			zap.Int("attempt", attempts),
			zap.Error(err))

		if attempts > maxRetries {
			break
		}

		s.logger.Info("Waiting before retry",
			zap.String("request_id", event.RequestID),
			zap.Duration("delay", s.policy.Delays[attempts-1]))
		s.policy.Wait(ctx, attempts)
	}

	return s.finishDeadLettered(ctx, event, attempts)
}

func (s *processorService) finishIssued(ctx context.Context, event *domain.CardRequestedEvent, card domain.CardData) error {
	err := s.cardRepo.MarkIssued(ctx, event.RequestID, card)
	if errors.Is(err, domain.ErrAlreadyFinalized) {
		return s.reloadAndRepublish(ctx, event)
	}
	if err != nil {
		return fmt.Errorf("failed to persist issued card for request %s: %w", event.RequestID, err)
	}

	if err := s.publishIssued(ctx, event, card); err != nil {
		return err
	}

	s.logger.Info("Card issued successfully", zap.String("request_id", event.RequestID))
	return nil
}

func (s *processorService) finishDeadLettered(ctx context.Context, event *domain.CardRequestedEvent, attempts int) error {
	s.logger.Error("Card request exhausted retry budget, dead-lettering",
		zap.String("request_id", event.RequestID),
		zap.Int("attempts", attempts))

	err := s.cardRepo.MarkFailed(ctx, event.RequestID)
	if errors.Is(err, domain.ErrAlreadyFinalized) {
		return s.reloadAndRepublish(ctx, event)
	}
	if err != nil {
		return fmt.Errorf("failed to persist failed status for request %s: %w", event.RequestID, err)
	}

	return s.publishDeadLetter(ctx, event, attempts)
}

// reloadAndRepublish is the race backstop for the guarded terminal UPDATE:
// another delivery finalized the row between the pre-read and the write.
func (s *processorService) reloadAndRepublish(ctx context.Context, event *domain.CardRequestedEvent) error {
	request, err := s.cardRepo.GetByID(ctx, event.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load finalized request %s: %w", event.RequestID, err)
	}
	return s.republishTerminal(ctx, event, request)
}

// republishTerminal handles broker redelivery of a request that already has a
// terminal row, typically after a crash between the terminal write and the
// offset commit. Stored state is re-emitted as-is; card data is never
// regenerated.
func (s *processorService) republishTerminal(ctx context.Context, event *domain.CardRequestedEvent, request *domain.CardRequest) error {
	s.logger.Info("Request already finalized, republishing terminal event",
		zap.String("request_id", event.RequestID),
		zap.String("status", string(request.Status)))

	switch request.Status {
	case domain.CardStatusIssued:
		return s.publishIssued(ctx, event, request.IssuedCard())
	case domain.CardStatusFailed:
		return s.publishDeadLetter(ctx, event, s.policy.MaxAttempts())
	default:
		return fmt.Errorf("request %s reported finalized but is %s", event.RequestID, request.Status)
	}
}

func (s *processorService) publishIssued(ctx context.Context, event *domain.CardRequestedEvent, card domain.CardData) error {
	issued := domain.CardIssuedEvent{
		RequestID: event.RequestID,
		Status:    string(domain.CardStatusIssued),
		Card:      card,
	}
	payload, err := json.Marshal(issued)
	if err != nil {
		return fmt.Errorf("failed to marshal issued event for request %s: %w", event.RequestID, err)
	}
	if err := s.producer.Produce(ctx, s.topics.Issued, []byte(event.Customer.DocumentNumber), payload); err != nil {
		return fmt.Errorf("failed to publish issued event for request %s: %w", event.RequestID, err)
	}
	return nil
}

func (s *processorService) publishDeadLetter(ctx context.Context, event *domain.CardRequestedEvent, attempts int) error {
	deadLetter := domain.CardDeadLetterEvent{
		OriginalPayload: *event,
		Reason:          deadLetterReason,
		Attempts:        attempts,
	}
	payload, err := json.Marshal(deadLetter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter event for request %s: %w", event.RequestID, err)
	}
	if err := s.producer.Produce(ctx, s.topics.DeadLetter, []byte(event.Customer.DocumentNumber), payload); err != nil {
		return fmt.Errorf("failed to publish dead letter event for request %s: %w", event.RequestID, err)
	}
	return nil
}
