package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/domain"
	kafka_infra "github.com/khaeldev/card-issuance-service/internal/infrastructure/kafka"
	"github.com/khaeldev/card-issuance-service/internal/repository/card_repo"
)

// ErrEventPublish signals that the PENDING row was persisted but the
// card-requested event could not be published. The row is deliberately left
// in place for operational reconciliation.
var ErrEventPublish = errors.New("failed to publish card requested event")

type IssuerService interface {
	IssueCard(ctx context.Context, req *IssueCardRequest) (*IssueCardResponse, error)
}

type issuerService struct {
	cardRepo       card_repo.CardRequestRepository
	producer       kafka_infra.Producer
	requestedTopic string
	logger         *zap.Logger
}

func NewIssuerService(
	cardRepo card_repo.CardRequestRepository,
	producer kafka_infra.Producer,
	requestedTopic string,
	logger *zap.Logger,
) IssuerService {
	return &issuerService{
		cardRepo:       cardRepo,
		producer:       producer,
		requestedTopic: requestedTopic,
		logger:         logger,
	}
}

// IssueCard persists a new PENDING card request and then publishes the
// card-requested event keyed by the customer's document number. The order is
// fixed: persist first, publish second. A duplicate document number fails the
// insert and nothing is published.
func (s *issuerService) IssueCard(ctx context.Context, req *IssueCardRequest) (*IssueCardResponse, error) {
	if err := req.Validate(); err != nil {
		s.logger.Warn("Rejected invalid card request", zap.Error(err))
		return nil, err
	}

	requestID := uuid.NewString()
	request, err := domain.NewCardRequest(requestID, req.Customer.DocumentType, req.Customer.DocumentNumber, req.Customer.FullName)
	if err != nil {
		s.logger.Error("Failed to create card request domain object", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Saving new card request",
		zap.String("request_id", requestID),
		zap.String("document_number", req.Customer.DocumentNumber))

	if err := s.cardRepo.Create(ctx, request); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			s.logger.Warn("Customer already has a card request in progress",
				zap.String("document_number", req.Customer.DocumentNumber))
			return nil, err
		}
		s.logger.Error("Failed to save card request", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to save card request: %w", err)
	}

	event := domain.CardRequestedEvent{
		RequestID: requestID,
		Customer: domain.Customer{
			DocumentType:   req.Customer.DocumentType,
			DocumentNumber: req.Customer.DocumentNumber,
			FullName:       req.Customer.FullName,
			Age:            req.Customer.Age,
			Email:          req.Customer.Email,
		},
		Product: domain.Product{
			Type:          req.Product.Type,
			Currency:      req.Product.Currency,
			SimulateError: req.Product.SimulateError,
		},
		Metadata: domain.EventMetadata{Timestamp: time.Now().UTC()},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal card requested event", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEventPublish, err)
	}

	if err := s.producer.Produce(ctx, s.requestedTopic, []byte(req.Customer.DocumentNumber), payload); err != nil {
		// The PENDING row stays: reconciliation happens outside this service.
		s.logger.Error("Failed to publish card requested event, PENDING row retained",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEventPublish, err)
	}

	s.logger.Info("Card requested event published", zap.String("request_id", requestID))
	return &IssueCardResponse{RequestID: requestID, Status: string(domain.CardStatusPending)}, nil
}
