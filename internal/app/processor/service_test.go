package processor

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/domain"
	"github.com/khaeldev/card-issuance-service/internal/provider"
	"github.com/khaeldev/card-issuance-service/internal/retry"
)

type mockCardRepo struct {
	mock.Mock
}

func (m *mockCardRepo) Create(ctx context.Context, request *domain.CardRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *mockCardRepo) GetByID(ctx context.Context, id string) (*domain.CardRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CardRequest), args.Error(1)
}

func (m *mockCardRepo) MarkIssued(ctx context.Context, id string, card domain.CardData) error {
	args := m.Called(ctx, id, card)
	return args.Error(0)
}

func (m *mockCardRepo) MarkFailed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Produce(ctx context.Context, topic string, key, message []byte) error {
	args := m.Called(ctx, topic, key, message)
	return args.Error(0)
}

func (m *mockProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}

// countingGateway fails the first failures calls, then succeeds.
type countingGateway struct {
	calls    int
	failures int
}

func (g *countingGateway) Attempt(_ context.Context, forceFailure bool, _ int) error {
	g.calls++
	if forceFailure || g.calls <= g.failures {
		return provider.ErrProviderUnavailable
	}
	return nil
}

func testPolicy(slept *[]time.Duration) retry.Policy {
	p := retry.NewPolicy(nil)
	p.Sleep = func(_ context.Context, d time.Duration) {
		*slept = append(*slept, d)
	}
	return p
}

func testTopics() Topics {
	return Topics{Issued: "card_issued_events", DeadLetter: "card_issue_dlq"}
}

func pendingRequest() *domain.CardRequest {
	return &domain.CardRequest{
		ID:             "req-1",
		DocumentNumber: "12345678",
		Status:         domain.CardStatusPending,
	}
}

func requestedEvent(simulateError bool) *domain.CardRequestedEvent {
	return &domain.CardRequestedEvent{
		RequestID: "req-1",
		Customer: domain.Customer{
			DocumentType:   "DNI",
			DocumentNumber: "12345678",
			FullName:       "Jane Doe",
			Age:            30,
			Email:          "jane@test.com",
		},
		Product:  domain.Product{Type: "VISA", Currency: "PEN", SimulateError: simulateError},
		Metadata: domain.EventMetadata{Timestamp: time.Now().UTC()},
	}
}

func TestProcessIssuanceSucceedsFirstAttempt(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()

	var storedCard domain.CardData
	repo.On("MarkIssued", mock.Anything, "req-1", mock.MatchedBy(func(card domain.CardData) bool {
		storedCard = card
		return regexp.MustCompile(`^4000\d{12}$`).MatchString(card.Number) &&
			regexp.MustCompile(`^\d{3}$`).MatchString(card.CVV) &&
			card.Expiration == "12/29"
	})).Return(nil).Once()

	producer.On("Produce", mock.Anything, "card_issued_events", []byte("12345678"),
		mock.MatchedBy(func(payload []byte) bool {
			var issued domain.CardIssuedEvent
			if err := json.Unmarshal(payload, &issued); err != nil {
				return false
			}
			return issued.RequestID == "req-1" &&
				issued.Status == "ISSUED" &&
				issued.Card == storedCard
		})).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(false)))
	require.Equal(t, 1, gateway.calls)
	require.Empty(t, slept)

	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestProcessIssuanceRetriesThenSucceeds(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{failures: 2}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
	repo.On("MarkIssued", mock.Anything, "req-1", mock.Anything).Return(nil).Once()
	producer.On("Produce", mock.Anything, "card_issued_events", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(false)))
	require.Equal(t, 3, gateway.calls)
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestProcessIssuanceExhaustsBudgetAndDeadLetters(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
	repo.On("MarkFailed", mock.Anything, "req-1").Return(nil).Once()
	producer.On("Produce", mock.Anything, "card_issue_dlq", []byte("12345678"),
		mock.MatchedBy(func(payload []byte) bool {
			var dl domain.CardDeadLetterEvent
			if err := json.Unmarshal(payload, &dl); err != nil {
				return false
			}
			return dl.Attempts == 4 &&
				dl.Reason == "max retries exceeded from external provider" &&
				dl.OriginalPayload.RequestID == "req-1" &&
				dl.OriginalPayload.Product.SimulateError
		})).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(true)))
	require.Equal(t, 4, gateway.calls)
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, slept)

	repo.AssertNotCalled(t, "MarkIssued", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestProcessIssuanceRepublishesStoredCardOnRedelivery(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	stored := &domain.CardRequest{
		ID:             "req-1",
		DocumentNumber: "12345678",
		Status:         domain.CardStatusIssued,
		CardNumber:     "4000111122223333",
		CVV:            "321",
		ExpirationDate: "12/29",
	}

	repo.On("GetByID", mock.Anything, "req-1").Return(stored, nil).Once()
	producer.On("Produce", mock.Anything, "card_issued_events", []byte("12345678"),
		mock.MatchedBy(func(payload []byte) bool {
			var issued domain.CardIssuedEvent
			if err := json.Unmarshal(payload, &issued); err != nil {
				return false
			}
			// The stored card is re-emitted untouched, never regenerated.
			return issued.Card.Number == "4000111122223333" && issued.Card.CVV == "321"
		})).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(false)))

	// A redelivery of an already-finalized request never touches the provider
	// and never sleeps through the backoff schedule.
	require.Equal(t, 0, gateway.calls)
	require.Empty(t, slept)
	repo.AssertNotCalled(t, "MarkIssued", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestProcessIssuanceRepublishesWhenFinalizedAfterPreRead(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	stored := &domain.CardRequest{
		ID:             "req-1",
		DocumentNumber: "12345678",
		Status:         domain.CardStatusIssued,
		CardNumber:     "4000111122223333",
		CVV:            "321",
		ExpirationDate: "12/29",
	}

	// The row is PENDING at the pre-read but a concurrent delivery finalizes
	// it before the guarded UPDATE lands.
	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
	repo.On("MarkIssued", mock.Anything, "req-1", mock.Anything).Return(domain.ErrAlreadyFinalized).Once()
	repo.On("GetByID", mock.Anything, "req-1").Return(stored, nil).Once()
	producer.On("Produce", mock.Anything, "card_issued_events", []byte("12345678"),
		mock.MatchedBy(func(payload []byte) bool {
			var issued domain.CardIssuedEvent
			if err := json.Unmarshal(payload, &issued); err != nil {
				return false
			}
			return issued.Card.Number == "4000111122223333" && issued.Card.CVV == "321"
		})).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(false)))
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestProcessIssuanceRepublishesDeadLetterOnRedelivery(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	stored := &domain.CardRequest{
		ID:             "req-1",
		DocumentNumber: "12345678",
		Status:         domain.CardStatusFailed,
	}

	repo.On("GetByID", mock.Anything, "req-1").Return(stored, nil).Once()
	producer.On("Produce", mock.Anything, "card_issue_dlq", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	require.NoError(t, svc.ProcessIssuance(context.Background(), requestedEvent(true)))
	require.Equal(t, 0, gateway.calls)
	require.Empty(t, slept)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestProcessIssuancePersistenceFailureIsFatalForEvent(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
	repo.On("MarkIssued", mock.Anything, "req-1", mock.Anything).
		Return(errors.New("store unavailable")).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	err := svc.ProcessIssuance(context.Background(), requestedEvent(false))
	require.Error(t, err)

	// No terminal event goes out when the store write failed; the broker
	// redelivers the message instead.
	producer.AssertNotCalled(t, "Produce", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessIssuancePublishFailureIsFatalForEvent(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(), nil).Once()
	repo.On("MarkIssued", mock.Anything, "req-1", mock.Anything).Return(nil).Once()
	producer.On("Produce", mock.Anything, "card_issued_events", mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable")).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	err := svc.ProcessIssuance(context.Background(), requestedEvent(false))
	require.Error(t, err)
}

func TestProcessIssuanceLoadFailureIsFatalForEvent(t *testing.T) {
	repo := new(mockCardRepo)
	producer := new(mockProducer)
	gateway := &countingGateway{}
	var slept []time.Duration

	repo.On("GetByID", mock.Anything, "req-1").Return(nil, errors.New("store unavailable")).Once()

	svc := NewProcessorService(repo, producer, gateway, testPolicy(&slept), testTopics(), zap.NewNop())

	err := svc.ProcessIssuance(context.Background(), requestedEvent(false))
	require.Error(t, err)
	require.Equal(t, 0, gateway.calls)
	producer.AssertNotCalled(t, "Produce", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateCardDataFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		card := generateCardData()
		require.Regexp(t, `^4000\d{12}$`, card.Number)
		require.Regexp(t, `^\d{3}$`, card.CVV)
		require.Equal(t, "12/29", card.Expiration)
	}
}
