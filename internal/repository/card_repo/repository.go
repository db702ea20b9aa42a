package card_repo

import (
	"context"

	"github.com/khaeldev/card-issuance-service/internal/domain"
)

// CardRequestRepository is the Request Store contract. The document number
// uniqueness constraint is enforced by the store itself; Create surfaces a
// violation as domain.ErrDuplicateRequest. MarkIssued and MarkFailed only
// touch rows still in PENDING, so terminal states are write-once at the
// database level regardless of how many workers see the same event.
type CardRequestRepository interface {
	Create(ctx context.Context, request *domain.CardRequest) error
	GetByID(ctx context.Context, id string) (*domain.CardRequest, error)
	MarkIssued(ctx context.Context, id string, card domain.CardData) error
	MarkFailed(ctx context.Context, id string) error
}
