package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/khaeldev/card-issuance-service/internal/domain"
	"github.com/khaeldev/card-issuance-service/internal/repository/card_repo"
)

const uniqueViolationCode = "23505"

type pgCardRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCardRequestRepository(db *sql.DB, l *zap.Logger) card_repo.CardRequestRepository {
	return &pgCardRequestRepository{db: db, logger: l}
}

func (r *pgCardRequestRepository) Create(ctx context.Context, request *domain.CardRequest) error {
	query := `INSERT INTO card_requests (id, document_type, document_number, full_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		request.ID, request.DocumentType, request.DocumentNumber, request.FullName,
		request.Status, request.CreatedAt, request.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			r.logger.Warn("Duplicate card request for customer",
				zap.String("document_number", request.DocumentNumber))
			return domain.ErrDuplicateRequest
		}
		r.logger.Error("Failed to create card request", zap.String("request_id", request.ID), zap.Error(err))
		return fmt.Errorf("failed to create card request: %w", err)
	}
	r.logger.Debug("Card request created", zap.String("request_id", request.ID))
	return nil
}

func (r *pgCardRequestRepository) GetByID(ctx context.Context, id string) (*domain.CardRequest, error) {
	request := &domain.CardRequest{}
	var cardNumber, cvv, expiration sql.NullString
	query := `SELECT id, document_type, document_number, full_name, status, card_number, cvv, expiration_date, created_at, updated_at
		FROM card_requests WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&request.ID, &request.DocumentType, &request.DocumentNumber, &request.FullName,
		&request.Status, &cardNumber, &cvv, &expiration, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		r.logger.Error("Failed to get card request by ID", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get card request %s: %w", id, err)
	}
	request.CardNumber = cardNumber.String
	request.CVV = cvv.String
	request.ExpirationDate = expiration.String
	return request, nil
}

func (r *pgCardRequestRepository) MarkIssued(ctx context.Context, id string, card domain.CardData) error {
	query := `UPDATE card_requests SET status = $2, card_number = $3, cvv = $4, expiration_date = $5, updated_at = $6
		WHERE id = $1 AND status = $7`
	res, err := r.db.ExecContext(ctx, query,
		id, domain.CardStatusIssued, card.Number, card.CVV, card.Expiration, time.Now(), domain.CardStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark card request as issued", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark card request %s as issued: %w", id, err)
	}
	return r.checkTerminalUpdate(ctx, res, id)
}

func (r *pgCardRequestRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE card_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, domain.CardStatusFailed, time.Now(), domain.CardStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark card request as failed", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark card request %s as failed: %w", id, err)
	}
	return r.checkTerminalUpdate(ctx, res, id)
}

// checkTerminalUpdate distinguishes a missing row from one that already left
// PENDING when the guarded UPDATE touched nothing.
func (r *pgCardRequestRepository) checkTerminalUpdate(ctx context.Context, res sql.Result, id string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		r.logger.Error("Failed to get rows affected for terminal update", zap.String("request_id", id), zap.Error(err))
		return fmt.Errorf("failed to check terminal update result: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	r.logger.Warn("Card request already finalized, terminal update skipped", zap.String("request_id", id))
	return domain.ErrAlreadyFinalized
}
