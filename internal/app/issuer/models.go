package issuer

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/khaeldev/card-issuance-service/internal/domain"
)

type CustomerRequest struct {
	DocumentType   string `json:"documentType" validate:"required,oneof=DNI CE PASSPORT"`
	DocumentNumber string `json:"documentNumber" validate:"required,min=8,max=12"`
	FullName       string `json:"fullName" validate:"required"`
	Age            int    `json:"age" validate:"required,gte=18"`
	Email          string `json:"email" validate:"required,email"`
}

type ProductRequest struct {
	Type          string `json:"type" validate:"required"`
	Currency      string `json:"currency" validate:"required"`
	SimulateError bool   `json:"simulateError"`
}

type IssueCardRequest struct {
	Customer CustomerRequest `json:"customer" validate:"required"`
	Product  ProductRequest  `json:"product" validate:"required"`
}

type IssueCardResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects malformed submissions before any side effect happens.
func (r *IssueCardRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
