package domain

import (
	"errors"
	"time"
)

type CardStatus string

const (
	CardStatusPending CardStatus = "PENDING"
	CardStatusIssued  CardStatus = "ISSUED"
	CardStatusFailed  CardStatus = "FAILED"
)

var (
	ErrInvalidRequest   = errors.New("invalid card request data")
	ErrDuplicateRequest = errors.New("customer already has a card request in progress")
	ErrRequestNotFound  = errors.New("card request not found")
	ErrAlreadyFinalized = errors.New("card request already finalized")
)

// CardData is the synthetic card material populated on issuance.
type CardData struct {
	Number     string `json:"number"`
	CVV        string `json:"cvv"`
	Expiration string `json:"expiration"`
}

type CardRequest struct {
	ID             string
	DocumentType   string
	DocumentNumber string
	FullName       string
	Status         CardStatus
	CardNumber     string
	CVV            string
	ExpirationDate string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewCardRequest(id, documentType, documentNumber, fullName string) (*CardRequest, error) {
	if id == "" || documentType == "" || documentNumber == "" || fullName == "" {
		return nil, ErrInvalidRequest
	}
	now := time.Now()
	return &CardRequest{
		ID:             id,
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		FullName:       fullName,
		Status:         CardStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Terminal returns true once the request left PENDING. Terminal states are
// write-once: neither MarkIssued nor MarkFailed may overwrite them.
func (r *CardRequest) Terminal() bool {
	return r.Status == CardStatusIssued || r.Status == CardStatusFailed
}

func (r *CardRequest) MarkIssued(card CardData) error {
	if r.Terminal() {
		return ErrAlreadyFinalized
	}
	r.Status = CardStatusIssued
	r.CardNumber = card.Number
	r.CVV = card.CVV
	r.ExpirationDate = card.Expiration
	r.UpdatedAt = time.Now()
	return nil
}

func (r *CardRequest) MarkFailed() error {
	if r.Terminal() {
		return ErrAlreadyFinalized
	}
	r.Status = CardStatusFailed
	r.UpdatedAt = time.Now()
	return nil
}

// IssuedCard returns the stored card material of an ISSUED request.
func (r *CardRequest) IssuedCard() CardData {
	return CardData{
		Number:     r.CardNumber,
		CVV:        r.CVV,
		Expiration: r.ExpirationDate,
	}
}
