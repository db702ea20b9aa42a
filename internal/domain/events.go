package domain

import "time"

// Customer is the identity snapshot taken at intake time. It travels with
// every event so downstream consumers never need to read the store.
type Customer struct {
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	FullName       string `json:"fullName"`
	Age            int    `json:"age"`
	Email          string `json:"email"`
}

type Product struct {
	Type          string `json:"type"`
	Currency      string `json:"currency"`
	SimulateError bool   `json:"simulateError"`
}

type EventMetadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// CardRequestedEvent is published by the issuer after the PENDING row is
// persisted. The broker key is the customer's document number, which keeps
// all events for one customer on one partition.
type CardRequestedEvent struct {
	RequestID string        `json:"requestId"`
	Customer  Customer      `json:"customer"`
	Product   Product       `json:"product"`
	Metadata  EventMetadata `json:"metadata"`
}

// CardIssuedEvent is the success terminal event.
type CardIssuedEvent struct {
	RequestID string   `json:"requestId"`
	Status    string   `json:"status"`
	Card      CardData `json:"card"`
}

// CardDeadLetterEvent is the failure terminal event, carrying the original
// payload so remediation tooling can replay it.
type CardDeadLetterEvent struct {
	OriginalPayload CardRequestedEvent `json:"originalPayload"`
	Reason          string             `json:"reason"`
	Attempts        int                `json:"attempts"`
}
