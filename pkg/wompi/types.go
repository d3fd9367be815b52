package wompi

import "encoding/json"

// Gateway statuses as Wompi reports them. These are mapped into domain
// statuses by the enums package; this file only names the wire values.
const (
	StatusApproved = "APPROVED"
	StatusPending  = "PENDING"
	StatusDeclined = "DECLINED"
	StatusVoided   = "VOIDED"
	StatusError    = "ERROR"
)

// ChargeParams describes a card charge against the gateway.
type ChargeParams struct {
	Reference     string
	AmountInCents int64
	Currency      string
	CustomerEmail string
	PaymentToken  string
	Installments  int
	Signature     string
}

// Transaction is the gateway's view of a payment attempt.
type Transaction struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	AmountInCents int64           `json:"amount_in_cents"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	StatusMessage *string         `json:"status_message,omitempty"`
	PaymentMethod json.RawMessage `json:"payment_method,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	FinalizedAt   *string         `json:"finalized_at,omitempty"`
}

type transactionEnvelope struct {
	Data Transaction `json:"data"`
}

type chargeRequest struct {
	Reference       string        `json:"reference"`
	AmountInCents   int64         `json:"amount_in_cents"`
	Currency        string        `json:"currency"`
	CustomerEmail   string        `json:"customer_email"`
	Signature       string        `json:"signature,omitempty"`
	AcceptanceToken string        `json:"acceptance_token,omitempty"`
	PaymentMethod   paymentMethod `json:"payment_method"`
}

type paymentMethod struct {
	Type         string `json:"type"`
	Token        string `json:"token"`
	Installments int    `json:"installments"`
}

type merchantEnvelope struct {
	Data struct {
		PresignedAcceptance struct {
			AcceptanceToken string `json:"acceptance_token"`
		} `json:"presigned_acceptance"`
	} `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Type     string              `json:"type"`
		Reason   string              `json:"reason"`
		Messages map[string][]string `json:"messages"`
	} `json:"error"`
}

// Event is the asynchronous notification the gateway posts to the webhook
// endpoint after a transaction settles.
type Event struct {
	Event     string    `json:"event"`
	Data      EventData `json:"data"`
	SentAt    string    `json:"sent_at,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Signature EventSig  `json:"signature,omitempty"`
}

// EventData wraps the transaction snapshot carried by a notification.
type EventData struct {
	Transaction Transaction `json:"transaction"`
}

// EventSig carries the checksum Wompi computes over selected event
// properties.
type EventSig struct {
	Properties []string `json:"properties,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
}
