package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
)

// TransactionDTO is the API-facing projection of a payment attempt. The
// sealed token and raw gateway payload never leave the service.
type TransactionDTO struct {
	ID            uuid.UUID               `json:"id"`
	Reference     string                  `json:"reference"`
	Status        enums.TransactionStatus `json:"status"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	Quantity      int                     `json:"quantity"`
	ProductID     uuid.UUID               `json:"productId"`
	CustomerID    uuid.UUID               `json:"customerId"`
	GatewayID     *string                 `json:"gatewayTransactionId,omitempty"`
	GatewayStatus *string                 `json:"gatewayStatus,omitempty"`
	FailureReason *string                 `json:"failureReason,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// StatusDTO augments the transaction with its status history.
type StatusDTO struct {
	TransactionDTO
	History []StatusEventDTO `json:"history"`
}

// StatusEventDTO is one row of the status history.
type StatusEventDTO struct {
	Status    enums.TransactionStatus `json:"status"`
	Source    string                  `json:"source"`
	Detail    *string                 `json:"detail,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

// IntegrityDTO carries the widget signature for a checkout.
type IntegrityDTO struct {
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amountInCents"`
	Currency      string `json:"currency"`
	Signature     string `json:"signature"`
}

func toDTO(trx *models.Transaction) *TransactionDTO {
	if trx == nil {
		return nil
	}
	return &TransactionDTO{
		ID:            trx.ID,
		Reference:     trx.Reference,
		Status:        trx.Status,
		Amount:        trx.Amount,
		Currency:      trx.Currency,
		Quantity:      trx.Quantity,
		ProductID:     trx.ProductID,
		CustomerID:    trx.CustomerID,
		GatewayID:     trx.WompiTransactionID,
		GatewayStatus: trx.WompiStatus,
		FailureReason: trx.FailureReason,
		CreatedAt:     trx.CreatedAt,
		UpdatedAt:     trx.UpdatedAt,
	}
}

func toStatusEventDTOs(events []models.TransactionStatusEvent) []StatusEventDTO {
	dtos := make([]StatusEventDTO, 0, len(events))
	for _, event := range events {
		dtos = append(dtos, StatusEventDTO{
			Status:    event.Status,
			Source:    event.Source,
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt,
		})
	}
	return dtos
}
