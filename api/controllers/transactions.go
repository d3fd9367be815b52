package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresmgomez/pasarela-backend/api/responses"
	"github.com/andresmgomez/pasarela-backend/api/validators"
	customersvc "github.com/andresmgomez/pasarela-backend/internal/customers"
	transactionsvc "github.com/andresmgomez/pasarela-backend/internal/transactions"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
)

// UpsertTransaction registers a checkout attempt. Retries with the same
// reference merge into the existing row instead of creating a duplicate.
func UpsertTransaction(svc transactionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		var payload upsertTransactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trx, created, err := svc.CreateOrMerge(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newTransactionResponse(trx))
	}
}

// GetTransaction looks a transaction up by id or by reference.
func GetTransaction(svc transactionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}

		identifier := validators.SanitizeString(chi.URLParam(r, "identifier"), 255)
		trx, err := svc.GetByIdentifier(r.Context(), identifier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(trx))
	}
}

type upsertTransactionRequest struct {
	Reference     string           `json:"reference" validate:"required"`
	Customer      customerRequest  `json:"customer" validate:"required"`
	ProductID     uuid.UUID        `json:"product_id" validate:"required"`
	Quantity      int              `json:"quantity,omitempty" validate:"omitempty,min=1"`
	Amount        decimal.Decimal  `json:"amount,omitempty" validate:"required"`
	Currency      string           `json:"currency,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	CartItems     json.RawMessage  `json:"cart_items,omitempty"`
	DeliveryInfo  json.RawMessage  `json:"delivery_info,omitempty"`
	Delivery      *deliveryRequest `json:"delivery,omitempty"`
}

type customerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type deliveryRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

func (p upsertTransactionRequest) toInput() transactionsvc.CreateOrMergeInput {
	input := transactionsvc.CreateOrMergeInput{
		Reference: validators.SanitizeString(p.Reference, 255),
		Customer: customersvc.ResolveInput{
			Email:     validators.SanitizeString(p.Customer.Email, 255),
			FirstName: validators.SanitizeString(p.Customer.FirstName, 255),
			LastName:  validators.SanitizeString(p.Customer.LastName, 255),
			Phone:     validators.SanitizeString(p.Customer.Phone, 50),
		},
		ProductID:     p.ProductID,
		Quantity:      p.Quantity,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: enums.PaymentMethod(p.PaymentMethod),
		CartItems:     p.CartItems,
		DeliveryInfo:  p.DeliveryInfo,
	}
	if p.Delivery != nil {
		input.Delivery = &transactionsvc.DeliveryInput{
			Address:    validators.SanitizeString(p.Delivery.Address, 500),
			City:       validators.SanitizeString(p.Delivery.City, 120),
			Region:     validators.SanitizeString(p.Delivery.Region, 120),
			Country:    validators.SanitizeString(p.Delivery.Country, 2),
			PostalCode: validators.SanitizeString(p.Delivery.PostalCode, 20),
		}
	}
	return input
}

type transactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	Reference     string                  `json:"reference"`
	Status        enums.TransactionStatus `json:"status"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	Quantity      int                     `json:"quantity"`
	ProductID     uuid.UUID               `json:"productId"`
	CustomerID    uuid.UUID               `json:"customerId"`
	PaymentMethod enums.PaymentMethod     `json:"paymentMethod"`
	GatewayID     *string                 `json:"gatewayTransactionId,omitempty"`
	GatewayStatus *string                 `json:"gatewayStatus,omitempty"`
	FailureReason *string                 `json:"failureReason,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

func newTransactionResponse(trx *models.Transaction) *transactionResponse {
	if trx == nil {
		return nil
	}
	return &transactionResponse{
		ID:            trx.ID,
		Reference:     trx.Reference,
		Status:        trx.Status,
		Amount:        trx.Amount,
		Currency:      trx.Currency,
		Quantity:      trx.Quantity,
		ProductID:     trx.ProductID,
		CustomerID:    trx.CustomerID,
		PaymentMethod: trx.PaymentMethod,
		GatewayID:     trx.WompiTransactionID,
		GatewayStatus: trx.WompiStatus,
		FailureReason: trx.FailureReason,
		CreatedAt:     trx.CreatedAt,
		UpdatedAt:     trx.UpdatedAt,
	}
}
