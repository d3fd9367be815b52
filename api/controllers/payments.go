package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresmgomez/pasarela-backend/api/responses"
	"github.com/andresmgomez/pasarela-backend/api/validators"
	customersvc "github.com/andresmgomez/pasarela-backend/internal/customers"
	paymentsvc "github.com/andresmgomez/pasarela-backend/internal/payments"
	transactionsvc "github.com/andresmgomez/pasarela-backend/internal/transactions"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
)

// ProcessPayment runs the synchronous checkout leg: upsert the
// transaction, charge the gateway and report the resulting status.
func ProcessPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload processPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trx, err := svc.ProcessPayment(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, trx)
	}
}

// GetPaymentStatus resolves the current status of a payment by id or
// reference, refreshing pending transactions against the gateway.
func GetPaymentStatus(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		identifier := validators.SanitizeString(chi.URLParam(r, "identifier"), 255)
		status, err := svc.GetStatus(r.Context(), identifier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// PaymentIntegrity signs a widget checkout so the browser can open the
// gateway form without ever seeing the integrity secret.
func PaymentIntegrity(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload integrityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		signature, err := svc.Integrity(r.Context(), paymentsvc.IntegrityInput{
			Reference:     validators.SanitizeString(payload.Reference, 255),
			AmountInCents: payload.AmountInCents,
			Currency:      payload.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, signature)
	}
}

type processPaymentRequest struct {
	Reference    string           `json:"reference" validate:"required"`
	Customer     customerRequest  `json:"customer" validate:"required"`
	ProductID    uuid.UUID        `json:"product_id" validate:"required"`
	Quantity     int              `json:"quantity,omitempty" validate:"omitempty,min=1"`
	Amount       decimal.Decimal  `json:"amount,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	PaymentToken string           `json:"payment_token" validate:"required"`
	Installments int              `json:"installments,omitempty" validate:"omitempty,min=1"`
	CartItems    json.RawMessage  `json:"cart_items,omitempty"`
	Delivery     *deliveryRequest `json:"delivery,omitempty"`
}

type integrityRequest struct {
	Reference     string `json:"reference" validate:"required"`
	AmountInCents int64  `json:"amount_in_cents" validate:"required,min=1"`
	Currency      string `json:"currency,omitempty"`
}

func (p processPaymentRequest) toInput() paymentsvc.ProcessPaymentInput {
	input := paymentsvc.ProcessPaymentInput{
		Reference: validators.SanitizeString(p.Reference, 255),
		Customer: customersvc.ResolveInput{
			Email:     validators.SanitizeString(p.Customer.Email, 255),
			FirstName: validators.SanitizeString(p.Customer.FirstName, 255),
			LastName:  validators.SanitizeString(p.Customer.LastName, 255),
			Phone:     validators.SanitizeString(p.Customer.Phone, 50),
		},
		ProductID:    p.ProductID,
		Quantity:     p.Quantity,
		Amount:       p.Amount,
		Currency:     p.Currency,
		PaymentToken: p.PaymentToken,
		Installments: p.Installments,
		CartItems:    p.CartItems,
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
