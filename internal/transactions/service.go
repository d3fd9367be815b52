package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	customer "github.com/andresmgomez/pasarela-backend/internal/customers"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
)

// Status change sources recorded in the history table.
const (
	SourceCheckout = "checkout"
	SourceGateway  = "gateway"
	SourceWebhook  = "webhook"
	SourceRepair   = "status_query"
)

// CreateOrMergeInput carries everything needed to create a transaction or
// merge a retry into the existing row for the same reference.
type CreateOrMergeInput struct {
	Reference     string
	Customer      customer.ResolveInput
	ProductID     uuid.UUID
	Quantity      int
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod enums.PaymentMethod
	SealedToken   string
	CartItems     json.RawMessage
	DeliveryInfo  json.RawMessage
	Delivery      *DeliveryInput
}

// DeliveryInput captures the structured shipping address.
type DeliveryInput struct {
	Address    string
	City       string
	Region     string
	Country    string
	PostalCode string
}

// Service owns the transaction lifecycle: idempotent creation by reference
// and guarded status changes with history.
type Service interface {
	CreateOrMerge(ctx context.Context, input CreateOrMergeInput) (*models.Transaction, bool, error)
	SetStatus(ctx context.Context, tx *gorm.DB, trx *models.Transaction, next enums.TransactionStatus, source string, detail *string) error
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Transaction, error)
	StatusHistory(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionStatusEvent, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo      *Repository
	tx        txRunner
	customers customer.Service
	logger    *logger.Logger
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Customers customer.Service
	Logger    *logger.Logger
}

// NewService constructs a transaction service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		customers: params.Customers,
		logger:    params.Logger,
	}, nil
}

// CreateOrMerge inserts a transaction for the reference or, when the row
// already exists, merges the retry into it. The insert uses ON CONFLICT DO
// NOTHING and the merge reloads the row under a row lock, so two concurrent
// requests with the same reference cannot produce duplicates.
func (s *service) CreateOrMerge(ctx context.Context, input CreateOrMergeInput) (*models.Transaction, bool, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "COP"
	}
	method := input.PaymentMethod
	if !method.IsValid() {
		method = enums.PaymentMethodCard
	}

	var (
		result  *models.Transaction
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cust, err := s.customers.Resolve(ctx, tx, input.Customer)
		if err != nil {
			return err
		}

		candidate := &models.Transaction{
			Reference:     reference,
			CustomerID:    cust.ID,
			ProductID:     input.ProductID,
			Quantity:      quantity,
			Amount:        input.Amount,
			Currency:      currency,
			Status:        enums.TransactionStatusPending,
			PaymentMethod: method,
			CartItems:     input.CartItems,
			DeliveryInfo:  input.DeliveryInfo,
		}
		if input.SealedToken != "" {
			candidate.PaymentToken = &input.SealedToken
		}
		applyCartTotals(candidate)

		inserted, err := repo.Insert(ctx, candidate)
		if err != nil {
			return err
		}
		if inserted {
			if err := repo.AppendStatusEvent(ctx, &models.TransactionStatusEvent{
				TransactionID: candidate.ID,
				Status:        candidate.Status,
				Source:        SourceCheckout,
			}); err != nil {
				return err
			}
			if input.Delivery != nil {
				if err := repo.CreateDelivery(ctx, deliveryFromInput(candidate.ID, input.Delivery)); err != nil {
					return err
				}
			}
			result, created = candidate, true
			return nil
		}

		existing, err := repo.FindByReference(ctx, reference, true)
		if err != nil {
			return err
		}
		mergeTransaction(existing, candidate)
		saved, err := repo.Save(ctx, existing)
		if err != nil {
			return err
		}
		if input.Delivery != nil {
			if _, err := repo.FindDelivery(ctx, saved.ID); pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				if err := repo.CreateDelivery(ctx, deliveryFromInput(saved.ID, input.Delivery)); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
		result, created = saved, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	ctx = s.logger.WithReference(ctx, reference)
	if created {
		s.logger.Info(s.logger.WithTransactionID(ctx, result.ID.String()), "transaction created")
	} else {
		s.logger.Info(s.logger.WithTransactionID(ctx, result.ID.String()), "transaction merged")
	}
	return result, created, nil
}

// mergeTransaction folds a retry into the existing row. A field is only
// replaced when the incoming value is more complete than the stored one;
// status is never touched here.
func mergeTransaction(existing, incoming *models.Transaction) {
	if existing.Amount.IsZero() && incoming.Amount.IsPositive() {
		existing.Amount = incoming.Amount
	}
	if existing.Quantity <= 0 && incoming.Quantity > 0 {
		existing.Quantity = incoming.Quantity
	}
	if len(existing.CartItems) == 0 && len(incoming.CartItems) > 0 {
		existing.CartItems = incoming.CartItems
	}
	if len(existing.DeliveryInfo) == 0 && len(incoming.DeliveryInfo) > 0 {
		existing.DeliveryInfo = incoming.DeliveryInfo
	}
	if incoming.PaymentToken != nil {
		existing.PaymentToken = incoming.PaymentToken
	}
	if (existing.ProductID == uuid.Nil || existing.ProductID == models.PlaceholderProductID) && incoming.ProductID != uuid.Nil {
		existing.ProductID = incoming.ProductID
	}
	existing.CustomerID = incoming.CustomerID
	applyCartTotals(existing)
}

type cartItem struct {
	Quantity int `json:"quantity"`
	Product  struct {
		ID    uuid.UUID       `json:"id"`
		Price decimal.Decimal `json:"price"`
	} `json:"product"`
}

// applyCartTotals makes the stored amount and quantity agree with the cart
// snapshot. The snapshot wins over whatever the client sent alongside it,
// but only when its line totals are priced; carts without prices leave the
// row untouched.
func applyCartTotals(trx *models.Transaction) {
	if len(trx.CartItems) == 0 {
		return
	}
	var items []cartItem
	if err := json.Unmarshal(trx.CartItems, &items); err != nil || len(items) == 0 {
		return
	}

	total := decimal.Zero
	quantity := 0
	for _, item := range items {
		q := item.Quantity
		if q <= 0 {
			q = 1
		}
		quantity += q
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(q))))
	}
	if !total.IsPositive() {
		return
	}
	trx.Amount = total
	trx.Quantity = quantity
}

func deliveryFromInput(transactionID uuid.UUID, input *DeliveryInput) *models.Delivery {
	delivery := &models.Delivery{
		TransactionID: transactionID,
		Address:       strings.TrimSpace(input.Address),
		City:          strings.TrimSpace(input.City),
		Region:        strings.TrimSpace(input.Region),
		Country:       strings.ToUpper(strings.TrimSpace(input.Country)),
	}
	if delivery.Country == "" {
		delivery.Country = "CO"
	}
	if code := strings.TrimSpace(input.PostalCode); code != "" {
		delivery.PostalCode = &code
	}
	return delivery
}

// SetStatus applies a guarded status change and appends a history row. A
// same-status call is a no-op. Disallowed transitions surface as state
// conflicts.
func (s *service) SetStatus(ctx context.Context, tx *gorm.DB, trx *models.Transaction, next enums.TransactionStatus, source string, detail *string) error {
	if trx == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", next))
	}
	if trx.Status == next {
		return nil
	}
	if !enums.CanTransition(trx.Status, next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition disallowed").
			WithDetails(map[string]any{"from": trx.Status, "to": next})
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	trx.Status = next
	if next.IsReversal() && detail != nil {
		trx.FailureReason = detail
	}
	if _, err := repo.Save(ctx, trx); err != nil {
		return err
	}
	if err := repo.AppendStatusEvent(ctx, &models.TransactionStatusEvent{
		TransactionID: trx.ID,
		Status:        next,
		Source:        source,
		Detail:        detail,
	}); err != nil {
		return err
	}

	ctx = s.logger.WithTransactionID(s.logger.WithReference(ctx, trx.Reference), trx.ID.String())
	s.logger.Info(s.logger.WithField(ctx, "status", next.String()), "transaction status changed")
	return nil
}

func (s *service) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return s.repo.FindByReference(ctx, strings.TrimSpace(reference), false)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByIdentifier accepts the internal UUID, the merchant reference, or
// the gateway's own transaction id.
func (s *service) GetByIdentifier(ctx context.Context, identifier string) (*models.Transaction, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identifier is required")
	}
	if id, err := uuid.Parse(identifier); err == nil {
		trx, err := s.repo.FindByID(ctx, id)
		if err == nil || !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return trx, err
		}
	} else {
		trx, err := s.repo.FindByReference(ctx, identifier, false)
		if err == nil || !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return trx, err
		}
	}
	return s.repo.FindByGatewayID(ctx, identifier)
}

func (s *service) StatusHistory(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionStatusEvent, error) {
	return s.repo.ListStatusEvents(ctx, transactionID)
}
