package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	customer "github.com/andresmgomez/pasarela-backend/internal/customers"
	product "github.com/andresmgomez/pasarela-backend/internal/products"
	transaction "github.com/andresmgomez/pasarela-backend/internal/transactions"
	wompiwebhook "github.com/andresmgomez/pasarela-backend/internal/webhooks/wompi"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/metrics"
	"github.com/andresmgomez/pasarela-backend/pkg/wompi"
)

// ProcessPaymentInput is the validated checkout payload.
type ProcessPaymentInput struct {
	Reference    string
	Customer     customer.ResolveInput
	ProductID    uuid.UUID
	Quantity     int
	Amount       decimal.Decimal
	Currency     string
	PaymentToken string
	Installments int
	CartItems    json.RawMessage
	Delivery     *transaction.DeliveryInput
}

// IntegrityInput requests a widget signature.
type IntegrityInput struct {
	Reference     string
	AmountInCents int64
	Currency      string
}

// Service orchestrates the synchronous leg of a checkout and resolves
// transaction status on demand.
type Service interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*TransactionDTO, error)
	GetStatus(ctx context.Context, identifier string) (*StatusDTO, error)
	Integrity(ctx context.Context, input IntegrityInput) (*IntegrityDTO, error)
}

type gatewayClient interface {
	Charge(ctx context.Context, params wompi.ChargeParams) (*wompi.Transaction, error)
	QueryStatus(ctx context.Context, gatewayID string) (*wompi.Transaction, error)
	SignIntegrity(reference string, amountInCents int64, currency string) string
}

type tokenSealer interface {
	Seal(token string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventReconciler interface {
	HandleEvent(ctx context.Context, event *wompi.Event) *wompiwebhook.ReconcileResult
}

// ServiceParams collects the orchestrator dependencies. Reconciler is
// optional; without it the status resolver skips the lazy-repair attempt
// for unknown identifiers.
type ServiceParams struct {
	Transactions    transaction.Service
	TransactionRepo *transaction.Repository
	ProductRepo     *product.Repository
	Gateway         gatewayClient
	Sealer          tokenSealer
	Tx              txRunner
	Reconciler      eventReconciler
	Logger          *logger.Logger
	Metrics         *metrics.PaymentMetrics
	Currency        string
}

type service struct {
	transactions    transaction.Service
	transactionRepo *transaction.Repository
	productRepo     *product.Repository
	gateway         gatewayClient
	sealer          tokenSealer
	tx              txRunner
	reconciler      eventReconciler
	logger          *logger.Logger
	metrics         *metrics.PaymentMetrics
	currency        string
}

// NewService constructs the payment orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction service required")
	}
	if params.TransactionRepo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Sealer == nil {
		return nil, fmt.Errorf("token sealer required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "COP"
	}
	return &service{
		transactions:    params.Transactions,
		transactionRepo: params.TransactionRepo,
		productRepo:     params.ProductRepo,
		gateway:         params.Gateway,
		sealer:          params.Sealer,
		tx:              params.Tx,
		reconciler:      params.Reconciler,
		logger:          params.Logger,
		metrics:         params.Metrics,
		currency:        currency,
	}, nil
}

// ProcessPayment runs the synchronous checkout leg: upsert the transaction,
// charge the gateway, and apply whatever verdict comes back immediately.
// Settlement that stays pending is finished later by the webhook.
func (s *service) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*TransactionDTO, error) {
	if strings.TrimSpace(input.PaymentToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token is required")
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	prod, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if prod.Stock < quantity {
		s.metrics.IncStockRejection()
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"product_id": prod.ID, "available": prod.Stock, "requested": quantity})
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = prod.Price.Mul(decimal.NewFromInt(int64(quantity)))
	}

	sealed, err := s.sealer.Seal(input.PaymentToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sealing payment token")
	}

	trx, _, err := s.transactions.CreateOrMerge(ctx, transaction.CreateOrMergeInput{
		Reference:     input.Reference,
		Customer:      input.Customer,
		ProductID:     input.ProductID,
		Quantity:      quantity,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: enums.PaymentMethodCard,
		SealedToken:   sealed,
		CartItems:     input.CartItems,
		Delivery:      input.Delivery,
	})
	if err != nil {
		return nil, err
	}

	// a retried reference that already settled is returned as-is, the
	// buyer must not be charged twice
	if trx.Status.IsTerminal() {
		s.metrics.IncCheckout(trx.Status.String())
		return toDTO(trx), nil
	}

	if err := s.transactions.SetStatus(ctx, nil, trx, enums.TransactionStatusProcessing, transaction.SourceCheckout, nil); err != nil {
		return nil, err
	}

	started := time.Now()
	gatewayTx, err := s.gateway.Charge(ctx, wompi.ChargeParams{
		Reference:     trx.Reference,
		AmountInCents: amountInCents(trx.Amount),
		Currency:      trx.Currency,
		CustomerEmail: strings.ToLower(strings.TrimSpace(input.Customer.Email)),
		PaymentToken:  input.PaymentToken,
		Installments:  input.Installments,
	})
	s.metrics.ObserveGateway("charge", time.Since(started))
	if err != nil {
		reason := "payment gateway unavailable"
		if typed := pkgerrors.As(err); typed != nil {
			reason = typed.Message()
		}
		if statusErr := s.transactions.SetStatus(ctx, nil, trx, enums.TransactionStatusFailed, transaction.SourceGateway, &reason); statusErr != nil {
			s.logger.Error(ctx, "recording gateway failure", statusErr)
		}
		s.metrics.IncCheckout(enums.TransactionStatusFailed.String())
		return nil, err
	}

	if err := s.applyGatewayVerdict(ctx, trx, gatewayTx, transaction.SourceGateway); err != nil {
		return nil, err
	}

	s.metrics.IncCheckout(trx.Status.String())
	ctx = s.logger.WithTransactionID(s.logger.WithReference(ctx, trx.Reference), trx.ID.String())
	s.logger.Info(s.logger.WithField(ctx, "status", trx.Status.String()), "checkout processed")
	return toDTO(trx), nil
}

// applyGatewayVerdict folds a gateway snapshot into the local record,
// adjusting stock when the verdict enters or leaves the approved state.
func (s *service) applyGatewayVerdict(ctx context.Context, trx *models.Transaction, gatewayTx *wompi.Transaction, source string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.transactionRepo.WithTx(tx)
		products := s.productRepo.WithTx(tx)

		trx.WompiStatus = &gatewayTx.Status
		if gatewayTx.ID != "" {
			trx.WompiTransactionID = &gatewayTx.ID
		}
		if raw, marshalErr := json.Marshal(gatewayTx); marshalErr == nil {
			trx.WompiResponse = raw
		}

		next := enums.FromGatewayStatus(gatewayTx.Status)
		if source == transaction.SourceGateway && next == enums.TransactionStatusApproved {
			// the synchronous leg records settlements as COMPLETED; the
			// webhook keeps the gateway's own APPROVED wording
			next = enums.TransactionStatusCompleted
		}
		if trx.Status == next || !enums.CanTransition(trx.Status, next) {
			_, err := repo.Save(ctx, trx)
			return err
		}

		switch {
		case next.IsApproved() && !trx.StockAdjusted:
			if err := products.AdjustStock(ctx, trx.ProductID, -trx.Quantity); err != nil {
				return err
			}
			trx.StockAdjusted = true
		case next.IsReversal() && trx.StockAdjusted:
			if err := products.AdjustStock(ctx, trx.ProductID, trx.Quantity); err != nil {
				return err
			}
			trx.StockAdjusted = false
		}

		return s.transactions.SetStatus(ctx, tx, trx, next, source, gatewayTx.StatusMessage)
	})
}

// GetStatus returns the transaction with its history. A record still
// waiting on the gateway is repaired against the gateway's current state
// before being returned; repair failures fall back to the stored state.
func (s *service) GetStatus(ctx context.Context, identifier string) (*StatusDTO, error) {
	trx, err := s.transactions.GetByIdentifier(ctx, identifier)
	if err != nil {
		if s.reconciler == nil || !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		// the gateway may know a settlement this service never recorded;
		// a creation-style envelope lets the reconciler find it by its
		// gateway id or synthesize it, after which the lookup is retried
		res := s.reconciler.HandleEvent(ctx, &wompi.Event{
			Event: "transaction.created",
			Data: wompi.EventData{Transaction: wompi.Transaction{
				ID:        identifier,
				Reference: identifier,
				Status:    wompi.StatusPending,
			}},
		})
		lookup := identifier
		if res != nil && res.Reference != "" {
			lookup = res.Reference
		}
		trx, err = s.transactions.GetByIdentifier(ctx, lookup)
		if err != nil {
			return nil, err
		}
	}

	if !trx.Status.IsTerminal() && trx.WompiTransactionID != nil {
		started := time.Now()
		gatewayTx, queryErr := s.gateway.QueryStatus(ctx, *trx.WompiTransactionID)
		s.metrics.ObserveGateway("query_status", time.Since(started))
		if queryErr != nil {
			s.logger.Warn(s.logger.WithReference(ctx, trx.Reference), "status repair skipped, gateway unavailable")
		} else if applyErr := s.applyGatewayVerdict(ctx, trx, gatewayTx, transaction.SourceRepair); applyErr != nil {
			s.logger.Error(s.logger.WithReference(ctx, trx.Reference), "status repair failed", applyErr)
		}
	}

	history, err := s.transactions.StatusHistory(ctx, trx.ID)
	if err != nil {
		return nil, err
	}
	return &StatusDTO{
		TransactionDTO: *toDTO(trx),
		History:        toStatusEventDTOs(history),
	}, nil
}

// Integrity signs a checkout for the gateway's embedded widget.
func (s *service) Integrity(ctx context.Context, input IntegrityInput) (*IntegrityDTO, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if input.AmountInCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	return &IntegrityDTO{
		Reference:     reference,
		AmountInCents: input.AmountInCents,
		Currency:      currency,
		Signature:     s.gateway.SignIntegrity(reference, input.AmountInCents, currency),
	}, nil
}

func amountInCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
