package wompiwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	product "github.com/andresmgomez/pasarela-backend/internal/products"
	transaction "github.com/andresmgomez/pasarela-backend/internal/transactions"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/metrics"
	"github.com/andresmgomez/pasarela-backend/pkg/wompi"
)

const (
	providerName  = "wompi"
	eventClaimTTL = 24 * time.Hour
)

// Reconcile outcomes reported back to the controller and metrics.
const (
	OutcomeReconciled = "reconciled"
	OutcomeNoop       = "noop"
	OutcomeDuplicate  = "duplicate"
	OutcomeInvalid    = "invalid"
	OutcomeStale      = "stale"
	OutcomeError      = "error"
)

// ReconcileResult describes what a webhook delivery did to the local record.
// The webhook boundary always acks; this result is for logging and metrics,
// and Err carries the internal failure when Outcome is OutcomeError.
type ReconcileResult struct {
	Outcome   string
	Reference string
	From      enums.TransactionStatus
	To        enums.TransactionStatus
	Err       error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventGuard interface {
	MarkEventProcessed(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, provider, eventID string) error
}

// ServiceParams collects the reconciler dependencies. Guard is optional;
// without it duplicate suppression falls back to the status no-op check.
type ServiceParams struct {
	TransactionRepo *transaction.Repository
	Transactions    transaction.Service
	ProductRepo     *product.Repository
	Tx              txRunner
	Guard           eventGuard
	Logger          *logger.Logger
	Metrics         *metrics.PaymentMetrics
	EventsKey       string
}

// Service reconciles asynchronous gateway notifications into the local
// transaction record and compensates inventory.
type Service struct {
	transactionRepo *transaction.Repository
	transactions    transaction.Service
	productRepo     *product.Repository
	tx              txRunner
	guard           eventGuard
	logger          *logger.Logger
	metrics         *metrics.PaymentMetrics
	eventsKey       string
}

// NewService constructs the webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRepo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction service required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		transactionRepo: params.TransactionRepo,
		transactions:    params.Transactions,
		productRepo:     params.ProductRepo,
		tx:              params.Tx,
		guard:           params.Guard,
		logger:          params.Logger,
		metrics:         params.Metrics,
		eventsKey:       params.EventsKey,
	}, nil
}

// HandleEvent applies a gateway notification. It never panics and never
// demands a retry from the gateway; failures are reported in the result so
// the controller can ack regardless.
func (s *Service) HandleEvent(ctx context.Context, event *wompi.Event) *ReconcileResult {
	result := s.handle(ctx, event)
	s.metrics.IncWebhookEvent(result.Outcome)

	ctx = s.logger.WithField(ctx, "outcome", result.Outcome)
	if result.Reference != "" {
		ctx = s.logger.WithReference(ctx, result.Reference)
	}
	if result.Err != nil {
		s.logger.Error(ctx, "webhook reconciliation failed", result.Err)
	} else {
		s.logger.Info(ctx, "webhook event processed")
	}
	return result
}

func isCreationEvent(name string) bool {
	return strings.HasSuffix(name, ".created")
}

func (s *Service) handle(ctx context.Context, event *wompi.Event) *ReconcileResult {
	if event == nil || event.Data.Transaction.Status == "" {
		return &ReconcileResult{Outcome: OutcomeInvalid}
	}
	gatewayTx := event.Data.Transaction
	reference := gatewayTx.Reference
	if reference == "" {
		reference = gatewayTx.ID
	}
	if reference == "" {
		return &ReconcileResult{Outcome: OutcomeInvalid}
	}

	result := &ReconcileResult{Reference: reference}

	if gatewayTx.ID == "" || event.Signature.Checksum == "" {
		// sandbox deliveries and internally built repair envelopes are
		// unsigned; accept them but leave a trail
		s.logger.Warn(s.logger.WithReference(ctx, reference), "webhook event carries no checksum")
	} else if err := wompi.VerifyEventChecksum(event, s.eventsKey); err != nil {
		result.Outcome = OutcomeInvalid
		result.Err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook checksum rejected")
		return result
	}

	eventID := fmt.Sprintf("%s:%s:%d", gatewayTx.ID, gatewayTx.Status, event.Timestamp)
	if s.guard != nil {
		claimed, err := s.guard.MarkEventProcessed(ctx, providerName, eventID, eventClaimTTL)
		if err != nil {
			// the guard is an optimization, not a correctness gate
			s.logger.Warn(s.logger.WithReference(ctx, reference), "webhook dedupe guard unavailable")
		} else if !claimed {
			result.Outcome = OutcomeDuplicate
			return result
		}
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.transactionRepo.WithTx(tx)

		trx, err := s.resolve(ctx, repo, event, &gatewayTx, reference)
		if err != nil {
			return err
		}
		if trx == nil {
			// creation ping ahead of the checkout data, nothing to record
			result.Outcome = OutcomeNoop
			return nil
		}
		// an event resolved by gateway id may carry no reference of its own
		result.Reference = trx.Reference

		next := enums.FromGatewayStatus(gatewayTx.Status)
		result.From, result.To = trx.Status, next

		trx.WompiStatus = &gatewayTx.Status
		if gatewayTx.ID != "" {
			trx.WompiTransactionID = &gatewayTx.ID
		}
		// the full envelope is kept for audit, not just the transaction part
		if raw, marshalErr := json.Marshal(event); marshalErr == nil {
			trx.WompiResponse = raw
		}

		if trx.Status == next {
			if _, err := repo.Save(ctx, trx); err != nil {
				return err
			}
			result.Outcome = OutcomeNoop
			return nil
		}
		if !enums.CanTransition(trx.Status, next) {
			if _, err := repo.Save(ctx, trx); err != nil {
				return err
			}
			result.Outcome = OutcomeStale
			return nil
		}

		s.compensateStock(ctx, tx, trx, next)

		if err := s.transactions.SetStatus(ctx, tx, trx, next, transaction.SourceWebhook, gatewayTx.StatusMessage); err != nil {
			return err
		}
		result.Outcome = OutcomeReconciled
		return nil
	})
	if err != nil {
		if s.guard != nil {
			// let the gateway's redelivery retry this event
			if releaseErr := s.guard.ReleaseEvent(ctx, providerName, eventID); releaseErr != nil {
				s.logger.Warn(ctx, "failed to release webhook event claim")
			}
		}
		result.Outcome = OutcomeError
		result.Err = pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "reconciling webhook event")
		return result
	}
	return result
}

// resolve locates the local transaction for a notification, preferring the
// stored gateway id over the merchant reference. Unknown transactions are
// synthesized so the settlement has a target; a nil transaction with a nil
// error means the event was a contentless creation ping.
func (s *Service) resolve(ctx context.Context, repo *transaction.Repository, event *wompi.Event, gatewayTx *wompi.Transaction, reference string) (*models.Transaction, error) {
	if gatewayTx.ID != "" {
		trx, err := repo.FindByGatewayID(ctx, gatewayTx.ID)
		if err == nil {
			return trx, nil
		}
		if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}

	trx, err := repo.FindByReference(ctx, reference, true)
	if err == nil {
		return trx, nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	if isCreationEvent(event.Event) && gatewayTx.AmountInCents == 0 {
		return nil, nil
	}
	return s.synthesize(ctx, repo, gatewayTx, reference)
}

// synthesize records a minimal transaction for a settlement that arrived
// before the checkout did. The placeholder bindings are replaced when the
// buyer's create-or-merge call lands on the same reference.
func (s *Service) synthesize(ctx context.Context, repo *transaction.Repository, gatewayTx *wompi.Transaction, reference string) (*models.Transaction, error) {
	trx := &models.Transaction{
		Reference:     reference,
		CustomerID:    models.PlaceholderCustomerID,
		ProductID:     models.PlaceholderProductID,
		Quantity:      1,
		Amount:        decimal.New(gatewayTx.AmountInCents, -2),
		Currency:      gatewayTx.Currency,
		Status:        enums.TransactionStatusPending,
		PaymentMethod: enums.PaymentMethodCard,
	}
	if gatewayTx.ID != "" {
		trx.WompiTransactionID = &gatewayTx.ID
	}

	created, err := repo.Insert(ctx, trx)
	if err != nil {
		return nil, err
	}
	if !created {
		// lost the race against a concurrent checkout for the same reference
		return repo.FindByReference(ctx, reference, true)
	}
	s.logger.Info(s.logger.WithReference(ctx, reference), "synthesized transaction from webhook event")
	return trx, nil
}

// compensateStock keeps the stock counter aligned with the settlement
// verdict. The stock_adjusted flag makes both directions idempotent under
// redelivered events. Adjustment failures are logged and skipped rather
// than bubbled, since the settlement is already final upstream and failing
// the reconciliation would leave the payment status unrecorded.
func (s *Service) compensateStock(ctx context.Context, tx *gorm.DB, trx *models.Transaction, next enums.TransactionStatus) {
	products := s.productRepo.WithTx(tx)
	ctx = s.logger.WithReference(ctx, trx.Reference)

	switch {
	case next.IsApproved() && !trx.StockAdjusted:
		if err := products.AdjustStock(ctx, trx.ProductID, -trx.Quantity); err != nil {
			s.metrics.IncStockRejection()
			s.logger.Warn(ctx, "stock decrement skipped during reconciliation")
			return
		}
		trx.StockAdjusted = true
	case next.IsReversal() && trx.StockAdjusted:
		if err := products.AdjustStock(ctx, trx.ProductID, trx.Quantity); err != nil {
			s.logger.Warn(ctx, "stock restore skipped during reconciliation")
			return
		}
		trx.StockAdjusted = false
	}
}
