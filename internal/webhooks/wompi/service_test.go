package wompiwebhook

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	customer "github.com/andresmgomez/pasarela-backend/internal/customers"
	product "github.com/andresmgomez/pasarela-backend/internal/products"
	transaction "github.com/andresmgomez/pasarela-backend/internal/transactions"
	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/wompi"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubGuard struct {
	claimed  map[string]bool
	released []string
}

func (g *stubGuard) MarkEventProcessed(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	key := provider + ":" + eventID
	if g.claimed[key] {
		return false, nil
	}
	if g.claimed == nil {
		g.claimed = map[string]bool{}
	}
	g.claimed[key] = true
	return true, nil
}

func (g *stubGuard) ReleaseEvent(ctx context.Context, provider, eventID string) error {
	key := provider + ":" + eventID
	delete(g.claimed, key)
	g.released = append(g.released, key)
	return nil
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	product *models.Product
	trx     *models.Transaction
}

func newFixture(t *testing.T, guard eventGuard) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Customer{},
		&models.Transaction{},
		&models.TransactionStatusEvent{},
		&models.Delivery{},
	))

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})

	customers, err := customer.NewService(customer.NewRepository(db))
	require.NoError(t, err)

	txRepo := transaction.NewRepository(db)
	lifecycle, err := transaction.NewService(transaction.ServiceParams{
		Repo:      txRepo,
		Tx:        testTxRunner{db: db},
		Customers: customers,
		Logger:    logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		TransactionRepo: txRepo,
		Transactions:    lifecycle,
		ProductRepo:     product.NewRepository(db),
		Tx:              testTxRunner{db: db},
		Guard:           guard,
		Logger:          logg,
	})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Customer{ID: models.PlaceholderCustomerID, Email: "webhook@pasarela.local", FirstName: "No especificado", LastName: "No especificado"}).Error)
	require.NoError(t, db.Create(&models.Product{ID: models.PlaceholderProductID, Name: "No especificado", Price: decimal.Zero, Stock: 0}).Error)

	prod := &models.Product{ID: uuid.New(), Name: "Hoodie oversize", Price: decimal.NewFromInt(145000), Stock: 10}
	require.NoError(t, db.Create(prod).Error)

	trx, _, err := lifecycle.CreateOrMerge(context.Background(), transaction.CreateOrMergeInput{
		Reference: "sale-100",
		Customer:  customer.ResolveInput{Email: "buyer@example.com"},
		ProductID: prod.ID,
		Quantity:  3,
		Amount:    decimal.NewFromInt(435000),
	})
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, product: prod, trx: trx}
}

func approvedEvent(reference string) *wompi.Event {
	return &wompi.Event{
		Event:     "transaction.updated",
		Timestamp: 1706500000,
		Data: wompi.EventData{Transaction: wompi.Transaction{
			ID:            "wmp-100",
			Reference:     reference,
			AmountInCents: 43500000,
			Currency:      "COP",
			Status:        wompi.StatusApproved,
		}},
	}
}

func (f *fixture) reload(t *testing.T) (*models.Transaction, *models.Product) {
	t.Helper()

	var trx models.Transaction
	require.NoError(t, f.db.First(&trx, "id = ?", f.trx.ID).Error)
	var prod models.Product
	require.NoError(t, f.db.First(&prod, "id = ?", f.product.ID).Error)
	return &trx, &prod
}

func TestHandleEventApprovesAndDecrementsStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	result := f.svc.HandleEvent(context.Background(), approvedEvent("sale-100"))
	assert.Equal(t, OutcomeReconciled, result.Outcome)
	assert.Equal(t, enums.TransactionStatusPending, result.From)
	assert.Equal(t, enums.TransactionStatusApproved, result.To)
	assert.NoError(t, result.Err)

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusApproved, trx.Status)
	assert.True(t, trx.StockAdjusted)
	assert.Equal(t, 7, prod.Stock)
	require.NotNil(t, trx.WompiTransactionID)
	assert.Equal(t, "wmp-100", *trx.WompiTransactionID)
	assert.NotEmpty(t, trx.WompiResponse)
	// the whole envelope is stored, not just the transaction snapshot
	assert.Contains(t, string(trx.WompiResponse), `"event":"transaction.updated"`)
	assert.Contains(t, string(trx.WompiResponse), `"transaction"`)
}

func TestHandleEventRedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.svc.HandleEvent(ctx, approvedEvent("sale-100"))
	require.Equal(t, OutcomeReconciled, first.Outcome)

	second := f.svc.HandleEvent(ctx, approvedEvent("sale-100"))
	assert.Equal(t, OutcomeNoop, second.Outcome)

	_, prod := f.reload(t)
	assert.Equal(t, 7, prod.Stock, "stock must not be decremented twice")
}

func TestHandleEventReversalRestocks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.Equal(t, OutcomeReconciled, f.svc.HandleEvent(ctx, approvedEvent("sale-100")).Outcome)

	declined := approvedEvent("sale-100")
	declined.Data.Transaction.Status = wompi.StatusDeclined
	msg := "chargeback"
	declined.Data.Transaction.StatusMessage = &msg

	result := f.svc.HandleEvent(ctx, declined)
	assert.Equal(t, OutcomeReconciled, result.Outcome)

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusDeclined, trx.Status)
	assert.False(t, trx.StockAdjusted)
	assert.Equal(t, 10, prod.Stock)
	require.NotNil(t, trx.FailureReason)
	assert.Equal(t, "chargeback", *trx.FailureReason)
}

func TestHandleEventDeclineWithoutPriorApprovalDoesNotRestock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	declined := approvedEvent("sale-100")
	declined.Data.Transaction.Status = wompi.StatusDeclined

	result := f.svc.HandleEvent(context.Background(), declined)
	assert.Equal(t, OutcomeReconciled, result.Outcome)

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusDeclined, trx.Status)
	assert.Equal(t, 10, prod.Stock, "nothing was reserved, nothing to return")
	assert.False(t, trx.StockAdjusted)
}

func TestHandleEventVoidedMapsToFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	voided := approvedEvent("sale-100")
	voided.Data.Transaction.Status = wompi.StatusVoided

	result := f.svc.HandleEvent(context.Background(), voided)
	assert.Equal(t, OutcomeReconciled, result.Outcome)

	trx, _ := f.reload(t)
	assert.Equal(t, enums.TransactionStatusFailed, trx.Status)
}

func TestHandleEventSynthesizesUnknownReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	result := f.svc.HandleEvent(context.Background(), approvedEvent("missing-ref"))
	assert.Equal(t, OutcomeReconciled, result.Outcome)
	assert.Equal(t, enums.TransactionStatusPending, result.From)
	assert.Equal(t, enums.TransactionStatusApproved, result.To)
	assert.NoError(t, result.Err)

	var trx models.Transaction
	require.NoError(t, f.db.First(&trx, "reference = ?", "missing-ref").Error)
	assert.Equal(t, enums.TransactionStatusApproved, trx.Status)
	assert.Equal(t, models.PlaceholderCustomerID, trx.CustomerID)
	assert.Equal(t, models.PlaceholderProductID, trx.ProductID)
	assert.True(t, trx.Amount.Equal(decimal.NewFromInt(435000)))
	require.NotNil(t, trx.WompiTransactionID)
	assert.Equal(t, "wmp-100", *trx.WompiTransactionID)
	assert.False(t, trx.StockAdjusted, "placeholder product has no stock to reserve")
}

func TestHandleEventCreationPingWithoutAmountIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	ping := approvedEvent("missing-ref")
	ping.Event = "transaction.created"
	ping.Data.Transaction.Status = wompi.StatusPending
	ping.Data.Transaction.AmountInCents = 0

	result := f.svc.HandleEvent(context.Background(), ping)
	assert.Equal(t, OutcomeNoop, result.Outcome)
	assert.NoError(t, result.Err)

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("reference = ?", "missing-ref").Count(&count).Error)
	assert.Zero(t, count, "creation pings must not synthesize a transaction")
}

func TestHandleEventResolvesByGatewayID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.Equal(t, OutcomeReconciled, f.svc.HandleEvent(ctx, approvedEvent("sale-100")).Outcome)

	// later verdicts may arrive without the merchant reference
	reversal := approvedEvent("")
	reversal.Data.Transaction.Status = wompi.StatusDeclined

	result := f.svc.HandleEvent(ctx, reversal)
	assert.Equal(t, OutcomeReconciled, result.Outcome)

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusDeclined, trx.Status)
	assert.Equal(t, 10, prod.Stock)
}

func TestHandleEventInvalidEnvelope(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	assert.Equal(t, OutcomeInvalid, f.svc.HandleEvent(context.Background(), nil).Outcome)
	assert.Equal(t, OutcomeInvalid, f.svc.HandleEvent(context.Background(), &wompi.Event{}).Outcome)
}

func TestHandleEventGuardSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	guard := &stubGuard{claimed: map[string]bool{}}
	f := newFixture(t, guard)
	ctx := context.Background()

	require.Equal(t, OutcomeReconciled, f.svc.HandleEvent(ctx, approvedEvent("sale-100")).Outcome)
	assert.Equal(t, OutcomeDuplicate, f.svc.HandleEvent(ctx, approvedEvent("sale-100")).Outcome)
}

func TestHandleEventReleasesClaimOnFailure(t *testing.T) {
	t.Parallel()

	guard := &stubGuard{claimed: map[string]bool{}}
	f := newFixture(t, guard)
	ctx := context.Background()

	// losing the history table makes the status write fail mid-transaction
	require.NoError(t, f.db.Migrator().DropTable(&models.TransactionStatusEvent{}))

	result := f.svc.HandleEvent(ctx, approvedEvent("sale-100"))
	assert.Equal(t, OutcomeError, result.Outcome)
	assert.Error(t, result.Err)
	assert.NotEmpty(t, guard.released, "failed event must release its claim for redelivery")

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusPending, trx.Status, "rollback must leave the record untouched")
	assert.Equal(t, 10, prod.Stock)
}

func TestHandleEventInsufficientStockSkipsDecrement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	// the settlement already happened upstream, so the verdict is recorded
	// even when the reservation cannot be taken
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", f.product.ID).Update("stock", 0).Error)

	result := f.svc.HandleEvent(ctx, approvedEvent("sale-100"))
	assert.Equal(t, OutcomeReconciled, result.Outcome)
	assert.NoError(t, result.Err)

	trx, prod := f.reload(t)
	assert.Equal(t, enums.TransactionStatusApproved, trx.Status)
	assert.False(t, trx.StockAdjusted)
	assert.Equal(t, 0, prod.Stock)
}

func TestHandleEventRejectsBadChecksum(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.svc.eventsKey = "events_secret"

	event := approvedEvent("sale-100")
	event.Signature = wompi.EventSig{
		Properties: []string{"transaction.id"},
		Checksum:   "deadbeef",
	}

	result := f.svc.HandleEvent(context.Background(), event)
	assert.Equal(t, OutcomeInvalid, result.Outcome)
	assert.Error(t, result.Err)
}
