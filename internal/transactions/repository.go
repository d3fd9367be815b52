package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andresmgomez/pasarela-backend/pkg/db/models"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
)

// Repository wires transaction persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Insert attempts to create the row, backing off silently when another
// request already claimed the reference. Returns true when this call
// inserted the row.
func (r *Repository) Insert(ctx context.Context, trx *models.Transaction) (bool, error) {
	if trx.ID == uuid.Nil {
		trx.ID = uuid.New()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).
		Create(trx)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByReference loads a transaction by merchant reference. With forUpdate
// the row is locked for the duration of the surrounding transaction; the
// lock clause is skipped on dialects that do not support it.
func (r *Repository) FindByReference(ctx context.Context, reference string, forUpdate bool) (*models.Transaction, error) {
	query := r.db.WithContext(ctx)
	if forUpdate && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var trx models.Transaction
	if err := query.First(&trx, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &trx, nil
}

// FindByID loads a transaction by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var trx models.Transaction
	if err := r.db.WithContext(ctx).First(&trx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &trx, nil
}

// FindByGatewayID loads a transaction by the gateway's transaction id.
func (r *Repository) FindByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error) {
	var trx models.Transaction
	if err := r.db.WithContext(ctx).First(&trx, "wompi_transaction_id = ?", gatewayID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &trx, nil
}

// Save persists all fields of the transaction row.
func (r *Repository) Save(ctx context.Context, trx *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Save(trx).Error; err != nil {
		return nil, err
	}
	return trx, nil
}

// AppendStatusEvent writes a history row for a status change.
func (r *Repository) AppendStatusEvent(ctx context.Context, event *models.TransactionStatusEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListStatusEvents returns the status history, oldest first.
func (r *Repository) ListStatusEvents(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionStatusEvent, error) {
	var events []models.TransactionStatusEvent
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CreateDelivery inserts the shipping row for a transaction.
func (r *Repository) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(delivery).Error
}

// FindDelivery loads the shipping row for a transaction, if any.
func (r *Repository) FindDelivery(ctx context.Context, transactionID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).First(&delivery, "transaction_id = ?", transactionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, err
	}
	return &delivery, nil
}
