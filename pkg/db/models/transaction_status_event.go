package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/andresmgomez/pasarela-backend/pkg/enums"
)

// TransactionStatusEvent is an append-only history row written on every
// status change, including the source that triggered it (checkout, webhook,
// status query repair).
type TransactionStatusEvent struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID               `gorm:"column:transaction_id;type:uuid;index;not null" json:"transactionId"`
	Status        enums.TransactionStatus `gorm:"column:status;not null" json:"status"`
	Source        string                  `gorm:"column:source;not null" json:"source"`
	Detail        *string                 `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
