package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery holds the shipping address captured at checkout. One row per
// transaction.
type Delivery struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;uniqueIndex;not null" json:"transactionId"`
	Address       string    `gorm:"column:address;not null" json:"address"`
	City          string    `gorm:"column:city;not null" json:"city"`
	Region        string    `gorm:"column:region" json:"region"`
	Country       string    `gorm:"column:country;not null;default:'CO'" json:"country"`
	PostalCode    *string   `gorm:"column:postal_code" json:"postalCode,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
