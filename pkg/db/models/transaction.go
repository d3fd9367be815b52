package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andresmgomez/pasarela-backend/pkg/enums"
)

// Transaction is the single record of a purchase attempt. The merchant
// reference is unique; retried checkouts with the same reference merge into
// the existing row instead of inserting a duplicate.
type Transaction struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Reference          string                  `gorm:"column:reference;uniqueIndex;not null" json:"reference"`
	CustomerID         uuid.UUID               `gorm:"column:customer_id;type:uuid;not null" json:"customerId"`
	ProductID          uuid.UUID               `gorm:"column:product_id;type:uuid;not null" json:"productId"`
	Quantity           int                     `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Amount             decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency           string                  `gorm:"column:currency;not null;default:'COP'" json:"currency"`
	Status             enums.TransactionStatus `gorm:"column:status;not null;default:'PENDING'" json:"status"`
	PaymentMethod      enums.PaymentMethod     `gorm:"column:payment_method;not null;default:'CARD'" json:"paymentMethod"`
	PaymentToken       *string                 `gorm:"column:payment_token" json:"-"`
	WompiTransactionID *string                 `gorm:"column:wompi_transaction_id;index" json:"wompiTransactionId,omitempty"`
	WompiStatus        *string                 `gorm:"column:wompi_status" json:"wompiStatus,omitempty"`
	WompiResponse      json.RawMessage         `gorm:"column:wompi_response;type:jsonb" json:"-"`
	FailureReason      *string                 `gorm:"column:failure_reason" json:"failureReason,omitempty"`
	CartItems          json.RawMessage         `gorm:"column:cart_items;type:jsonb" json:"cartItems,omitempty"`
	DeliveryInfo       json.RawMessage         `gorm:"column:delivery_info;type:jsonb" json:"deliveryInfo,omitempty"`
	StockAdjusted      bool                    `gorm:"column:stock_adjusted;not null;default:false" json:"-"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Product  *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Delivery *Delivery `gorm:"foreignKey:TransactionID" json:"delivery,omitempty"`
}
