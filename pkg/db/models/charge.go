package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Charge records Square payments, for both orders and store subscriptions.
type Charge struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey"`
	StoreID         uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index"`
	Type            enums.ChargeType   `gorm:"column:type;type:charge_type;not null;default:'order'"`
	OrderID         *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`
	SubscriptionID  *uuid.UUID         `gorm:"column:subscription_id;type:uuid"`
	SquarePaymentID string             `gorm:"column:square_payment_id;not null;unique"`
	SquareRefundID  *string            `gorm:"column:square_refund_id"`
	IdempotencyKey  string             `gorm:"column:idempotency_key;not null;uniqueIndex"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Currency        string             `gorm:"column:currency;not null;default:'USD'"`
	Status          enums.ChargeStatus `gorm:"column:status;type:charge_status;not null;default:'pending'"`
	Description     *string            `gorm:"column:description"`
	BilledAt        *time.Time         `gorm:"column:billed_at"`
	RefundedAt      *time.Time         `gorm:"column:refunded_at"`
	Metadata        json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
