package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

// Order represents the canonical customer order. Orders are never hard-deleted;
// cancellation is a state transition.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     int64               `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID         uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	StoreID         uuid.UUID           `gorm:"column:store_id;type:uuid;not null;index"`
	Currency        enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	DiscountsCents  int                 `gorm:"column:discounts_cents;not null;default:0"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'card'"`
	IdempotencyKey  string              `gorm:"column:idempotency_key;not null;uniqueIndex"`
	ShippingAddress *types.Address      `gorm:"column:shipping_address;type:address_t"`
	Notes           *string             `gorm:"column:notes"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	FulfilledAt     *time.Time          `gorm:"column:fulfilled_at"`
	CanceledAt      *time.Time          `gorm:"column:canceled_at"`
	Items           []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Charges         []Charge            `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
