package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// StockReservation holds units against an inventory item until the checkout
// that created it either commits or releases them.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	StoreID     uuid.UUID               `gorm:"column:store_id;type:uuid;not null"`
	BuyerID     uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	CheckoutKey string                  `gorm:"column:checkout_key;not null;index"`
	Qty         int                     `gorm:"column:qty;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'active'"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index"`
	CommittedAt *time.Time              `gorm:"column:committed_at"`
	ReleasedAt  *time.Time              `gorm:"column:released_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
