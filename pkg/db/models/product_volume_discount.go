package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVolumeDiscount is one pricing tier: orders of MinQty or more of
// the product charge UnitPriceCents per unit instead of the base price.
type ProductVolumeDiscount struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID        uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	MinQty         int       `gorm:"column:min_qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
