package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Product represents the canonical storefront listing.
type Product struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	StoreID             uuid.UUID               `gorm:"column:store_id;type:uuid;not null;index"`
	SKU                 string                  `gorm:"column:sku;not null"`
	Name                string                  `gorm:"column:name;not null"`
	Description         *string                 `gorm:"column:description"`
	Brand               *string                 `gorm:"column:brand"`
	Category            string                  `gorm:"column:category;not null"`
	Images              pq.StringArray          `gorm:"column:images;type:text[];not null"`
	Status              enums.ProductStatus     `gorm:"column:status;type:product_status;not null;default:'draft'"`
	PriceCents          int                     `gorm:"column:price_cents;not null"`
	CompareAtPriceCents *int                    `gorm:"column:compare_at_price_cents"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null;default:'USD'"`
	MaxPerOrder         int                     `gorm:"column:max_per_order;not null;default:0"`
	Inventory           *InventoryItem          `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	VolumeDiscounts     []ProductVolumeDiscount `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
