package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock ledger row for one product. available_qty is
// what new checkouts can take; reserved_qty is held by in-flight checkouts
// until committed or released. Mutated only via conditional UPDATEs.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
