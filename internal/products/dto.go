package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
)

// ProductDTO represents the catalog payload returned to clients.
type ProductDTO struct {
	ID                  uuid.UUID           `json:"id"`
	StoreID             uuid.UUID           `json:"store_id"`
	SKU                 string              `json:"sku"`
	Name                string              `json:"name"`
	Description         *string             `json:"description,omitempty"`
	Brand               *string             `json:"brand,omitempty"`
	Category            string              `json:"category"`
	Images              []string            `json:"images"`
	Status              string              `json:"status"`
	PriceCents          int                 `json:"price_cents"`
	CompareAtPriceCents *int                `json:"compare_at_price_cents,omitempty"`
	Currency            string              `json:"currency"`
	MaxPerOrder         int                 `json:"max_per_order"`
	Inventory           *InventoryDTO       `json:"inventory,omitempty"`
	VolumeDiscounts     []VolumeDiscountDTO `json:"volume_discounts,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// InventoryDTO exposes inventory counts.
type InventoryDTO struct {
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VolumeDiscountDTO represents a tiered unit price.
type VolumeDiscountDTO struct {
	ID             uuid.UUID `json:"id"`
	MinQty         int       `json:"min_qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	dto := &ProductDTO{
		ID:                  product.ID,
		StoreID:             product.StoreID,
		SKU:                 product.SKU,
		Name:                product.Name,
		Description:         product.Description,
		Brand:               product.Brand,
		Category:            product.Category,
		Images:              append([]string{}, product.Images...),
		Status:              product.Status.String(),
		PriceCents:          product.PriceCents,
		CompareAtPriceCents: product.CompareAtPriceCents,
		Currency:            product.Currency.String(),
		MaxPerOrder:         product.MaxPerOrder,
		CreatedAt:           product.CreatedAt,
		UpdatedAt:           product.UpdatedAt,
	}
	if product.Inventory != nil {
		dto.Inventory = &InventoryDTO{
			AvailableQty: product.Inventory.AvailableQty,
			ReservedQty:  product.Inventory.ReservedQty,
			UpdatedAt:    product.Inventory.UpdatedAt,
		}
	}
	for _, tier := range product.VolumeDiscounts {
		dto.VolumeDiscounts = append(dto.VolumeDiscounts, VolumeDiscountDTO{
			ID:             tier.ID,
			MinQty:         tier.MinQty,
			UnitPriceCents: tier.UnitPriceCents,
			CreatedAt:      tier.CreatedAt,
		})
	}
	return dto
}
