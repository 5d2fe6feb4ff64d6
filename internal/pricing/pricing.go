package pricing

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
)

// LineQuote is the immutable price snapshot for one order line. Catalog edits
// after checkout never touch it.
type LineQuote struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	DiscountCents  int       `json:"discount_cents"`
	TotalCents     int       `json:"total_cents"`
}

// Quote aggregates the priced lines for a single-store checkout.
type Quote struct {
	StoreID       uuid.UUID      `json:"store_id"`
	Currency      enums.Currency `json:"currency"`
	Lines         []LineQuote    `json:"lines"`
	SubtotalCents int            `json:"subtotal_cents"`
	DiscountCents int            `json:"discount_cents"`
	TaxCents      int            `json:"tax_cents"`
	ShippingCents int            `json:"shipping_cents"`
	TotalCents    int            `json:"total_cents"`
}

// PriceLine snapshots one product at the requested quantity. The volume tier
// with the highest min_qty not exceeding qty wins; otherwise the list price applies.
func PriceLine(product *models.Product, qty int) (LineQuote, error) {
	if product == nil {
		return LineQuote{}, pkgerrors.New(pkgerrors.CodeInternal, "product required")
	}
	if qty <= 0 {
		return LineQuote{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid qty %d for product %s", qty, product.ID))
	}
	if !product.Status.Purchasable() {
		return LineQuote{}, pkgerrors.New(pkgerrors.CodeProductUnavailable,
			fmt.Sprintf("product %s is not purchasable", product.ID))
	}
	if product.MaxPerOrder > 0 && qty > product.MaxPerOrder {
		return LineQuote{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("qty %d exceeds per-order limit %d", qty, product.MaxPerOrder))
	}

	unitPrice := product.PriceCents
	if tier := bestTier(product.VolumeDiscounts, qty); tier != nil {
		unitPrice = tier.UnitPriceCents
	}

	listSubtotal := product.PriceCents * qty
	total := unitPrice * qty
	discount := listSubtotal - total
	if discount < 0 {
		discount = 0
	}

	return LineQuote{
		ProductID:      product.ID,
		Name:           product.Name,
		SKU:            product.SKU,
		UnitPriceCents: unitPrice,
		Qty:            qty,
		DiscountCents:  discount,
		TotalCents:     total,
	}, nil
}

func bestTier(tiers []models.ProductVolumeDiscount, qty int) *models.ProductVolumeDiscount {
	if len(tiers) == 0 {
		return nil
	}
	sorted := make([]models.ProductVolumeDiscount, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinQty < sorted[j].MinQty })

	var match *models.ProductVolumeDiscount
	for i := range sorted {
		if sorted[i].MinQty <= qty {
			match = &sorted[i]
		}
	}
	return match
}
