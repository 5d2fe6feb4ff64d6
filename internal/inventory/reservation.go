package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
)

// ReservationRequest asks for qty units of a product to be held.
type ReservationRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// ReserveParams groups the inputs for a checkout-scoped reservation batch.
type ReserveParams struct {
	StoreID     uuid.UUID
	BuyerID     uuid.UUID
	CheckoutKey string
	ExpiresAt   time.Time
	Requests    []ReservationRequest
}

// InsufficientStockDetail reports the shortfall for one product.
type InsufficientStockDetail struct {
	ProductID    uuid.UUID `json:"product_id"`
	RequestedQty int       `json:"requested_qty"`
	AvailableQty int       `json:"available_qty"`
}

// ReserveInventory moves units from available to reserved for every request,
// all or nothing. The guarded UPDATE never lets available_qty go negative, so
// concurrent checkouts cannot oversell; the first shortfall aborts the batch
// and the caller's transaction rolls back any holds already taken.
func ReserveInventory(ctx context.Context, tx *gorm.DB, params ReserveParams) ([]models.StockReservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if len(params.Requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no reservation requests")
	}
	if params.CheckoutKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout key required")
	}
	if params.ExpiresAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation expiry required")
	}

	reservations := make([]models.StockReservation, 0, len(params.Requests))
	for _, req := range params.Requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid qty %d for product %s", req.Qty, req.ProductID))
		}

		res := tx.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("product_id = ? AND available_qty >= ?", req.ProductID, req.Qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", req.Qty),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", req.Qty),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, insufficientStockError(ctx, tx, req)
		}

		reservations = append(reservations, models.StockReservation{
			ID:          uuid.New(),
			ProductID:   req.ProductID,
			StoreID:     params.StoreID,
			BuyerID:     params.BuyerID,
			CheckoutKey: params.CheckoutKey,
			Qty:         req.Qty,
			ExpiresAt:   params.ExpiresAt,
		})
	}

	if err := tx.WithContext(ctx).Create(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func insufficientStockError(ctx context.Context, tx *gorm.DB, req ReservationRequest) error {
	detail := InsufficientStockDetail{
		ProductID:    req.ProductID,
		RequestedQty: req.Qty,
	}
	var item models.InventoryItem
	err := tx.WithContext(ctx).Where("product_id = ?", req.ProductID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product has no inventory record").WithDetails(detail)
	}
	if err == nil {
		detail.AvailableQty = item.AvailableQty
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(detail)
}
