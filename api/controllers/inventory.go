package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/api/responses"
	"github.com/tecnoshop/storefront-backend/api/validators"
	"github.com/tecnoshop/storefront-backend/internal/inventory"
	product "github.com/tecnoshop/storefront-backend/internal/products"
	"github.com/tecnoshop/storefront-backend/internal/stores"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
)

type setStockRequest struct {
	AvailableQty int `json:"available_qty" validate:"min=0"`
}

type stockResponse struct {
	ProductID    uuid.UUID `json:"product_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SellerStockSet overwrites the available quantity for one product.
// Reserved stock is never touched here; live checkouts keep their holds.
func SellerStockSet(inv inventory.Service, products product.Service, guard stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil || products == nil || guard == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, err := sellerProductAccess(r, products, guard)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setStockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := inv.SetStock(r.Context(), productID, body.AvailableQty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newStockResponse(item))
	}
}

func SellerStockGet(inv inventory.Service, products product.Service, guard stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil || products == nil || guard == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, err := sellerProductAccess(r, products, guard)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := inv.GetLevels(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newStockResponse(item))
	}
}

// sellerProductAccess verifies the caller manages the store that owns the
// product in the path before any stock mutation.
func sellerProductAccess(r *http.Request, products product.Service, guard stores.Service) (uuid.UUID, error) {
	userID, err := actorID(r)
	if err != nil {
		return uuid.Nil, err
	}
	storeID, err := validators.UUIDParam(r, "storeId")
	if err != nil {
		return uuid.Nil, err
	}
	productID, err := validators.UUIDParam(r, "productId")
	if err != nil {
		return uuid.Nil, err
	}

	if err := guard.EnsureSellerAccess(r.Context(), userID, storeID); err != nil {
		return uuid.Nil, err
	}

	dto, err := products.GetProduct(r.Context(), productID)
	if err != nil {
		return uuid.Nil, err
	}
	if dto.StoreID != storeID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found in store")
	}
	return productID, nil
}

func newStockResponse(item *models.InventoryItem) stockResponse {
	if item == nil {
		return stockResponse{}
	}
	return stockResponse{
		ProductID:    item.ProductID,
		AvailableQty: item.AvailableQty,
		ReservedQty:  item.ReservedQty,
		UpdatedAt:    item.UpdatedAt,
	}
}
