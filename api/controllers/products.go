package controllers

import (
	"net/http"
	"strings"

	"github.com/tecnoshop/storefront-backend/api/responses"
	"github.com/tecnoshop/storefront-backend/api/validators"
	product "github.com/tecnoshop/storefront-backend/internal/products"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
)

type volumeDiscountRequest struct {
	MinQty         int `json:"min_qty" validate:"required,min=2"`
	UnitPriceCents int `json:"unit_price_cents" validate:"required,gt=0"`
}

type createProductRequest struct {
	SKU                 string                  `json:"sku" validate:"required,min=1,max=64"`
	Name                string                  `json:"name" validate:"required,min=2,max=200"`
	Description         *string                 `json:"description,omitempty"`
	Brand               *string                 `json:"brand,omitempty"`
	Category            string                  `json:"category" validate:"required"`
	Images              []string                `json:"images,omitempty"`
	PriceCents          int                     `json:"price_cents" validate:"required,gt=0"`
	CompareAtPriceCents *int                    `json:"compare_at_price_cents,omitempty"`
	Currency            string                  `json:"currency" validate:"omitempty,oneof=USD MXN"`
	MaxPerOrder         int                     `json:"max_per_order,omitempty"`
	AvailableQty        int                     `json:"available_qty" validate:"min=0"`
	VolumeDiscounts     []volumeDiscountRequest `json:"volume_discounts,omitempty"`
	Publish             bool                    `json:"publish,omitempty"`
}

type updateProductRequest struct {
	SKU                 *string                  `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Name                *string                  `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Description         *string                  `json:"description,omitempty"`
	Brand               *string                  `json:"brand,omitempty"`
	Category            *string                  `json:"category,omitempty"`
	Images              *[]string                `json:"images,omitempty"`
	PriceCents          *int                     `json:"price_cents,omitempty" validate:"omitempty,gt=0"`
	CompareAtPriceCents *int                     `json:"compare_at_price_cents,omitempty"`
	MaxPerOrder         *int                     `json:"max_per_order,omitempty"`
	VolumeDiscounts     *[]volumeDiscountRequest `json:"volume_discounts,omitempty"`
}

type productStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active archived"`
}

// SellerProductCreate adds a product to the seller's catalog.
func SellerProductCreate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.UUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency := enums.CurrencyUSD
		if body.Currency != "" {
			parsed, err := enums.ParseCurrency(body.Currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency"))
				return
			}
			currency = parsed
		}

		dto, err := svc.CreateProduct(r.Context(), userID, storeID, product.CreateProductInput{
			SKU:                 body.SKU,
			Name:                body.Name,
			Description:         body.Description,
			Brand:               body.Brand,
			Category:            body.Category,
			Images:              body.Images,
			PriceCents:          body.PriceCents,
			CompareAtPriceCents: body.CompareAtPriceCents,
			Currency:            currency,
			MaxPerOrder:         body.MaxPerOrder,
			AvailableQty:        body.AvailableQty,
			VolumeDiscounts:     toDiscountInputs(body.VolumeDiscounts),
			Publish:             body.Publish,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func SellerProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.UUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.UUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := product.UpdateProductInput{
			SKU:                 body.SKU,
			Name:                body.Name,
			Description:         body.Description,
			Brand:               body.Brand,
			Category:            body.Category,
			Images:              body.Images,
			PriceCents:          body.PriceCents,
			CompareAtPriceCents: body.CompareAtPriceCents,
			MaxPerOrder:         body.MaxPerOrder,
		}
		if body.VolumeDiscounts != nil {
			tiers := toDiscountInputs(*body.VolumeDiscounts)
			input.VolumeDiscounts = &tiers
		}

		dto, err := svc.UpdateProduct(r.Context(), userID, storeID, productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

// SellerProductSetStatus moves a product between draft, active, and archived.
func SellerProductSetStatus(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.UUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.UUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body productStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseProductStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported product status"))
			return
		}

		dto, err := svc.SetStatus(r.Context(), userID, storeID, productID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

func ProductGet(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.UUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto)
	}
}

// StoreProductsList is the public catalog view: only active products.
func StoreProductsList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		storeID, err := validators.UUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, params, err := catalogFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		active := enums.ProductStatusActive
		filters.Status = &active

		result, err := svc.ListProducts(r.Context(), product.ListInput{
			StoreID:    storeID,
			Filters:    filters,
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func toDiscountInputs(tiers []volumeDiscountRequest) []product.VolumeDiscountInput {
	if len(tiers) == 0 {
		return nil
	}
	out := make([]product.VolumeDiscountInput, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, product.VolumeDiscountInput{
			MinQty:         tier.MinQty,
			UnitPriceCents: tier.UnitPriceCents,
		})
	}
	return out
}

func catalogFilters(r *http.Request) (product.ListFilters, pagination.Params, error) {
	params, err := validators.ParsePagination(r)
	if err != nil {
		return product.ListFilters{}, pagination.Params{}, err
	}

	filters := product.ListFilters{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filters.Category = &category
	}
	if min, err := validators.ParseQueryInt(r, "price_min_cents", -1, 0, 1<<30); err != nil {
		return product.ListFilters{}, pagination.Params{}, err
	} else if min >= 0 {
		filters.PriceMinCents = &min
	}
	if max, err := validators.ParseQueryInt(r, "price_max_cents", -1, 0, 1<<30); err != nil {
		return product.ListFilters{}, pagination.Params{}, err
	} else if max >= 0 {
		filters.PriceMaxCents = &max
	}
	return filters, params, nil
}
