package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/api/responses"
	"github.com/tecnoshop/storefront-backend/api/validators"
	"github.com/tecnoshop/storefront-backend/internal/checkout"
	"github.com/tecnoshop/storefront-backend/internal/orders"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

type checkoutLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type checkoutRequest struct {
	StoreID         string                `json:"store_id" validate:"required,uuid4"`
	Lines           []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod   string                `json:"payment_method" validate:"required,oneof=card store_credit"`
	SourceID        string                `json:"source_id" validate:"required"`
	ShippingAddress *types.Address        `json:"shipping_address,omitempty"`
	Notes           *string               `json:"notes,omitempty"`
	ClientNonce     string                `json:"client_nonce" validate:"required,min=8,max=128"`
}

// CheckoutCreate runs the full purchase flow and returns the paid order.
func CheckoutCreate(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		storeID, err := uuid.Parse(body.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid store_id"))
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method"))
			return
		}

		lines := make([]checkout.Line, 0, len(body.Lines))
		for _, line := range body.Lines {
			productID, err := uuid.Parse(line.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product_id in lines"))
				return
			}
			lines = append(lines, checkout.Line{ProductID: productID, Qty: line.Qty})
		}

		order, err := svc.Execute(r.Context(), checkout.Input{
			BuyerID:         buyerID,
			StoreID:         storeID,
			Lines:           lines,
			PaymentMethod:   method,
			SourceID:        body.SourceID,
			ShippingAddress: body.ShippingAddress,
			Notes:           body.Notes,
			ClientNonce:     body.ClientNonce,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderDTO(order))
	}
}
