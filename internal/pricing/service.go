package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
)

type productLoader interface {
	FindByIDsForStore(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]models.Product, error)
}

// LineRequest names a product and quantity to price.
type LineRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// Service prices checkout lines from the live catalog.
type Service interface {
	QuoteLines(ctx context.Context, storeID uuid.UUID, requests []LineRequest) (*Quote, error)
}

type service struct {
	products productLoader
}

// NewService wires the pricing service.
func NewService(products productLoader) (Service, error) {
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{products: products}, nil
}

// QuoteLines snapshots current catalog prices for the requested lines. Every
// product must belong to the store and be purchasable; requests naming the
// same product twice are rejected so reservations stay one-to-one with lines.
func (s *service) QuoteLines(ctx context.Context, storeID uuid.UUID, requests []LineRequest) (*Quote, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no lines to price")
	}

	ids := make([]uuid.UUID, 0, len(requests))
	seen := make(map[uuid.UUID]struct{}, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if _, dup := seen[req.ProductID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("duplicate product %s in checkout lines", req.ProductID))
		}
		seen[req.ProductID] = struct{}{}
		ids = append(ids, req.ProductID)
	}

	products, err := s.products.FindByIDsForStore(ctx, storeID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	quote := &Quote{
		StoreID: storeID,
		Lines:   make([]LineQuote, 0, len(requests)),
	}
	for _, req := range requests {
		product, ok := byID[req.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeProductUnavailable,
				fmt.Sprintf("product %s not found in store", req.ProductID))
		}
		if quote.Currency == "" {
			quote.Currency = product.Currency
		} else if quote.Currency != product.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "mixed currencies in checkout lines")
		}

		line, err := PriceLine(product, req.Qty)
		if err != nil {
			return nil, err
		}
		quote.Lines = append(quote.Lines, line)
		quote.SubtotalCents += product.PriceCents * req.Qty
		quote.DiscountCents += line.DiscountCents
		quote.TotalCents += line.TotalCents
	}
	quote.TotalCents += quote.TaxCents + quote.ShippingCents

	return quote, nil
}
