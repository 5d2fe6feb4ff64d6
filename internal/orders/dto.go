package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

// LineItemDTO is the priced snapshot of one order line.
type LineItemDTO struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	UnitPriceCents int        `json:"unit_price_cents"`
	Qty            int        `json:"qty"`
	DiscountCents  int        `json:"discount_cents"`
	TotalCents     int        `json:"total_cents"`
}

// ChargeDTO is the payment view attached to an order.
type ChargeDTO struct {
	ID              uuid.UUID  `json:"id"`
	SquarePaymentID string     `json:"square_payment_id"`
	SquareRefundID  *string    `json:"square_refund_id,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	BilledAt        *time.Time `json:"billed_at,omitempty"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`
}

// OrderDTO is the order payload returned to buyers and sellers.
type OrderDTO struct {
	ID              uuid.UUID      `json:"id"`
	OrderNumber     int64          `json:"order_number"`
	BuyerID         uuid.UUID      `json:"buyer_id"`
	StoreID         uuid.UUID      `json:"store_id"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	SubtotalCents   int            `json:"subtotal_cents"`
	DiscountsCents  int            `json:"discounts_cents"`
	TaxCents        int            `json:"tax_cents"`
	ShippingCents   int            `json:"shipping_cents"`
	TotalCents      int            `json:"total_cents"`
	PaymentMethod   string         `json:"payment_method"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	Notes           *string        `json:"notes,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	FulfilledAt     *time.Time     `json:"fulfilled_at,omitempty"`
	CanceledAt      *time.Time     `json:"canceled_at,omitempty"`
	Items           []LineItemDTO  `json:"items,omitempty"`
	Charges         []ChargeDTO    `json:"charges,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewOrderDTO maps the persisted order to its API shape.
func NewOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		StoreID:         order.StoreID,
		Currency:        order.Currency.String(),
		Status:          order.Status.String(),
		SubtotalCents:   order.SubtotalCents,
		DiscountsCents:  order.DiscountsCents,
		TaxCents:        order.TaxCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		PaymentMethod:   order.PaymentMethod.String(),
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
		PaidAt:          order.PaidAt,
		FulfilledAt:     order.FulfilledAt,
		CanceledAt:      order.CanceledAt,
		CreatedAt:       order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, LineItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			SKU:            item.SKU,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			DiscountCents:  item.DiscountCents,
			TotalCents:     item.TotalCents,
		})
	}
	for _, charge := range order.Charges {
		dto.Charges = append(dto.Charges, ChargeDTO{
			ID:              charge.ID,
			SquarePaymentID: charge.SquarePaymentID,
			SquareRefundID:  charge.SquareRefundID,
			AmountCents:     charge.AmountCents,
			Currency:        charge.Currency,
			Status:          charge.Status.String(),
			BilledAt:        charge.BilledAt,
			RefundedAt:      charge.RefundedAt,
		})
	}
	return dto
}
