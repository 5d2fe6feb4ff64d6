package payments

import (
	"context"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// ChargeParams carries everything needed to capture a payment.
type ChargeParams struct {
	AmountCents    int64
	Currency       enums.Currency
	CustomerID     string
	SourceID       string
	LocationID     string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// ChargeResult is the gateway's view of a captured payment.
type ChargeResult struct {
	PaymentID string
	Status    string
	OrderID   string
}

// RefundParams carries the inputs to reverse a captured payment.
type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       enums.Currency
	Reason         string
	IdempotencyKey string
}

// RefundResult is the gateway's view of a refund.
type RefundResult struct {
	RefundID string
	Status   string
}

// Gateway abstracts the payment processor. Both operations accept caller
// idempotency keys so retries after a timeout cannot double-charge or
// double-refund.
type Gateway interface {
	Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error)
	Refund(ctx context.Context, params RefundParams) (*RefundResult, error)
}
