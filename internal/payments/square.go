package payments

import (
	"context"
	"fmt"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/square"
)

// Payment states Square reports on a captured payment.
const (
	paymentStatusCompleted = "COMPLETED"
	paymentStatusApproved  = "APPROVED"
)

type squareGateway struct {
	client *square.Client
}

// NewSquareGateway adapts the Square client to the Gateway interface.
func NewSquareGateway(client *square.Client) (Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &squareGateway{client: client}, nil
}

func (g *squareGateway) Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	if params.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "charge idempotency key required")
	}
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    params.AmountCents,
		Currency:       string(params.Currency),
		LocationID:     params.LocationID,
		CustomerID:     params.CustomerID,
		SourceID:       params.SourceID,
		IdempotencyKey: params.IdempotencyKey,
		Note:           params.Note,
		ReferenceID:    params.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "square returned no payment")
	}

	result := &ChargeResult{
		PaymentID: derefString(payment.ID),
		Status:    derefString(payment.Status),
		OrderID:   derefString(payment.OrderID),
	}
	if !chargeSucceeded(result.Status) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed,
			fmt.Sprintf("payment not captured, status %s", result.Status)).WithDetails(result)
	}
	return result, nil
}

func (g *squareGateway) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	if params.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund idempotency key required")
	}
	refund, err := g.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      params.PaymentID,
		AmountCents:    params.AmountCents,
		Currency:       string(params.Currency),
		Reason:         params.Reason,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "square returned no refund")
	}
	return newRefundResult(refund), nil
}

// The SDK reports the refund id as a plain string but the status as a
// pointer; both flatten to strings on the result.
func newRefundResult(refund *sq.PaymentRefund) *RefundResult {
	return &RefundResult{
		RefundID: refund.GetID(),
		Status:   derefString(refund.GetStatus()),
	}
}

func chargeSucceeded(status string) bool {
	switch status {
	case paymentStatusCompleted, paymentStatusApproved:
		return true
	}
	return false
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
