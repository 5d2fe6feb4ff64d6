package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// OrderPaidEvent is emitted once a checkout has been charged and committed.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	StoreID     uuid.UUID `json:"store_id"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
	ChargeID    uuid.UUID `json:"charge_id"`
	PaidAt      time.Time `json:"paid_at"`
}

// OrderFulfilledEvent signals the seller marked a paid order as fulfilled.
type OrderFulfilledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	StoreID     uuid.UUID `json:"store_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

// OrderCanceledEvent is emitted for both buyer cancels and refund cancels.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	StoreID    uuid.UUID `json:"store_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	CanceledAt time.Time `json:"canceled_at"`
	Refunded   bool      `json:"refunded"`
	Reason     string    `json:"reason,omitempty"`
}

// OrderRefundedEvent carries the refund details for a canceled paid order.
type OrderRefundedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	ChargeID       uuid.UUID `json:"charge_id"`
	SquareRefundID string    `json:"square_refund_id"`
	AmountCents    int64     `json:"amount_cents"`
	RefundedAt     time.Time `json:"refunded_at"`
}

// ReservationExpiredEvent is recorded when the sweep releases stale holds.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	StoreID       uuid.UUID `json:"store_id"`
	Qty           int       `json:"qty"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// StoreCreatedEvent announces a newly registered storefront.
type StoreCreatedEvent struct {
	StoreID uuid.UUID `json:"store_id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Slug    string    `json:"slug"`
}

// StoreSuspendedEvent is emitted when billing or an admin suspends a store.
type StoreSuspendedEvent struct {
	StoreID     uuid.UUID `json:"store_id"`
	Reason      string    `json:"reason,omitempty"`
	SuspendedAt time.Time `json:"suspended_at"`
}

// SubscriptionStateChangedEvent mirrors gateway-driven subscription updates.
type SubscriptionStateChangedEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	StoreID        uuid.UUID                `json:"store_id"`
	PreviousStatus enums.SubscriptionStatus `json:"previous_status"`
	Status         enums.SubscriptionStatus `json:"status"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

// PaymentReconcileRequestedEvent flags a charge that succeeded at the gateway
// but whose compensating refund also failed, requiring manual review.
type PaymentReconcileRequestedEvent struct {
	SquarePaymentID string    `json:"square_payment_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	StoreID         uuid.UUID `json:"store_id"`
	AmountCents     int64     `json:"amount_cents"`
	IdempotencyKey  string    `json:"idempotency_key"`
	RequestedAt     time.Time `json:"requested_at"`
}
