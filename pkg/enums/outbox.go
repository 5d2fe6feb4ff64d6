package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateStore        OutboxAggregateType = "store"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateReservation  OutboxAggregateType = "reservation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateStore,
	AggregateSubscription,
	AggregateReservation,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderPaid                 OutboxEventType = "order_paid"
	EventOrderFulfilled            OutboxEventType = "order_fulfilled"
	EventOrderCanceled             OutboxEventType = "order_canceled"
	EventOrderRefunded             OutboxEventType = "order_refunded"
	EventReservationExpired        OutboxEventType = "reservation_expired"
	EventStoreCreated              OutboxEventType = "store_created"
	EventStoreSuspended            OutboxEventType = "store_suspended"
	EventSubscriptionStateChanged  OutboxEventType = "subscription_state_changed"
	EventPaymentReconcileRequested OutboxEventType = "payment_reconcile_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderFulfilled,
	EventOrderCanceled,
	EventOrderRefunded,
	EventReservationExpired,
	EventStoreCreated,
	EventStoreSuspended,
	EventSubscriptionStateChanged,
	EventPaymentReconcileRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
