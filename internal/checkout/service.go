package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/config"
	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/metrics"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/outbox/payloads"
	"github.com/tecnoshop/storefront-backend/pkg/types"

	"github.com/tecnoshop/storefront-backend/internal/inventory"
	"github.com/tecnoshop/storefront-backend/internal/orders"
	"github.com/tecnoshop/storefront-backend/internal/payments"
	"github.com/tecnoshop/storefront-backend/internal/pricing"
)

const (
	outcomeSuccess           = "success"
	outcomeReplayed          = "replayed"
	outcomeRejected          = "rejected"
	outcomePaymentFailed     = "payment_failed"
	outcomePersistenceFailed = "persistence_failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeGate interface {
	EnsureCheckoutReady(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
}

type pricer interface {
	QuoteLines(ctx context.Context, storeID uuid.UUID, requests []pricing.LineRequest) (*pricing.Quote, error)
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, params inventory.ReserveParams) ([]models.StockReservation, error)
	CommitCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error)
	ReleaseCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error)
}

type orderWriter interface {
	CreatePaid(ctx context.Context, tx *gorm.DB, input orders.CreatePaidInput) (*models.Order, error)
}

type orderLookup interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Input is one checkout request against a single seller store.
type Input struct {
	BuyerID         uuid.UUID
	StoreID         uuid.UUID
	Lines           []Line
	PaymentMethod   enums.PaymentMethod
	SourceID        string
	ShippingAddress *types.Address
	Notes           *string
	ClientNonce     string
}

// Service runs the reserve, price, charge, persist sequence.
type Service interface {
	Execute(ctx context.Context, input Input) (*models.Order, error)
}

type service struct {
	cfg       config.CheckoutConfig
	tx        txRunner
	stores    storeGate
	pricing   pricer
	inventory stockLedger
	orders    orderWriter
	lookup    orderLookup
	gateway   payments.Gateway
	pub       outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService builds the checkout orchestrator. Metrics may be nil; every other
// dependency is required.
func NewService(
	cfg config.CheckoutConfig,
	tx txRunner,
	stores storeGate,
	pricer pricer,
	ledger stockLedger,
	orderSvc orderWriter,
	lookup orderLookup,
	gateway payments.Gateway,
	pub outboxPublisher,
	logg *logger.Logger,
	checkoutMetrics *metrics.CheckoutMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store service required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if pub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		cfg:       cfg,
		tx:        tx,
		stores:    stores,
		pricing:   pricer,
		inventory: ledger,
		orders:    orderSvc,
		lookup:    lookup,
		gateway:   gateway,
		pub:       pub,
		logg:      logg,
		metrics:   checkoutMetrics,
	}, nil
}

// Execute runs one checkout:
//
//  1. Replay check on the derived idempotency key.
//  2. Tx A: price from the catalog and reserve every line, or roll back whole.
//  3. Charge the gateway under a bounded timeout, keyed on the checkout.
//  4. Tx B: commit the holds and persist the paid order. Once the charge has
//     been issued this phase no longer honors caller cancellation.
//  5. If Tx B fails because a concurrent attempt already finalized the same
//     checkout, return that order; the gateway deduplicated the charge, so
//     there is nothing to refund. Any other Tx B failure refunds, and if the
//     refund also fails a reconciliation request is recorded with full
//     context.
func (s *service) Execute(ctx context.Context, input Input) (*models.Order, error) {
	start := time.Now()
	if err := validateInput(input); err != nil {
		return nil, err
	}
	key := DeriveIdempotencyKey(input.BuyerID, input.Lines, input.ClientNonce)
	// Reservations are scoped per attempt: two requests racing on the same
	// checkout key must not commit each other's holds.
	holdKey := key + ":" + uuid.NewString()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"checkout_key": key,
		"buyer_id":     input.BuyerID.String(),
		"store_id":     input.StoreID.String(),
	})

	if existing, err := s.lookup.FindByIdempotencyKey(ctx, key); err == nil {
		s.logg.Info(ctx, "checkout replayed from existing order")
		s.observe(outcomeReplayed, start)
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
	}

	store, err := s.stores.EnsureCheckoutReady(ctx, input.StoreID)
	if err != nil {
		s.observe(outcomeRejected, start)
		return nil, err
	}
	if store.SquareLocationID == nil || *store.SquareLocationID == "" {
		s.observe(outcomeRejected, start)
		return nil, pkgerrors.New(pkgerrors.CodeAccountMisconfigured, "store has no payment location configured")
	}

	quote, err := s.priceAndReserve(ctx, input, holdKey)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			s.metrics.IncInsufficientStock()
		}
		s.observe(outcomeRejected, start)
		return nil, err
	}

	// Last point where caller cancellation is honored.
	if err := ctx.Err(); err != nil {
		s.releaseHolds(context.WithoutCancel(ctx), holdKey)
		s.observe(outcomeRejected, start)
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout canceled before charge")
	}

	charge, err := s.charge(ctx, input, store, quote, key)
	if err != nil {
		s.releaseHolds(context.WithoutCancel(ctx), holdKey)
		s.observe(outcomePaymentFailed, start)
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	var order *models.Order
	err = s.tx.WithTx(persistCtx, func(tx *gorm.DB) error {
		if _, err := s.inventory.CommitCheckout(persistCtx, tx, holdKey); err != nil {
			return err
		}
		created, err := s.orders.CreatePaid(persistCtx, tx, buildOrderInput(input, quote, charge, key))
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		// A unique hit on the order's idempotency key means a concurrent
		// attempt already finalized this checkout. The charge belongs to that
		// order (the gateway deduplicated it), so refunding here would claw
		// back a legitimate payment. Drop this attempt's holds and replay.
		if db.IsUniqueViolation(err, "idempotency_key") {
			s.releaseHolds(persistCtx, holdKey)
			existing, lookupErr := s.lookup.FindByIdempotencyKey(persistCtx, key)
			if lookupErr != nil {
				s.observe(outcomePersistenceFailed, start)
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "load order finalized by concurrent attempt")
			}
			s.logg.Info(persistCtx, "checkout finalized by concurrent attempt; replaying existing order")
			s.observe(outcomeReplayed, start)
			return existing, nil
		}
		s.compensate(persistCtx, input, quote, charge, key, holdKey)
		s.observe(outcomePersistenceFailed, start)
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderPersistence, err, "persist order after charge")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout completed")
	s.observe(outcomeSuccess, start)
	return order, nil
}

// priceAndReserve is Tx A: a catalog-priced quote plus an all-or-nothing
// reservation of every line under the checkout key.
func (s *service) priceAndReserve(ctx context.Context, input Input, key string) (*pricing.Quote, error) {
	requests := make([]pricing.LineRequest, len(input.Lines))
	reserves := make([]inventory.ReservationRequest, len(input.Lines))
	for i, line := range input.Lines {
		requests[i] = pricing.LineRequest{ProductID: line.ProductID, Qty: line.Qty}
		reserves[i] = inventory.ReservationRequest{ProductID: line.ProductID, Qty: line.Qty}
	}

	var quote *pricing.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		q, err := s.pricing.QuoteLines(ctx, input.StoreID, requests)
		if err != nil {
			return err
		}
		quote = q
		_, err = s.inventory.Reserve(ctx, tx, inventory.ReserveParams{
			StoreID:     input.StoreID,
			BuyerID:     input.BuyerID,
			CheckoutKey: key,
			ExpiresAt:   time.Now().UTC().Add(s.cfg.ReservationTTL),
			Requests:    reserves,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *service) charge(ctx context.Context, input Input, store *models.Store, quote *pricing.Quote, key string) (*payments.ChargeResult, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancel()

	params := payments.ChargeParams{
		AmountCents:    int64(quote.TotalCents),
		Currency:       quote.Currency,
		SourceID:       input.SourceID,
		LocationID:     *store.SquareLocationID,
		IdempotencyKey: key,
		ReferenceID:    key,
		Note:           fmt.Sprintf("order for store %s", store.Slug),
	}
	if store.SquareCustomerID != nil {
		params.CustomerID = *store.SquareCustomerID
	}
	return s.gateway.Charge(chargeCtx, params)
}

// compensate reverses a successful charge whose order could not be persisted.
// A refund failure here is the one state the system cannot repair on its own,
// so it is logged with full context and queued for manual reconciliation.
func (s *service) compensate(ctx context.Context, input Input, quote *pricing.Quote, charge *payments.ChargeResult, key, holdKey string) {
	s.metrics.IncCompensatingRefund()

	_, err := s.gateway.Refund(ctx, payments.RefundParams{
		PaymentID:      charge.PaymentID,
		AmountCents:    int64(quote.TotalCents),
		Currency:       quote.Currency,
		Reason:         "order persistence failed",
		IdempotencyKey: key + ":refund",
	})
	if err != nil {
		s.metrics.IncReconciliationRequired()
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"square_payment_id": charge.PaymentID,
			"amount_cents":      quote.TotalCents,
			"line_count":        len(input.Lines),
		}), "charge succeeded but refund failed; manual reconciliation required", err)
		s.recordReconcileRequest(ctx, input, quote, charge, key)
	}

	s.releaseHolds(ctx, holdKey)
}

// recordReconcileRequest is best-effort: the preceding error log already
// carries everything an operator needs if this write fails too.
func (s *service) recordReconcileRequest(ctx context.Context, input Input, quote *pricing.Quote, charge *payments.ChargeResult, key string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReconcileRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data: payloads.PaymentReconcileRequestedEvent{
				SquarePaymentID: charge.PaymentID,
				BuyerID:         input.BuyerID,
				StoreID:         input.StoreID,
				AmountCents:     int64(quote.TotalCents),
				IdempotencyKey:  key,
				RequestedAt:     time.Now().UTC(),
			},
			Version: 1,
		})
	})
	if err != nil {
		s.logg.Error(ctx, "failed to queue payment reconciliation request", err)
	}
}

// releaseHolds returns the checkout's active reservations. Failures are
// logged, not fatal: the reservation sweep is the backstop.
func (s *service) releaseHolds(ctx context.Context, key string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.inventory.ReleaseCheckout(ctx, tx, key)
		return err
	})
	if err != nil {
		s.logg.Error(ctx, "failed to release checkout reservations", err)
	}
}

func (s *service) observe(outcome string, start time.Time) {
	s.metrics.ObserveAttempt(outcome, time.Since(start))
}

func buildOrderInput(input Input, quote *pricing.Quote, charge *payments.ChargeResult, key string) orders.CreatePaidInput {
	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = enums.PaymentMethodCard
	}
	out := orders.CreatePaidInput{
		BuyerID:         input.BuyerID,
		StoreID:         input.StoreID,
		Currency:        quote.Currency,
		PaymentMethod:   paymentMethod,
		IdempotencyKey:  key,
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		SubtotalCents:   quote.SubtotalCents,
		DiscountsCents:  quote.DiscountCents,
		TaxCents:        quote.TaxCents,
		ShippingCents:   quote.ShippingCents,
		TotalCents:      quote.TotalCents,
		Charge: orders.ChargeSnapshot{
			SquarePaymentID: charge.PaymentID,
			IdempotencyKey:  key,
			AmountCents:     int64(quote.TotalCents),
		},
		PaidAt: time.Now().UTC(),
	}
	for _, line := range quote.Lines {
		out.Lines = append(out.Lines, orders.LineSnapshot{
			ProductID:      line.ProductID,
			Name:           line.Name,
			SKU:            line.SKU,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			DiscountCents:  line.DiscountCents,
			TotalCents:     line.TotalCents,
		})
	}
	return out
}

func validateInput(input Input) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one line")
	}
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil || line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "each line needs a product and a positive qty")
		}
	}
	if input.SourceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	if input.ClientNonce == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client nonce required")
	}
	return nil
}
