package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/outbox/payloads"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
	"github.com/tecnoshop/storefront-backend/pkg/types"

	"github.com/tecnoshop/storefront-backend/internal/payments"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type storeGuard interface {
	EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error
}

// StockReturner puts a canceled order's committed units back on the shelf.
type StockReturner interface {
	Return(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// LineSnapshot is one priced line captured at charge time.
type LineSnapshot struct {
	ProductID      uuid.UUID
	Name           string
	SKU            string
	UnitPriceCents int
	Qty            int
	DiscountCents  int
	TotalCents     int
}

// ChargeSnapshot carries the gateway result to persist alongside the order.
type ChargeSnapshot struct {
	SquarePaymentID string
	IdempotencyKey  string
	AmountCents     int64
}

// CreatePaidInput is the finalized order the checkout orchestrator persists.
type CreatePaidInput struct {
	BuyerID         uuid.UUID
	StoreID         uuid.UUID
	Currency        enums.Currency
	PaymentMethod   enums.PaymentMethod
	IdempotencyKey  string
	ShippingAddress *types.Address
	Notes           *string
	SubtotalCents   int
	DiscountsCents  int
	TaxCents        int
	ShippingCents   int
	TotalCents      int
	Lines           []LineSnapshot
	Charge          ChargeSnapshot
	PaidAt          time.Time
}

// CancelInput identifies the order to cancel and who asked.
type CancelInput struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
	Reason  string
}

// ListResult pairs one page of orders with the cursor for the next one.
type ListResult struct {
	Orders     []OrderDTO
	NextCursor string
}

// Service exposes the order aggregate: creation at checkout, the lifecycle
// state machine, and buyer/seller reads. Orders are never hard-deleted.
type Service interface {
	CreatePaid(ctx context.Context, tx *gorm.DB, input CreatePaidInput) (*models.Order, error)
	GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*OrderDTO, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListForStore(ctx context.Context, actorID, storeID uuid.UUID, params pagination.Params) (*ListResult, error)
	Fulfill(ctx context.Context, actorID, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	pub     outboxPublisher
	gateway payments.Gateway
	stores  storeGuard
	restock StockReturner
}

// NewService builds an order service with the provided dependencies.
func NewService(repo *Repository, tx txRunner, pub outboxPublisher, gateway payments.Gateway, stores storeGuard, restock StockReturner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if pub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store guard required")
	}
	if restock == nil {
		return nil, fmt.Errorf("stock returner required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		pub:     pub,
		gateway: gateway,
		stores:  stores,
		restock: restock,
	}, nil
}

// CreatePaid persists a finalized order in paid status inside the caller's
// transaction. Totals must match the line snapshots captured at charge time.
func (s *service) CreatePaid(ctx context.Context, tx *gorm.DB, input CreatePaidInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to persist order")
	}
	if err := validateCreatePaid(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	number, err := repo.NextOrderNumber(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}

	paidAt := input.PaidAt
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     number,
		BuyerID:         input.BuyerID,
		StoreID:         input.StoreID,
		Currency:        input.Currency,
		Status:          enums.OrderStatusPaid,
		SubtotalCents:   input.SubtotalCents,
		DiscountsCents:  input.DiscountsCents,
		TaxCents:        input.TaxCents,
		ShippingCents:   input.ShippingCents,
		TotalCents:      input.TotalCents,
		PaymentMethod:   input.PaymentMethod,
		IdempotencyKey:  input.IdempotencyKey,
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		PaidAt:          &paidAt,
	}
	for _, line := range input.Lines {
		productID := line.ProductID
		order.Items = append(order.Items, models.OrderLineItem{
			ID:             uuid.New(),
			ProductID:      &productID,
			Name:           line.Name,
			SKU:            line.SKU,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			DiscountCents:  line.DiscountCents,
			TotalCents:     line.TotalCents,
		})
	}
	if _, err := repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
	}

	charge := &models.Charge{
		ID:              uuid.New(),
		StoreID:         input.StoreID,
		Type:            enums.ChargeTypeOrder,
		OrderID:         &order.ID,
		SquarePaymentID: input.Charge.SquarePaymentID,
		IdempotencyKey:  input.Charge.IdempotencyKey,
		AmountCents:     input.Charge.AmountCents,
		Currency:        input.Currency.String(),
		Status:          enums.ChargeStatusSucceeded,
		BilledAt:        &paidAt,
	}
	if _, err := repo.CreateCharge(ctx, charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert charge")
	}
	order.Charges = append(order.Charges, *charge)

	err = s.pub.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			StoreID:     order.StoreID,
			TotalCents:  int64(order.TotalCents),
			Currency:    order.Currency.String(),
			ChargeID:    charge.ID,
			PaidAt:      paidAt,
		},
		Version: 1,
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOrderAccess(ctx, actorID, order); err != nil {
		return nil, err
	}
	return NewOrderDTO(order), nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return buildListResult(rows, params), nil
}

func (s *service) ListForStore(ctx context.Context, actorID, storeID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if err := s.stores.EnsureSellerAccess(ctx, actorID, storeID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByStore(ctx, storeID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store orders")
	}
	return buildListResult(rows, params), nil
}

// Fulfill marks a paid order fulfilled. Repeating the call on an
// already-fulfilled order is a no-op.
func (s *service) Fulfill(ctx context.Context, actorID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.stores.EnsureSellerAccess(ctx, actorID, order.StoreID); err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusFulfilled {
		return NewOrderDTO(order), nil
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusFulfilled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: fulfill order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be fulfilled", order.Status))
		}
		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFulfilledEvent{
				OrderID:     order.ID,
				StoreID:     order.StoreID,
				BuyerID:     order.BuyerID,
				FulfilledAt: now,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusFulfilled
	order.FulfilledAt = &now
	return NewOrderDTO(order), nil
}

// Cancel transitions an order to canceled. Canceling a paid order refunds the
// charge first; the refund is keyed on the charge, so a retried cancel cannot
// refund twice. Fulfilled orders cannot be canceled.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOrderAccess(ctx, input.ActorID, order); err != nil {
		return nil, err
	}

	switch order.Status {
	case enums.OrderStatusCanceled:
		return NewOrderDTO(order), nil
	case enums.OrderStatusFulfilled:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "fulfilled orders cannot be canceled")
	case enums.OrderStatusPending:
		return s.cancelUnpaid(ctx, order, input.Reason)
	case enums.OrderStatusPaid:
		return s.cancelPaid(ctx, order, input.Reason)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and cannot be canceled", order.Status))
	}
}

func (s *service) cancelUnpaid(ctx context.Context, order *models.Order, reason string) (*OrderDTO, error) {
	now := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCanceled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: cancel order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during cancel")
		}
		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				StoreID:    order.StoreID,
				BuyerID:    order.BuyerID,
				CanceledAt: now,
				Refunded:   false,
				Reason:     reason,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusCanceled
	order.CanceledAt = &now
	return NewOrderDTO(order), nil
}

func (s *service) cancelPaid(ctx context.Context, order *models.Order, reason string) (*OrderDTO, error) {
	charge := findSucceededCharge(order)
	if charge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paid order has no settled charge")
	}

	refund, err := s.gateway.Refund(ctx, payments.RefundParams{
		PaymentID:      charge.SquarePaymentID,
		AmountCents:    charge.AmountCents,
		Currency:       order.Currency,
		Reason:         reason,
		IdempotencyKey: charge.IdempotencyKey + ":refund",
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusCanceled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: cancel order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during cancel")
		}
		if err := repo.MarkChargeRefunded(ctx, charge.ID, refund.RefundID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: mark charge refunded")
		}
		for _, item := range order.Items {
			if item.ProductID == nil || item.Qty <= 0 {
				continue
			}
			if err := s.restock.Return(ctx, tx, *item.ProductID, item.Qty); err != nil {
				return err
			}
		}
		err = s.pub.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderRefundedEvent{
				OrderID:        order.ID,
				ChargeID:       charge.ID,
				SquareRefundID: refund.RefundID,
				AmountCents:    charge.AmountCents,
				RefundedAt:     now,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				StoreID:    order.StoreID,
				BuyerID:    order.BuyerID,
				CanceledAt: now,
				Refunded:   true,
				Reason:     reason,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusCanceled
	order.CanceledAt = &now
	return NewOrderDTO(order), nil
}

// ensureOrderAccess admits the buyer who placed the order, the seller who
// owns the store, and admins.
func (s *service) ensureOrderAccess(ctx context.Context, actorID uuid.UUID, order *models.Order) error {
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if order.BuyerID == actorID {
		return nil
	}
	return s.stores.EnsureSellerAccess(ctx, actorID, order.StoreID)
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func validateCreatePaid(input CreatePaidInput) error {
	if input.BuyerID == uuid.Nil || input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id and store id required")
	}
	if input.IdempotencyKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	if input.Charge.SquarePaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference required")
	}

	lineTotal := 0
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line qty must be positive")
		}
		lineTotal += line.TotalCents
	}
	if lineTotal != input.SubtotalCents-input.DiscountsCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "order totals do not match line snapshots")
	}
	if input.TotalCents != input.SubtotalCents-input.DiscountsCents+input.TaxCents+input.ShippingCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "order total does not reconcile")
	}
	return nil
}

// buildListResult trims the pagination buffer row and derives the next cursor
// from the last row actually returned.
func buildListResult(rows []models.Order, params pagination.Params) *ListResult {
	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	for i := range rows {
		result.Orders = append(result.Orders, *NewOrderDTO(&rows[i]))
	}
	return result
}

func findSucceededCharge(order *models.Order) *models.Charge {
	for i := range order.Charges {
		if order.Charges[i].Status == enums.ChargeStatusSucceeded {
			return &order.Charges[i]
		}
	}
	return nil
}

type stockReturnerImpl struct{}

// NewStockReturner returns the default restock implementation, which puts
// canceled units straight back into available stock.
func NewStockReturner() StockReturner {
	return stockReturnerImpl{}
}

func (stockReturnerImpl) Return(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for restock")
	}
	res := tx.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("available_qty", gorm.Expr("available_qty + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock inventory")
	}
	return nil
}
