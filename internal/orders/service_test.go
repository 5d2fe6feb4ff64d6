package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"

	"github.com/tecnoshop/storefront-backend/internal/payments"
)

type stubGateway struct {
	refunds    []payments.RefundParams
	refundErr  error
	chargeErr  error
	chargeResp *payments.ChargeResult
}

func (g *stubGateway) Charge(ctx context.Context, params payments.ChargeParams) (*payments.ChargeResult, error) {
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.chargeResp != nil {
		return g.chargeResp, nil
	}
	return &payments.ChargeResult{PaymentID: "sq-pay-test", Status: "COMPLETED"}, nil
}

func (g *stubGateway) Refund(ctx context.Context, params payments.RefundParams) (*payments.RefundResult, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, params)
	return &payments.RefundResult{RefundID: "sq-refund-test", Status: "COMPLETED"}, nil
}

type stubStoreGuard struct {
	sellers map[uuid.UUID]uuid.UUID // userID -> storeID they manage
}

func (g *stubStoreGuard) EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error {
	if g.sellers[userID] == storeID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a manager of this store")
}

type orderTestEnv struct {
	conn    *gorm.DB
	gateway *stubGateway
	guard   *stubStoreGuard
	svc     Service
}

func newOrderTestEnv(t *testing.T) *orderTestEnv {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Order{},
		&models.OrderLineItem{},
		&models.Charge{},
		&models.InventoryItem{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gateway := &stubGateway{}
	guard := &stubStoreGuard{sellers: map[uuid.UUID]uuid.UUID{}}
	pub := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), pub, gateway, guard, NewStockReturner())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &orderTestEnv{conn: conn, gateway: gateway, guard: guard, svc: svc}
}

func paidOrderInput(buyerID, storeID, productID uuid.UUID) CreatePaidInput {
	return CreatePaidInput{
		BuyerID:        buyerID,
		StoreID:        storeID,
		Currency:       enums.CurrencyUSD,
		PaymentMethod:  enums.PaymentMethodCard,
		IdempotencyKey: "co-" + uuid.NewString(),
		SubtotalCents:  5000,
		DiscountsCents: 500,
		TotalCents:     4500,
		Lines: []LineSnapshot{
			{
				ProductID:      productID,
				Name:           "Mechanical Keyboard",
				SKU:            "KB-01",
				UnitPriceCents: 2500,
				Qty:            2,
				DiscountCents:  500,
				TotalCents:     4500,
			},
		},
		Charge: ChargeSnapshot{
			SquarePaymentID: "sq-pay-" + uuid.NewString(),
			IdempotencyKey:  "ch-" + uuid.NewString(),
			AmountCents:     4500,
		},
		PaidAt: time.Now().UTC(),
	}
}

func (e *orderTestEnv) mustCreatePaid(t *testing.T, input CreatePaidInput) *models.Order {
	t.Helper()
	var order *models.Order
	err := db.NewFromConn(e.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		order, err = e.svc.CreatePaid(context.Background(), tx, input)
		return err
	})
	if err != nil {
		t.Fatalf("create paid order: %v", err)
	}
	return order
}

func TestCreatePaidOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	buyerID, storeID, productID := uuid.New(), uuid.New(), uuid.New()

	order := env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, productID))

	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}
	if order.OrderNumber < 1000 {
		t.Fatalf("order number not allocated: %d", order.OrderNumber)
	}

	loaded, err := env.svc.GetOrder(context.Background(), buyerID, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].TotalCents != 4500 {
		t.Fatalf("unexpected line snapshot: %+v", loaded.Items)
	}
	if len(loaded.Charges) != 1 || loaded.Charges[0].Status != "succeeded" {
		t.Fatalf("unexpected charges: %+v", loaded.Charges)
	}

	var events int64
	if err := env.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderPaid).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected 1 order_paid event, got %d", events)
	}
}

func TestCreatePaidOrderTotalMismatch(t *testing.T) {
	env := newOrderTestEnv(t)
	input := paidOrderInput(uuid.New(), uuid.New(), uuid.New())
	input.TotalCents = 9999

	err := db.NewFromConn(env.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := env.svc.CreatePaid(context.Background(), tx, input)
		return err
	})
	if err == nil {
		t.Fatal("expected total mismatch to be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFulfillOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	buyerID, storeID, productID := uuid.New(), uuid.New(), uuid.New()
	sellerID := uuid.New()
	env.guard.sellers[sellerID] = storeID

	order := env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, productID))

	if _, err := env.svc.Fulfill(context.Background(), buyerID, order.ID); err == nil {
		t.Fatal("buyer must not fulfill orders")
	}

	dto, err := env.svc.Fulfill(context.Background(), sellerID, order.ID)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if dto.Status != "fulfilled" || dto.FulfilledAt == nil {
		t.Fatalf("unexpected fulfill result: %+v", dto)
	}

	// Repeat fulfill is a no-op.
	if _, err := env.svc.Fulfill(context.Background(), sellerID, order.ID); err != nil {
		t.Fatalf("repeat fulfill: %v", err)
	}

	// Fulfilled is terminal.
	_, err = env.svc.Cancel(context.Background(), CancelInput{ActorID: buyerID, OrderID: order.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelPaidOrderRefundsAndRestocks(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	buyerID, storeID, productID := uuid.New(), uuid.New(), uuid.New()

	if err := env.conn.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 3}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	order := env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, productID))

	dto, err := env.svc.Cancel(ctx, CancelInput{ActorID: buyerID, OrderID: order.ID, Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != "canceled" || dto.CanceledAt == nil {
		t.Fatalf("unexpected cancel result: %+v", dto)
	}

	if len(env.gateway.refunds) != 1 {
		t.Fatalf("expected 1 refund, got %d", len(env.gateway.refunds))
	}
	refund := env.gateway.refunds[0]
	if refund.AmountCents != 4500 {
		t.Fatalf("unexpected refund amount %d", refund.AmountCents)
	}
	if refund.IdempotencyKey == "" {
		t.Fatal("refund must carry an idempotency key")
	}

	var item models.InventoryItem
	if err := env.conn.Where("product_id = ?", productID).First(&item).Error; err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	if item.AvailableQty != 5 {
		t.Fatalf("expected restock to 5, got %d", item.AvailableQty)
	}

	var charge models.Charge
	if err := env.conn.Where("order_id = ?", order.ID).First(&charge).Error; err != nil {
		t.Fatalf("reload charge: %v", err)
	}
	if charge.Status != enums.ChargeStatusRefunded || charge.SquareRefundID == nil {
		t.Fatalf("charge not marked refunded: %+v", charge)
	}

	var refunded int64
	if err := env.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderRefunded).
		Count(&refunded).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if refunded != 1 {
		t.Fatalf("expected 1 order_refunded event, got %d", refunded)
	}

	// Cancel again: idempotent, no second refund.
	if _, err := env.svc.Cancel(ctx, CancelInput{ActorID: buyerID, OrderID: order.ID}); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if len(env.gateway.refunds) != 1 {
		t.Fatalf("repeat cancel refunded again: %d refunds", len(env.gateway.refunds))
	}
}

func TestCancelPaidOrderRefundFailure(t *testing.T) {
	env := newOrderTestEnv(t)
	buyerID, storeID, productID := uuid.New(), uuid.New(), uuid.New()
	order := env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, productID))

	env.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "refund endpoint down")

	_, err := env.svc.Cancel(context.Background(), CancelInput{ActorID: buyerID, OrderID: order.ID})
	if err == nil {
		t.Fatal("expected refund failure to block cancel")
	}

	// Order stays paid when the refund never happened.
	reloaded, err := env.svc.GetOrder(context.Background(), buyerID, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != "paid" {
		t.Fatalf("expected order to stay paid, got %s", reloaded.Status)
	}
}

func TestOrderAccess(t *testing.T) {
	env := newOrderTestEnv(t)
	buyerID, storeID, productID := uuid.New(), uuid.New(), uuid.New()
	strangerID := uuid.New()
	order := env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, productID))

	_, err := env.svc.GetOrder(context.Background(), strangerID, order.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListForBuyerPagination(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	buyerID, storeID := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		env.mustCreatePaid(t, paidOrderInput(buyerID, storeID, uuid.New()))
	}
	env.mustCreatePaid(t, paidOrderInput(uuid.New(), storeID, uuid.New()))

	page, err := env.svc.ListForBuyer(ctx, buyerID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(page.Orders))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	rest, err := env.svc.ListForBuyer(ctx, buyerID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest.Orders) != 1 {
		t.Fatalf("expected 1 order on second page, got %d", len(rest.Orders))
	}
	if rest.NextCursor != "" {
		t.Fatalf("unexpected cursor on final page: %s", rest.NextCursor)
	}
}
