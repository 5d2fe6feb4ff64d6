package checkout

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/config"
	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/metrics"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"

	"github.com/tecnoshop/storefront-backend/internal/inventory"
	"github.com/tecnoshop/storefront-backend/internal/orders"
	"github.com/tecnoshop/storefront-backend/internal/payments"
	"github.com/tecnoshop/storefront-backend/internal/pricing"
)

type fakeGateway struct {
	charges    []payments.ChargeParams
	refunds    []payments.RefundParams
	chargeErr  error
	refundErr  error
	chargeSlow time.Duration
}

func (g *fakeGateway) Charge(ctx context.Context, params payments.ChargeParams) (*payments.ChargeResult, error) {
	if g.chargeSlow > 0 {
		select {
		case <-time.After(g.chargeSlow):
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, ctx.Err(), "square: create payment")
		}
	}
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.charges = append(g.charges, params)
	return &payments.ChargeResult{PaymentID: "sq-pay-" + params.IdempotencyKey[:8], Status: "COMPLETED"}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, params payments.RefundParams) (*payments.RefundResult, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, params)
	return &payments.RefundResult{RefundID: "sq-refund-1", Status: "COMPLETED"}, nil
}

type fakeStoreGate struct {
	store *models.Store
	err   error
}

func (g *fakeStoreGate) EnsureCheckoutReady(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.store, nil
}

type catalogStub struct {
	products []models.Product
}

func (c *catalogStub) FindByIDsForStore(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
	var out []models.Product
	for _, p := range c.products {
		if p.StoreID != storeID {
			continue
		}
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type allowAllGuard struct{}

func (allowAllGuard) EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error {
	return nil
}

type failingOrderWriter struct{}

func (failingOrderWriter) CreatePaid(ctx context.Context, tx *gorm.DB, input orders.CreatePaidInput) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "db: insert order")
}

type checkoutEnv struct {
	conn      *gorm.DB
	gateway   *fakeGateway
	gate      *fakeStoreGate
	catalog   *catalogStub
	orderRepo *orders.Repository
	buyerID   uuid.UUID
	storeID   uuid.UUID
}

func (e *checkoutEnv) buildService(t *testing.T, writer orderWriter) Service {
	t.Helper()
	client := db.NewFromConn(e.conn)
	pub := outbox.NewService(outbox.NewRepository(e.conn), nil)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})

	pricer, err := pricing.NewService(e.catalog)
	if err != nil {
		t.Fatalf("build pricing: %v", err)
	}
	ledger, err := inventory.NewService(client, inventory.NewRepository(e.conn), pub, logg)
	if err != nil {
		t.Fatalf("build inventory: %v", err)
	}
	if writer == nil {
		orderSvc, err := orders.NewService(e.orderRepo, client, pub, e.gateway, allowAllGuard{}, orders.NewStockReturner())
		if err != nil {
			t.Fatalf("build orders: %v", err)
		}
		writer = orderSvc
	}

	cfg := config.CheckoutConfig{ReservationTTL: 15 * time.Minute, ChargeTimeout: 2 * time.Second}
	svc, err := NewService(cfg, client, e.gate, pricer, ledger, writer, e.orderRepo, e.gateway, pub, logg,
		metrics.NewCheckoutMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("build checkout: %v", err)
	}
	return svc
}

func newCheckoutEnv(t *testing.T) *checkoutEnv {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.InventoryItem{},
		&models.StockReservation{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.Charge{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storeID := uuid.New()
	locationID := "sq-loc-1"
	return &checkoutEnv{
		conn:    conn,
		gateway: &fakeGateway{},
		gate: &fakeStoreGate{store: &models.Store{
			ID:                 storeID,
			Slug:               "checkout-store",
			Status:             enums.StoreStatusActive,
			SubscriptionActive: true,
			SquareLocationID:   &locationID,
		}},
		catalog:   &catalogStub{},
		orderRepo: orders.NewRepository(conn),
		buyerID:   uuid.New(),
		storeID:   storeID,
	}
}

func (e *checkoutEnv) seedProduct(t *testing.T, priceCents, availableQty int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.catalog.products = append(e.catalog.products, models.Product{
		ID:         id,
		StoreID:    e.storeID,
		SKU:        "SKU-" + id.String()[:8],
		Name:       "Product " + id.String()[:8],
		Status:     enums.ProductStatusActive,
		PriceCents: priceCents,
		Currency:   enums.CurrencyUSD,
	})
	if err := e.conn.Create(&models.InventoryItem{ProductID: id, AvailableQty: availableQty}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return id
}

func (e *checkoutEnv) inventoryFor(t *testing.T, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := e.conn.Where("product_id = ?", productID).First(&item).Error; err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	return item
}

func (e *checkoutEnv) input(lines ...Line) Input {
	return Input{
		BuyerID:     e.buyerID,
		StoreID:     e.storeID,
		Lines:       lines,
		SourceID:    "cnon:card-ok",
		ClientNonce: uuid.NewString(),
	}
}

func TestCheckoutSuccessSingleUnit(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 2500, 1)
	svc := env.buildService(t, nil)

	order, err := svc.Execute(context.Background(), env.input(Line{ProductID: productID, Qty: 1}))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}
	if order.TotalCents != 2500 {
		t.Fatalf("unexpected total %d", order.TotalCents)
	}

	item := env.inventoryFor(t, productID)
	if item.AvailableQty != 0 || item.ReservedQty != 0 {
		t.Fatalf("stock not consumed: available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	if len(env.gateway.charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(env.gateway.charges))
	}
	charge := env.gateway.charges[0]
	if charge.AmountCents != 2500 || charge.IdempotencyKey == "" {
		t.Fatalf("unexpected charge params: %+v", charge)
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

func TestCheckoutInsufficientStockRollsBackAllLines(t *testing.T) {
	env := newCheckoutEnv(t)
	plentiful := env.seedProduct(t, 1000, 10)
	scarce := env.seedProduct(t, 2000, 1)
	svc := env.buildService(t, nil)

	_, err := svc.Execute(context.Background(), env.input(
		Line{ProductID: plentiful, Qty: 2},
		Line{ProductID: scarce, Qty: 3},
	))
	if err == nil {
		t.Fatal("expected insufficient stock")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	// Neither line may keep a hold.
	for _, id := range []uuid.UUID{plentiful, scarce} {
		item := env.inventoryFor(t, id)
		if item.ReservedQty != 0 {
			t.Fatalf("product %s kept a reservation", id)
		}
	}
	if len(env.gateway.charges) != 0 {
		t.Fatal("charge attempted despite failed reservation")
	}
}

func TestCheckoutPaymentFailureReleasesHolds(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 3000, 4)
	env.gateway.chargeErr = pkgerrors.New(pkgerrors.CodePaymentFailed, "card declined")
	svc := env.buildService(t, nil)

	_, err := svc.Execute(context.Background(), env.input(Line{ProductID: productID, Qty: 2}))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodePaymentFailed {
		t.Fatalf("unexpected error: %v", err)
	}

	item := env.inventoryFor(t, productID)
	if item.AvailableQty != 4 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	var count int64
	if err := env.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatal("order created despite declined payment")
	}
}

func TestCheckoutPersistenceFailureRefunds(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 3000, 4)
	svc := env.buildService(t, failingOrderWriter{})

	_, err := svc.Execute(context.Background(), env.input(Line{ProductID: productID, Qty: 2}))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOrderPersistence {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.gateway.refunds) != 1 {
		t.Fatalf("expected compensating refund, got %d", len(env.gateway.refunds))
	}
	if env.gateway.refunds[0].AmountCents != 6000 {
		t.Fatalf("unexpected refund amount %d", env.gateway.refunds[0].AmountCents)
	}

	item := env.inventoryFor(t, productID)
	if item.AvailableQty != 4 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}
}

func TestCheckoutRefundFailureQueuesReconciliation(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 3000, 4)
	env.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "refund endpoint down")
	svc := env.buildService(t, failingOrderWriter{})

	_, err := svc.Execute(context.Background(), env.input(Line{ProductID: productID, Qty: 1}))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOrderPersistence {
		t.Fatalf("unexpected error: %v", err)
	}

	var events int64
	if err := env.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentReconcileRequested).
		Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected 1 reconcile request, got %d", events)
	}
}

func TestCheckoutReplaysExistingOrder(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 2500, 5)
	svc := env.buildService(t, nil)

	input := env.input(Line{ProductID: productID, Qty: 1})
	first, err := svc.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	// Same nonce, same lines: the stored order comes back, no second charge.
	second, err := svc.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("replay checkout: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new order: %s vs %s", second.ID, first.ID)
	}
	if len(env.gateway.charges) != 1 {
		t.Fatalf("expected 1 charge across both calls, got %d", len(env.gateway.charges))
	}

	item := env.inventoryFor(t, productID)
	if item.AvailableQty != 4 {
		t.Fatalf("replay consumed stock again: available=%d", item.AvailableQty)
	}
}

// raceLookup misses on the first lookup so a second submission slips past the
// replay pre-check, the way a concurrent request does before the winner
// commits. Later lookups hit the real repository.
type raceLookup struct {
	repo   *orders.Repository
	misses int
}

func (l *raceLookup) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	if l.misses > 0 {
		l.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return l.repo.FindByIdempotencyKey(ctx, key)
}

type duplicateKeyWriter struct{}

func (duplicateKeyWriter) CreatePaid(ctx context.Context, tx *gorm.DB, input orders.CreatePaidInput) (*models.Order, error) {
	return nil, errors.New("UNIQUE constraint failed: orders.idempotency_key")
}

func TestCheckoutConcurrentDuplicateReplaysWithoutRefund(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 2500, 2)

	input := env.input(Line{ProductID: productID, Qty: 1})
	key := DeriveIdempotencyKey(input.BuyerID, input.Lines, input.ClientNonce)

	// The winner already finalized this checkout and consumed one unit.
	winner := models.Order{
		ID:             uuid.New(),
		OrderNumber:    1,
		BuyerID:        env.buyerID,
		StoreID:        env.storeID,
		Currency:       enums.CurrencyUSD,
		Status:         enums.OrderStatusPaid,
		TotalCents:     2500,
		PaymentMethod:  enums.PaymentMethodCard,
		IdempotencyKey: key,
	}
	if err := env.conn.Create(&winner).Error; err != nil {
		t.Fatalf("seed winner order: %v", err)
	}
	if err := env.conn.Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("available_qty", 1).Error; err != nil {
		t.Fatalf("consume winner unit: %v", err)
	}

	client := db.NewFromConn(env.conn)
	pub := outbox.NewService(outbox.NewRepository(env.conn), nil)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	pricer, err := pricing.NewService(env.catalog)
	if err != nil {
		t.Fatalf("build pricing: %v", err)
	}
	ledger, err := inventory.NewService(client, inventory.NewRepository(env.conn), pub, logg)
	if err != nil {
		t.Fatalf("build inventory: %v", err)
	}
	cfg := config.CheckoutConfig{ReservationTTL: 15 * time.Minute, ChargeTimeout: 2 * time.Second}
	svc, err := NewService(cfg, client, env.gate, pricer, ledger, duplicateKeyWriter{},
		&raceLookup{repo: env.orderRepo, misses: 1}, env.gateway, pub, logg,
		metrics.NewCheckoutMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("build checkout: %v", err)
	}

	order, err := svc.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("loser must replay the winner's order: %v", err)
	}
	if order.ID != winner.ID {
		t.Fatalf("expected winner order %s, got %s", winner.ID, order.ID)
	}

	// The shared charge belongs to the winner's order; clawing it back would
	// unpay a legitimate sale.
	if len(env.gateway.refunds) != 0 {
		t.Fatalf("loser refunded the winner's charge: %+v", env.gateway.refunds)
	}

	// The loser's hold is released, not committed: only the winner's unit
	// stays consumed.
	item := env.inventoryFor(t, productID)
	if item.AvailableQty != 1 || item.ReservedQty != 0 {
		t.Fatalf("stock double-decremented: available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}
}

func TestCheckoutRejectsUnsubscribedStore(t *testing.T) {
	env := newCheckoutEnv(t)
	productID := env.seedProduct(t, 2500, 5)
	env.gate.err = pkgerrors.New(pkgerrors.CodeAccountMisconfigured, "store subscription is not active")
	svc := env.buildService(t, nil)

	_, err := svc.Execute(context.Background(), env.input(Line{ProductID: productID, Qty: 1}))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeAccountMisconfigured {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.gateway.charges) != 0 {
		t.Fatal("charge attempted against gated store")
	}
}

func TestDeriveIdempotencyKeyStableUnderReordering(t *testing.T) {
	buyer := uuid.New()
	a, b := uuid.New(), uuid.New()

	k1 := DeriveIdempotencyKey(buyer, []Line{{a, 1}, {b, 2}}, "nonce")
	k2 := DeriveIdempotencyKey(buyer, []Line{{b, 2}, {a, 1}}, "nonce")
	if k1 != k2 {
		t.Fatal("line order must not change the key")
	}

	if DeriveIdempotencyKey(buyer, []Line{{a, 1}, {b, 2}}, "other") == k1 {
		t.Fatal("different nonces must produce different keys")
	}
	if DeriveIdempotencyKey(buyer, []Line{{a, 2}, {b, 2}}, "nonce") == k1 {
		t.Fatal("different quantities must produce different keys")
	}
}
