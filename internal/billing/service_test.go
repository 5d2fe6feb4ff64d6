package billing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/internal/stores"
	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/square"
)

type stubSquare struct {
	customers   int
	cards       int
	createCalls []square.SubscriptionCreateParams
	cancelCalls []string
	createResp  *sq.Subscription
	cancelResp  *sq.Subscription
	getResp     *sq.Subscription
	createErr   error
}

func (s *stubSquare) CreateCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error) {
	s.customers++
	return &sq.Customer{ID: strPtr("cust-1")}, nil
}

func (s *stubSquare) CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error) {
	s.cards++
	return &sq.Card{ID: strPtr("card-1")}, nil
}

func (s *stubSquare) CreateSubscription(ctx context.Context, params square.SubscriptionCreateParams) (*sq.Subscription, error) {
	s.createCalls = append(s.createCalls, params)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResp, nil
}

func (s *stubSquare) CancelSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error) {
	s.cancelCalls = append(s.cancelCalls, subscriptionID)
	return s.cancelResp, nil
}

func (s *stubSquare) GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error) {
	return s.getResp, nil
}

type stubGuard struct {
	owners map[uuid.UUID]uuid.UUID
}

func (g *stubGuard) EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error {
	if g.owners[storeID] == userID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a manager of this store")
}

type stubUsers struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type billingEnv struct {
	conn    *gorm.DB
	repo    *Repository
	gateway *stubSquare
	guard   *stubGuard
	users   *stubUsers
	svc     Service
	ownerID uuid.UUID
	storeID uuid.UUID
}

// BillingPlan carries Postgres array defaults that sqlite cannot evaluate via
// AutoMigrate, so the plans table is created by hand.
const billingPlansDDL = `CREATE TABLE billing_plans (
	id text PRIMARY KEY,
	name text NOT NULL,
	square_billing_plan_id text NOT NULL,
	is_default boolean NOT NULL DEFAULT false,
	trial_days integer NOT NULL DEFAULT 0,
	interval text NOT NULL,
	price_amount numeric NOT NULL DEFAULT 0,
	currency_code text NOT NULL DEFAULT 'USD',
	features text,
	ui text,
	created_at datetime,
	updated_at datetime
)`

func newBillingEnv(t *testing.T) *billingEnv {
	t.Helper()
	dsn := "file:billing_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Store{}, &models.Subscription{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec(billingPlansDDL).Error; err != nil {
		t.Fatalf("create plans table: %v", err)
	}

	env := &billingEnv{
		conn:    conn,
		repo:    NewRepository(conn),
		gateway: &stubSquare{},
		guard:   &stubGuard{owners: map[uuid.UUID]uuid.UUID{}},
		users:   &stubUsers{users: map[uuid.UUID]*models.User{}},
		ownerID: uuid.New(),
		storeID: uuid.New(),
	}
	env.guard.owners[env.storeID] = env.ownerID

	email := "owner@example.com"
	store := &models.Store{
		ID:      env.storeID,
		Name:    "Tecno Gadgets",
		Slug:    "tecno-gadgets",
		Email:   &email,
		Status:  enums.StoreStatusPending,
		OwnerID: env.ownerID,
	}
	if err := conn.Create(store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}

	plan := &models.BillingPlan{
		ID:                  "starter",
		Name:                "Starter",
		SquareBillingPlanID: "PLANVAR-1",
		IsDefault:           true,
		TrialDays:           14,
		Interval:            enums.BillingIntervalMonthly,
		PriceAmount:         decimal.NewFromInt(29),
		CurrencyCode:        "USD",
	}
	if err := env.repo.UpsertPlan(context.Background(), plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Repo:       env.repo,
		Stores:     stores.NewRepository(conn),
		Guard:      env.guard,
		Users:      env.users,
		Tx:         db.NewFromConn(conn),
		Square:     env.gateway,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:     logger.New(logger.Options{ServiceName: "billing-test", Output: io.Discard}),
		LocationID: "LOC-1",
		Lookback:   time.Hour,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	env.svc = svc
	return env
}

func (e *billingEnv) loadStore(t *testing.T) *models.Store {
	t.Helper()
	var store models.Store
	if err := e.conn.First(&store, "id = ?", e.storeID).Error; err != nil {
		t.Fatalf("load store: %v", err)
	}
	return &store
}

func (e *billingEnv) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := e.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", eventType).
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func squareSubFixture(id, status, chargedThrough string) *sq.Subscription {
	sub := &sq.Subscription{ID: strPtr(id)}
	if status != "" {
		s := sq.SubscriptionStatus(status)
		sub.Status = &s
	}
	if chargedThrough != "" {
		sub.ChargedThroughDate = strPtr(chargedThrough)
	}
	return sub
}

func strPtr(s string) *string {
	return &s
}

func TestSubscribeActivatesStore(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")

	dto, err := env.svc.Subscribe(context.Background(), env.ownerID, SubscribeInput{
		StoreID:   env.storeID,
		CardToken: "cnon-test-ok",
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if dto.Status != "active" {
		t.Fatalf("unexpected status %s", dto.Status)
	}
	if dto.PlanID != "starter" {
		t.Fatalf("expected default plan, got %s", dto.PlanID)
	}
	if dto.CurrentPeriodEnd.Format("2006-01-02") != "2026-09-28" {
		t.Fatalf("period end not taken from gateway: %v", dto.CurrentPeriodEnd)
	}

	store := env.loadStore(t)
	if !store.SubscriptionActive {
		t.Fatal("store entitlement flag not set")
	}
	if store.Status != enums.StoreStatusActive {
		t.Fatalf("store should be activated, got %s", store.Status)
	}
	if store.SquareCustomerID == nil || *store.SquareCustomerID != "cust-1" {
		t.Fatal("square customer not recorded on store")
	}

	if env.gateway.customers != 1 || env.gateway.cards != 1 {
		t.Fatalf("gateway calls: %d customers, %d cards", env.gateway.customers, env.gateway.cards)
	}
	call := env.gateway.createCalls[0]
	if call.PlanVariationID != "PLANVAR-1" || call.LocationID != "LOC-1" || call.CardID != "card-1" {
		t.Fatalf("unexpected subscription params: %+v", call)
	}
	if got := env.countEvents(t, enums.EventSubscriptionStateChanged); got != 1 {
		t.Fatalf("expected 1 state change event, got %d", got)
	}
}

func TestSubscribePendingGatewayStatusGrantsTrial(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "PENDING", "")

	dto, err := env.svc.Subscribe(context.Background(), env.ownerID, SubscribeInput{
		StoreID:   env.storeID,
		CardToken: "cnon-test-ok",
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if dto.Status != "trialing" {
		t.Fatalf("pending gateway status should map to trialing, got %s", dto.Status)
	}
	if dto.CurrentPeriodEnd.IsZero() {
		t.Fatal("period end fallback not applied")
	}

	store := env.loadStore(t)
	if !store.SubscriptionActive || store.Status != enums.StoreStatusActive {
		t.Fatalf("trialing must entitle the store, got active=%v status=%s",
			store.SubscriptionActive, store.Status)
	}
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")
	ctx := context.Background()

	if _, err := env.svc.Subscribe(ctx, env.ownerID, SubscribeInput{StoreID: env.storeID, CardToken: "cnon-1"}); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	_, err := env.svc.Subscribe(ctx, env.ownerID, SubscribeInput{StoreID: env.storeID, CardToken: "cnon-2"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(env.gateway.createCalls) != 1 {
		t.Fatalf("duplicate subscribe reached the gateway: %d calls", len(env.gateway.createCalls))
	}
}

func TestSubscribeRequiresCardToken(t *testing.T) {
	env := newBillingEnv(t)

	_, err := env.svc.Subscribe(context.Background(), env.ownerID, SubscribeInput{StoreID: env.storeID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubscribeRejectsStranger(t *testing.T) {
	env := newBillingEnv(t)

	_, err := env.svc.Subscribe(context.Background(), uuid.New(), SubscribeInput{
		StoreID:   env.storeID,
		CardToken: "cnon-1",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancelMarksCancelAtPeriodEnd(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")
	ctx := context.Background()

	if _, err := env.svc.Subscribe(ctx, env.ownerID, SubscribeInput{StoreID: env.storeID, CardToken: "cnon-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Square keeps the subscription active until the period closes.
	env.gateway.cancelResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")
	dto, err := env.svc.Cancel(ctx, env.ownerID, env.storeID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !dto.CancelAtPeriodEnd || dto.CanceledAt == nil {
		t.Fatalf("cancel not recorded: %+v", dto)
	}
	if dto.Status != "active" {
		t.Fatalf("status should stay active until period end, got %s", dto.Status)
	}

	store := env.loadStore(t)
	if !store.SubscriptionActive || store.Status != enums.StoreStatusActive {
		t.Fatal("entitlement must survive until the period closes")
	}
	if got := env.countEvents(t, enums.EventSubscriptionStateChanged); got != 1 {
		t.Fatalf("unchanged status should not emit a second event, got %d", got)
	}
	if len(env.gateway.cancelCalls) != 1 || env.gateway.cancelCalls[0] != "sqsub-1" {
		t.Fatalf("unexpected cancel calls: %v", env.gateway.cancelCalls)
	}
}

func TestSyncLapseSuspendsStore(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")
	ctx := context.Background()

	if _, err := env.svc.Subscribe(ctx, env.ownerID, SubscribeInput{StoreID: env.storeID, CardToken: "cnon-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	lapsed := squareSubFixture("sqsub-1", "DEACTIVATED", "")
	lapsed.CanceledDate = strPtr("2026-08-01")
	if err := env.svc.SyncFromSquare(ctx, lapsed); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var sub models.Subscription
	if err := env.conn.First(&sub, "square_subscription_id = ?", "sqsub-1").Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s", sub.Status)
	}

	store := env.loadStore(t)
	if store.SubscriptionActive {
		t.Fatal("lapsed subscription left entitlement on")
	}
	if store.Status != enums.StoreStatusSuspended {
		t.Fatalf("store should be suspended, got %s", store.Status)
	}
	if got := env.countEvents(t, enums.EventStoreSuspended); got != 1 {
		t.Fatalf("expected 1 suspension event, got %d", got)
	}
	if got := env.countEvents(t, enums.EventSubscriptionStateChanged); got != 2 {
		t.Fatalf("expected 2 state change events, got %d", got)
	}

	// A redelivered webhook with the same state changes nothing.
	if err := env.svc.SyncFromSquare(ctx, lapsed); err != nil {
		t.Fatalf("repeat sync: %v", err)
	}
	if got := env.countEvents(t, enums.EventSubscriptionStateChanged); got != 2 {
		t.Fatalf("repeat sync emitted extra events: %d", got)
	}
}

func TestSyncUnknownSubscription(t *testing.T) {
	env := newBillingEnv(t)

	err := env.svc.SyncFromSquare(context.Background(), squareSubFixture("sqsub-missing", "ACTIVE", ""))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReconcileDueSyncsStaleSubscriptions(t *testing.T) {
	env := newBillingEnv(t)
	env.gateway.createResp = squareSubFixture("sqsub-1", "ACTIVE", "2026-09-28")
	ctx := context.Background()

	dto, err := env.svc.Subscribe(ctx, env.ownerID, SubscribeInput{StoreID: env.storeID, CardToken: "cnon-1"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	now := time.Now().UTC()
	if err := env.conn.Model(&models.Subscription{}).
		Where("id = ?", dto.ID).
		UpdateColumn("updated_at", now.Add(-2*time.Hour)).Error; err != nil {
		t.Fatalf("age subscription: %v", err)
	}

	env.gateway.getResp = squareSubFixture("sqsub-1", "DEACTIVATED", "")
	synced, err := env.svc.ReconcileDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 synced subscription, got %d", synced)
	}

	var sub models.Subscription
	if err := env.conn.First(&sub, "id = ?", dto.ID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("reconcile did not apply gateway state, got %s", sub.Status)
	}
	if env.loadStore(t).Status != enums.StoreStatusSuspended {
		t.Fatal("reconcile did not suspend the lapsed store")
	}

	// A fresh row is outside the lookback window.
	synced, err = env.svc.ReconcileDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if synced != 0 {
		t.Fatalf("expected no stale subscriptions, got %d", synced)
	}
}

func TestUpsertPlanAdminGate(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()

	seller := uuid.New()
	env.users.users[seller] = &models.User{ID: seller, Role: enums.RoleSeller, IsActive: true}
	admin := uuid.New()
	env.users.users[admin] = &models.User{ID: admin, Role: enums.RoleAdmin, IsActive: true}

	input := PlanInput{
		ID:                  "pro",
		Name:                "Pro",
		SquareBillingPlanID: "PLANVAR-2",
		IsDefault:           true,
		Interval:            "yearly",
		PriceAmount:         decimal.NewFromInt(290),
	}

	_, err := env.svc.UpsertPlan(ctx, seller, input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for seller, got %v", err)
	}

	dto, err := env.svc.UpsertPlan(ctx, admin, input)
	if err != nil {
		t.Fatalf("upsert plan: %v", err)
	}
	if dto.CurrencyCode != "USD" {
		t.Fatalf("currency default not applied: %s", dto.CurrencyCode)
	}

	def, err := env.repo.FindDefaultPlan(ctx)
	if err != nil {
		t.Fatalf("find default: %v", err)
	}
	if def == nil || def.ID != "pro" {
		t.Fatalf("new default not promoted: %+v", def)
	}
	plans, err := env.svc.ListPlans(ctx)
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
}
