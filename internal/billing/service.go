package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/internal/stores"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/outbox/payloads"
	"github.com/tecnoshop/storefront-backend/pkg/square"
)

// reconcileStatuses are the states worth re-checking against the gateway.
// Canceled and unpaid subscriptions only move again via webhook.
var reconcileStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusTrialing,
	enums.SubscriptionStatusActive,
	enums.SubscriptionStatusPastDue,
}

const defaultReconcileLookback = 6 * time.Hour

type squareGateway interface {
	CreateCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error)
	CreateSubscription(ctx context.Context, params square.SubscriptionCreateParams) (*sq.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeGuard interface {
	EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns subscription lifecycle and plan management for storefronts.
type Service interface {
	ListPlans(ctx context.Context) ([]PlanDTO, error)
	UpsertPlan(ctx context.Context, actorID uuid.UUID, input PlanInput) (*PlanDTO, error)
	Subscribe(ctx context.Context, actorID uuid.UUID, input SubscribeInput) (*SubscriptionDTO, error)
	Cancel(ctx context.Context, actorID, storeID uuid.UUID) (*SubscriptionDTO, error)
	GetForStore(ctx context.Context, actorID, storeID uuid.UUID) (*SubscriptionDTO, error)
	SyncFromSquare(ctx context.Context, squareSub *sq.Subscription) error
	ReconcileDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// ServiceParams bundles the dependencies required to build a billing service.
type ServiceParams struct {
	Repo       *Repository
	Stores     *stores.Repository
	Guard      storeGuard
	Users      userLoader
	Tx         txRunner
	Square     squareGateway
	Outbox     outboxPublisher
	Logger     *logger.Logger
	LocationID string
	Lookback   time.Duration
}

type service struct {
	repo       *Repository
	stores     *stores.Repository
	guard      storeGuard
	users      userLoader
	tx         txRunner
	square     squareGateway
	pub        outboxPublisher
	logger     *logger.Logger
	locationID string
	lookback   time.Duration
}

// NewService constructs a billing service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("store guard required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Square == nil {
		return nil, fmt.Errorf("square gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	return &service{
		repo:       params.Repo,
		stores:     params.Stores,
		guard:      params.Guard,
		users:      params.Users,
		tx:         params.Tx,
		square:     params.Square,
		pub:        params.Outbox,
		logger:     params.Logger,
		locationID: strings.TrimSpace(params.LocationID),
		lookback:   lookback,
	}, nil
}

func (s *service) ListPlans(ctx context.Context) ([]PlanDTO, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list plans")
	}
	dtos := make([]PlanDTO, 0, len(plans))
	for i := range plans {
		dtos = append(dtos, *NewPlanDTO(&plans[i]))
	}
	return dtos, nil
}

// UpsertPlan creates or replaces a plan. Admin only; flagging a plan as
// default demotes every other plan in the same transaction.
func (s *service) UpsertPlan(ctx context.Context, actorID uuid.UUID, input PlanInput) (*PlanDTO, error) {
	if err := s.ensureAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	planID := strings.TrimSpace(input.ID)
	if planID == "" || strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id and name required")
	}
	if strings.TrimSpace(input.SquareBillingPlanID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square billing plan id required")
	}
	interval, err := enums.ParseBillingInterval(strings.ToLower(strings.TrimSpace(input.Interval)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "interval must be monthly or yearly")
	}
	if input.TrialDays < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trial days must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.CurrencyCode))
	if currency == "" {
		currency = "USD"
	}

	plan := &models.BillingPlan{
		ID:                  planID,
		Name:                strings.TrimSpace(input.Name),
		SquareBillingPlanID: strings.TrimSpace(input.SquareBillingPlanID),
		IsDefault:           input.IsDefault,
		TrialDays:           input.TrialDays,
		Interval:            interval,
		PriceAmount:         input.PriceAmount,
		CurrencyCode:        currency,
		Features:            nonNilStrings(input.Features),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.UpsertPlan(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: upsert plan")
		}
		if plan.IsDefault {
			if err := txRepo.DemoteOtherDefaults(ctx, plan.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: demote default plans")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewPlanDTO(plan), nil
}

// Subscribe vaults the card, starts the Square subscription, and persists the
// local mirror. An entitled store cannot subscribe twice.
func (s *service) Subscribe(ctx context.Context, actorID uuid.UUID, input SubscribeInput) (*SubscriptionDTO, error) {
	if err := s.guard.EnsureSellerAccess(ctx, actorID, input.StoreID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.CardToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card token required")
	}
	if s.locationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeAccountMisconfigured, "billing location is not configured")
	}

	store, err := s.loadStore(ctx, input.StoreID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindSubscriptionByStore(ctx, store.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load subscription")
	}
	if existing != nil && existing.Status.Entitled() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "store already has an active subscription")
	}

	plan, err := s.resolvePlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureSquareCustomer(ctx, store)
	if err != nil {
		return nil, err
	}

	card, err := s.square.CreateCard(ctx, square.CardCreateParams{
		CustomerID:     customerID,
		SourceID:       input.CardToken,
		CardholderName: input.CardholderName,
		ReferenceID:    store.ID.String(),
		IdempotencyKey: "card-" + store.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	cardID := cardIDOf(card)
	if cardID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no card id")
	}

	squareSub, err := s.square.CreateSubscription(ctx, square.SubscriptionCreateParams{
		LocationID:      s.locationID,
		PlanVariationID: plan.SquareBillingPlanID,
		CustomerID:      customerID,
		CardID:          cardID,
		IdempotencyKey:  "sub-" + store.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:               uuid.New(),
		StoreID:          store.ID,
		PlanID:           plan.ID,
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: fallbackPeriodEnd(plan, now),
	}
	applySquareState(sub, squareSub)
	if sub.SquareSubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no subscription id")
	}
	if sub.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = fallbackPeriodEnd(plan, now)
	}

	previous := enums.SubscriptionStatus("")
	if existing != nil {
		previous = existing.Status
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert subscription")
		}
		if err := s.applyEntitlement(ctx, tx, store, sub.Status, now); err != nil {
			return err
		}
		return s.emitStateChanged(ctx, tx, sub, previous, now)
	})
	if err != nil {
		return nil, err
	}
	return NewSubscriptionDTO(sub), nil
}

// Cancel asks the gateway to stop the subscription. Square cancels at the end
// of the current period, so entitlement survives until the sweep or a webhook
// observes the final state.
func (s *service) Cancel(ctx context.Context, actorID, storeID uuid.UUID) (*SubscriptionDTO, error) {
	if err := s.guard.EnsureSellerAccess(ctx, actorID, storeID); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindSubscriptionByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store has no subscription")
	}
	if sub.Status == enums.SubscriptionStatusCanceled {
		return NewSubscriptionDTO(sub), nil
	}

	squareSub, err := s.square.CancelSubscription(ctx, sub.SquareSubscriptionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	previous := sub.Status
	applySquareState(sub, squareSub)
	sub.CancelAtPeriodEnd = true
	if sub.CanceledAt == nil {
		sub.CanceledAt = &now
	}

	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update subscription")
		}
		if sub.Status == previous {
			return nil
		}
		if err := s.applyEntitlement(ctx, tx, store, sub.Status, now); err != nil {
			return err
		}
		return s.emitStateChanged(ctx, tx, sub, previous, now)
	})
	if err != nil {
		return nil, err
	}
	return NewSubscriptionDTO(sub), nil
}

func (s *service) GetForStore(ctx context.Context, actorID, storeID uuid.UUID) (*SubscriptionDTO, error) {
	if err := s.guard.EnsureSellerAccess(ctx, actorID, storeID); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindSubscriptionByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store has no subscription")
	}
	return NewSubscriptionDTO(sub), nil
}

// SyncFromSquare folds a gateway-reported subscription state into the local
// mirror. Webhooks and the reconciliation sweep both land here, so a repeated
// delivery of the same state is a no-op.
func (s *service) SyncFromSquare(ctx context.Context, squareSub *sq.Subscription) error {
	if squareSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square subscription required")
	}
	squareID := stringValue(squareSub.GetID())
	if squareID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "square subscription id required")
	}

	sub, err := s.repo.FindSubscriptionBySquareID(ctx, squareID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription is not tracked")
	}

	now := time.Now().UTC()
	previous := sub.Status
	applySquareState(sub, squareSub)

	store, err := s.loadStore(ctx, sub.StoreID)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update subscription")
		}
		if sub.Status == previous {
			return nil
		}
		if err := s.applyEntitlement(ctx, tx, store, sub.Status, now); err != nil {
			return err
		}
		return s.emitStateChanged(ctx, tx, sub, previous, now)
	})
}

// ReconcileDue re-checks stale subscriptions against the gateway and returns
// how many were synced. Individual failures are logged and skipped so one bad
// subscription cannot stall the sweep.
func (s *service) ReconcileDue(ctx context.Context, now time.Time, limit int) (int, error) {
	subs, err := s.repo.ListDueForReconciliation(ctx, reconcileStatuses, now.Add(-s.lookback), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list stale subscriptions")
	}

	synced := 0
	for i := range subs {
		sub := subs[i]
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"subscription_id":        sub.ID.String(),
			"square_subscription_id": sub.SquareSubscriptionID,
		})
		squareSub, err := s.square.GetSubscription(ctx, sub.SquareSubscriptionID)
		if err != nil {
			s.logger.Error(logCtx, "subscription reconcile fetch failed", err)
			continue
		}
		if err := s.SyncFromSquare(ctx, squareSub); err != nil {
			s.logger.Error(logCtx, "subscription reconcile sync failed", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// applyEntitlement keeps the store's billing flag and lifecycle status in
// step with the subscription. Losing entitlement suspends an active store;
// regaining it reactivates the store.
func (s *service) applyEntitlement(ctx context.Context, tx *gorm.DB, store *models.Store, status enums.SubscriptionStatus, now time.Time) error {
	storeRepo := s.stores.WithTx(tx)
	entitled := status.Entitled()
	if _, err := storeRepo.SetSubscriptionActive(ctx, store.ID, entitled); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set subscription flag")
	}
	if entitled {
		if store.Status != enums.StoreStatusActive {
			if _, err := storeRepo.UpdateStatus(ctx, store.ID, enums.StoreStatusActive); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: activate store")
			}
			store.Status = enums.StoreStatusActive
		}
		store.SubscriptionActive = true
		return nil
	}

	store.SubscriptionActive = false
	if store.Status != enums.StoreStatusActive {
		return nil
	}
	if _, err := storeRepo.UpdateStatus(ctx, store.ID, enums.StoreStatusSuspended); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: suspend store")
	}
	store.Status = enums.StoreStatusSuspended
	return s.pub.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStoreSuspended,
		AggregateType: enums.AggregateStore,
		AggregateID:   store.ID,
		Data: payloads.StoreSuspendedEvent{
			StoreID:     store.ID,
			Reason:      "subscription lapsed",
			SuspendedAt: now,
		},
		Version: 1,
	})
}

func (s *service) emitStateChanged(ctx context.Context, tx *gorm.DB, sub *models.Subscription, previous enums.SubscriptionStatus, now time.Time) error {
	return s.pub.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStateChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Data: payloads.SubscriptionStateChangedEvent{
			SubscriptionID: sub.ID,
			StoreID:        sub.StoreID,
			PreviousStatus: previous,
			Status:         sub.Status,
			OccurredAt:     now,
		},
		Version: 1,
	})
}

// ensureSquareCustomer returns the gateway customer for the store, creating
// and persisting one on first use. The write happens outside the subscribe
// transaction so a retried subscribe reuses the customer.
func (s *service) ensureSquareCustomer(ctx context.Context, store *models.Store) (string, error) {
	if store.SquareCustomerID != nil && strings.TrimSpace(*store.SquareCustomerID) != "" {
		return *store.SquareCustomerID, nil
	}

	params := square.CustomerCreateParams{
		CompanyName:    store.Name,
		ReferenceID:    store.ID.String(),
		IdempotencyKey: "cust-" + store.ID.String(),
	}
	if store.Email != nil {
		params.Email = *store.Email
	}
	if store.Phone != nil {
		params.PhoneNumber = *store.Phone
	}
	customer, err := s.square.CreateCustomer(ctx, params)
	if err != nil {
		return "", err
	}
	customerID := customerIDOf(customer)
	if customerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "square returned no customer id")
	}

	if err := s.stores.SetSquareCustomerID(ctx, store.ID, customerID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save square customer id")
	}
	store.SquareCustomerID = &customerID
	return customerID, nil
}

func (s *service) resolvePlan(ctx context.Context, planID string) (*models.BillingPlan, error) {
	id := strings.TrimSpace(planID)
	if id != "" {
		plan, err := s.repo.FindPlan(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load plan")
		}
		if plan == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "billing plan not found")
		}
		return plan, nil
	}
	plan, err := s.repo.FindDefaultPlan(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load default plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeAccountMisconfigured, "no default billing plan configured")
	}
	return plan, nil
}

func (s *service) ensureAdmin(ctx context.Context, actorID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.Role != enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func (s *service) loadStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	store, err := s.stores.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}

// fallbackPeriodEnd covers gateway responses without a charged-through date,
// typically a brand new subscription that has not billed yet.
func fallbackPeriodEnd(plan *models.BillingPlan, now time.Time) time.Time {
	start := now.AddDate(0, 0, plan.TrialDays)
	if plan.Interval == enums.BillingIntervalYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func customerIDOf(customer *sq.Customer) string {
	if customer == nil {
		return ""
	}
	return stringValue(customer.GetID())
}

func cardIDOf(card *sq.Card) string {
	if card == nil {
		return ""
	}
	return stringValue(card.GetID())
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
