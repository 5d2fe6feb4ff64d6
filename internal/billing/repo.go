package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Repository persists subscriptions and billing plans.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to billing operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateSubscription inserts a new subscription row.
func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateSubscription saves the provided subscription.
func (r *Repository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub == nil {
		return fmt.Errorf("subscription is required")
	}
	return r.db.WithContext(ctx).Save(sub).Error
}

// FindSubscriptionByStore returns the newest subscription for the store, or
// (nil, nil) when the store has never subscribed.
func (r *Repository) FindSubscriptionByStore(ctx context.Context, storeID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindSubscriptionBySquareID resolves the local row for a gateway
// subscription, or (nil, nil) when it is not tracked here.
func (r *Repository) FindSubscriptionBySquareID(ctx context.Context, squareID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("square_subscription_id = ?", squareID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListDueForReconciliation returns subscriptions in the given statuses that
// have not been touched since the cutoff, oldest first.
func (r *Repository) ListDueForReconciliation(ctx context.Context, statuses []enums.SubscriptionStatus, updatedBefore time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// UpsertPlan creates or replaces a billing plan.
func (r *Repository) UpsertPlan(ctx context.Context, plan *models.BillingPlan) error {
	if plan == nil {
		return fmt.Errorf("plan is required")
	}
	return r.db.WithContext(ctx).Save(plan).Error
}

// DemoteOtherDefaults clears the default flag on every plan except keepID.
func (r *Repository) DemoteOtherDefaults(ctx context.Context, keepID string) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingPlan{}).
		Where("id <> ?", keepID).
		Update("is_default", false).Error
}

// FindPlan loads a plan by ID, or (nil, nil) when it does not exist.
func (r *Repository) FindPlan(ctx context.Context, id string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// FindDefaultPlan returns the plan new stores subscribe to, or (nil, nil)
// when no default is configured.
func (r *Repository) FindDefaultPlan(ctx context.Context) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns every configured plan.
func (r *Repository) ListPlans(ctx context.Context) ([]models.BillingPlan, error) {
	var plans []models.BillingPlan
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
