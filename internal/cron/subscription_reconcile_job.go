package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tecnoshop/storefront-backend/pkg/logger"
)

const defaultReconcileBatch = 50

// subscriptionReconciler is the slice of the billing service the job needs.
type subscriptionReconciler interface {
	ReconcileDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// SubscriptionReconcileJobParams configure the billing drift check.
type SubscriptionReconcileJobParams struct {
	Logger    *logger.Logger
	Billing   subscriptionReconciler
	BatchSize int
}

// NewSubscriptionReconcileJob builds the job that re-checks stale
// subscriptions against Square. Webhooks can be missed; the reconcile sweep
// makes entitlement converge anyway.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &subscriptionReconcileJob{
		logg:    params.Logger,
		billing: params.Billing,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type subscriptionReconcileJob struct {
	logg    *logger.Logger
	billing subscriptionReconciler
	batch   int
	now     func() time.Time
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	synced, err := j.billing.ReconcileDue(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("reconcile subscriptions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"synced": synced})
	j.logg.Info(logCtx, "subscription reconcile complete")
	return nil
}
