package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
)

// PlanDTO is the public shape of a billing plan.
type PlanDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Interval     string          `json:"interval"`
	TrialDays    int             `json:"trial_days"`
	PriceAmount  decimal.Decimal `json:"price_amount"`
	CurrencyCode string          `json:"currency_code"`
	Features     []string        `json:"features,omitempty"`
	IsDefault    bool            `json:"is_default"`
}

// NewPlanDTO maps a persisted plan to its API shape. The Square variation ID
// stays internal.
func NewPlanDTO(plan *models.BillingPlan) *PlanDTO {
	if plan == nil {
		return nil
	}
	return &PlanDTO{
		ID:           plan.ID,
		Name:         plan.Name,
		Interval:     plan.Interval.String(),
		TrialDays:    plan.TrialDays,
		PriceAmount:  plan.PriceAmount,
		CurrencyCode: plan.CurrencyCode,
		Features:     append([]string{}, plan.Features...),
		IsDefault:    plan.IsDefault,
	}
}

// SubscriptionDTO is the public shape of a store subscription.
type SubscriptionDTO struct {
	ID                 uuid.UUID  `json:"id"`
	StoreID            uuid.UUID  `json:"store_id"`
	PlanID             string     `json:"plan_id"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewSubscriptionDTO maps a persisted subscription to its API shape.
func NewSubscriptionDTO(sub *models.Subscription) *SubscriptionDTO {
	if sub == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:                 sub.ID,
		StoreID:            sub.StoreID,
		PlanID:             sub.PlanID,
		Status:             sub.Status.String(),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		CreatedAt:          sub.CreatedAt,
	}
}

// SubscribeInput starts a subscription for a store. CardToken is the
// single-use payment token produced by the Square web SDK.
type SubscribeInput struct {
	StoreID        uuid.UUID `json:"store_id" validate:"required"`
	PlanID         string    `json:"plan_id" validate:"omitempty"`
	CardToken      string    `json:"card_token" validate:"required"`
	CardholderName string    `json:"cardholder_name" validate:"omitempty"`
}

// PlanInput creates or replaces a billing plan. Admin only.
type PlanInput struct {
	ID                  string          `json:"id" validate:"required"`
	Name                string          `json:"name" validate:"required"`
	SquareBillingPlanID string          `json:"square_billing_plan_id" validate:"required"`
	IsDefault           bool            `json:"is_default"`
	TrialDays           int             `json:"trial_days" validate:"gte=0"`
	Interval            string          `json:"interval" validate:"required,oneof=monthly yearly"`
	PriceAmount         decimal.Decimal `json:"price_amount"`
	CurrencyCode        string          `json:"currency_code"`
	Features            []string        `json:"features,omitempty"`
}
