package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Subscription persists Square subscription state per store.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey"`
	StoreID              uuid.UUID                `gorm:"column:store_id;type:uuid;not null;index"`
	PlanID               string                   `gorm:"column:plan_id;not null"`
	SquareSubscriptionID string                   `gorm:"column:square_subscription_id;not null;unique"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	Metadata             json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
