package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

// Store represents the canonical tenant storefront.
type Store struct {
	ID                 uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name               string            `gorm:"column:name;not null"`
	Slug               string            `gorm:"column:slug;not null;uniqueIndex"`
	Description        *string           `gorm:"column:description"`
	Phone              *string           `gorm:"column:phone"`
	Email              *string           `gorm:"column:email"`
	Status             enums.StoreStatus `gorm:"column:status;type:store_status;not null;default:'pending'"`
	SquareCustomerID   *string           `gorm:"column:square_customer_id"`
	SquareLocationID   *string           `gorm:"column:square_location_id"`
	SubscriptionActive bool              `gorm:"column:subscription_active;not null;default:false"`
	Categories         pq.StringArray    `gorm:"column:categories;type:text[]"`
	Address            *types.Address    `gorm:"column:address;type:address_t"`
	LogoURL            *string           `gorm:"column:logo_url"`
	BannerURL          *string           `gorm:"column:banner_url"`
	OwnerID            uuid.UUID         `gorm:"column:owner;type:uuid;not null"`
	LastActiveAt       *time.Time        `gorm:"column:last_active_at"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
