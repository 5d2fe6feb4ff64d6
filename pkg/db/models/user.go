package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/tecnoshop/storefront-backend/pkg/db/types"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// User is an account. StoreIDs lists the stores a seller owns; buyers and
// admins keep it empty.
type User struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Email        string            `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string            `gorm:"column:password_hash;not null"`
	FirstName    string            `gorm:"column:first_name;not null"`
	LastName     string            `gorm:"column:last_name;not null"`
	Phone        *string           `gorm:"column:phone"`
	Role         enums.Role        `gorm:"column:role;type:user_role;not null;default:'buyer'"`
	IsActive     bool              `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time        `gorm:"column:last_login_at"`
	StoreIDs     dbtypes.UUIDArray `gorm:"type:uuid[];column:store_ids;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
