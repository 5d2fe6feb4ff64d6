package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
)

// UserDTO is the public shape of a user. The password hash never leaves the
// persistence layer.
type UserDTO struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Phone       *string     `json:"phone,omitempty"`
	Role        string      `json:"role"`
	IsActive    bool        `json:"is_active"`
	StoreIDs    []uuid.UUID `json:"store_ids,omitempty"`
	LastLoginAt *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FromModel maps the persisted user to its API shape.
func FromModel(user *models.User) *UserDTO {
	if user == nil {
		return nil
	}
	return &UserDTO{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		Role:        user.Role.String(),
		IsActive:    user.IsActive,
		StoreIDs:    append([]uuid.UUID{}, user.StoreIDs...),
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
