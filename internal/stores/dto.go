package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

// StoreDTO is the storefront payload returned to clients.
type StoreDTO struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Slug               string         `json:"slug"`
	Description        *string        `json:"description,omitempty"`
	Phone              *string        `json:"phone,omitempty"`
	Email              *string        `json:"email,omitempty"`
	Status             string         `json:"status"`
	SubscriptionActive bool           `json:"subscription_active"`
	Categories         []string       `json:"categories,omitempty"`
	Address            *types.Address `json:"address,omitempty"`
	LogoURL            *string        `json:"logo_url,omitempty"`
	BannerURL          *string        `json:"banner_url,omitempty"`
	OwnerID            uuid.UUID      `json:"owner_id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewStoreDTO maps the persisted store to its API shape.
func NewStoreDTO(store *models.Store) *StoreDTO {
	if store == nil {
		return nil
	}
	return &StoreDTO{
		ID:                 store.ID,
		Name:               store.Name,
		Slug:               store.Slug,
		Description:        store.Description,
		Phone:              store.Phone,
		Email:              store.Email,
		Status:             store.Status.String(),
		SubscriptionActive: store.SubscriptionActive,
		Categories:         append([]string{}, store.Categories...),
		Address:            store.Address,
		LogoURL:            store.LogoURL,
		BannerURL:          store.BannerURL,
		OwnerID:            store.OwnerID,
		CreatedAt:          store.CreatedAt,
		UpdatedAt:          store.UpdatedAt,
	}
}
