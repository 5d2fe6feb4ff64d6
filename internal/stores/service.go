package stores

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/outbox/payloads"
	"github.com/tecnoshop/storefront-backend/pkg/types"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes storefront tenant operations.
type Service interface {
	CreateStore(ctx context.Context, ownerID uuid.UUID, input CreateStoreInput) (*StoreDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error)
	GetBySlug(ctx context.Context, slug string) (*StoreDTO, error)
	Update(ctx context.Context, userID, storeID uuid.UUID, input UpdateStoreInput) (*StoreDTO, error)
	Suspend(ctx context.Context, actorID, storeID uuid.UUID, reason string) (*StoreDTO, error)
	Activate(ctx context.Context, actorID, storeID uuid.UUID) (*StoreDTO, error)
	EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error
	EnsureCheckoutReady(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
}

// CreateStoreInput captures the fields to register a storefront.
type CreateStoreInput struct {
	Name        string
	Slug        string
	Description *string
	Phone       *string
	Email       *string
	Categories  []string
	Address     *types.Address
}

// UpdateStoreInput captures the allowed store fields for mutation.
type UpdateStoreInput struct {
	Name        *string
	Description *string
	Phone       *string
	Email       *string
	Categories  *[]string
	Address     *types.Address
	LogoURL     *string
	BannerURL   *string
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	users    userLoader
	pub      outboxPublisher
}

// NewService builds a store service with the provided dependencies.
func NewService(repo *Repository, dbClient *db.Client, users userLoader, pub outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if pub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, dbClient: dbClient, users: users, pub: pub}, nil
}

// CreateStore registers a storefront in pending status. It stays pending until
// a subscription entitles it.
func (s *service) CreateStore(ctx context.Context, ownerID uuid.UUID, input CreateStoreInput) (*StoreDTO, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store name required")
	}
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must be lowercase letters, digits, and hyphens")
	}

	var created *models.Store
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		store := &models.Store{
			ID:          uuid.New(),
			Name:        name,
			Slug:        slug,
			Description: input.Description,
			Phone:       input.Phone,
			Email:       input.Email,
			Status:      enums.StoreStatusPending,
			Categories:  input.Categories,
			Address:     input.Address,
			OwnerID:     ownerID,
		}
		row, err := txRepo.Create(ctx, store)
		if err != nil {
			if db.IsUniqueViolation(err, "slug") {
				return pkgerrors.New(pkgerrors.CodeConflict, "slug already in use")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert store")
		}
		created = row

		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStoreCreated,
			AggregateType: enums.AggregateStore,
			AggregateID:   row.ID,
			Data: payloads.StoreCreatedEvent{
				StoreID: row.ID,
				OwnerID: ownerID,
				Slug:    slug,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewStoreDTO(created), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error) {
	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewStoreDTO(store), nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*StoreDTO, error) {
	store, err := s.repo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return NewStoreDTO(store), nil
}

// Update applies profile mutations. Lifecycle and billing fields are managed
// by Suspend/Activate and the billing sync, not here.
func (s *service) Update(ctx context.Context, userID, storeID uuid.UUID, input UpdateStoreInput) (*StoreDTO, error) {
	if err := s.EnsureSellerAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "store name required")
		}
		store.Name = trimmed
	}
	if input.Description != nil {
		store.Description = input.Description
	}
	if input.Phone != nil {
		store.Phone = input.Phone
	}
	if input.Email != nil {
		store.Email = input.Email
	}
	if input.Categories != nil {
		store.Categories = *input.Categories
	}
	if input.Address != nil {
		store.Address = input.Address
	}
	if input.LogoURL != nil {
		store.LogoURL = input.LogoURL
	}
	if input.BannerURL != nil {
		store.BannerURL = input.BannerURL
	}

	if err := s.repo.Update(ctx, store); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update store")
	}
	return NewStoreDTO(store), nil
}

// Suspend takes the storefront offline. Only admins may do this.
func (s *service) Suspend(ctx context.Context, actorID, storeID uuid.UUID, reason string) (*StoreDTO, error) {
	if err := s.ensureAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.Status == enums.StoreStatusSuspended {
		return NewStoreDTO(store), nil
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.UpdateStatus(ctx, store.ID, enums.StoreStatusSuspended); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: suspend store")
		}
		return s.pub.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStoreSuspended,
			AggregateType: enums.AggregateStore,
			AggregateID:   store.ID,
			Data: payloads.StoreSuspendedEvent{
				StoreID:     store.ID,
				Reason:      reason,
				SuspendedAt: store.UpdatedAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	store.Status = enums.StoreStatusSuspended
	return NewStoreDTO(store), nil
}

// Activate brings a pending or suspended storefront online.
func (s *service) Activate(ctx context.Context, actorID, storeID uuid.UUID) (*StoreDTO, error) {
	if err := s.ensureAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateStatus(ctx, store.ID, enums.StoreStatusActive); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: activate store")
	}
	store.Status = enums.StoreStatusActive
	return NewStoreDTO(store), nil
}

// EnsureSellerAccess verifies the user may manage the store: the owner or an admin.
func (s *service) EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error {
	if userID == uuid.Nil || storeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and store id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.Role == enums.RoleAdmin {
		return nil
	}
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return err
	}
	if store.OwnerID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a manager of this store")
	}
	return nil
}

// EnsureCheckoutReady gates checkout on store lifecycle and billing
// entitlement. Suspended and pending stores cannot sell.
func (s *service) EnsureCheckoutReady(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	store, err := s.loadStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.Status != enums.StoreStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeAccountMisconfigured,
			fmt.Sprintf("store is %s and cannot accept orders", store.Status))
	}
	if !store.SubscriptionActive {
		return nil, pkgerrors.New(pkgerrors.CodeAccountMisconfigured, "store subscription is not active")
	}
	return store, nil
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
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}
