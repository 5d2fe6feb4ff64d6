package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
)

// Service exposes seller catalog management operations.
type Service interface {
	CreateProduct(ctx context.Context, userID, storeID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, userID, storeID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	SetStatus(ctx context.Context, userID, storeID, productID uuid.UUID, status enums.ProductStatus) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListInput) (*ListResult, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	SKU                 string
	Name                string
	Description         *string
	Brand               *string
	Category            string
	Images              []string
	PriceCents          int
	CompareAtPriceCents *int
	Currency            enums.Currency
	MaxPerOrder         int
	AvailableQty        int
	VolumeDiscounts     []VolumeDiscountInput
	Publish             bool
}

// VolumeDiscountInput defines a tiered unit price for a minimum quantity.
type VolumeDiscountInput struct {
	MinQty         int
	UnitPriceCents int
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	SKU                 *string
	Name                *string
	Description         *string
	Brand               *string
	Category            *string
	Images              *[]string
	PriceCents          *int
	CompareAtPriceCents *int
	MaxPerOrder         *int
	VolumeDiscounts     *[]VolumeDiscountInput
}

// ListResult carries one catalog page and the cursor to the next.
type ListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type storeGuard interface {
	EnsureSellerAccess(ctx context.Context, userID, storeID uuid.UUID) error
}

type service struct {
	repo       *Repository
	dbClient   *db.Client
	storeGuard storeGuard
}

// NewService constructs a product service instance.
func NewService(repo *Repository, dbClient *db.Client, guard storeGuard) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if guard == nil {
		return nil, fmt.Errorf("store guard required")
	}
	return &service{repo: repo, dbClient: dbClient, storeGuard: guard}, nil
}

// CreateProduct creates the product with its inventory row and discount tiers.
func (s *service) CreateProduct(ctx context.Context, userID, storeID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if err := s.storeGuard.EnsureSellerAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var createdID uuid.UUID
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		if _, err := txRepo.FindBySKU(ctx, storeID, input.SKU); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "sku already in use")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		status := enums.ProductStatusDraft
		if input.Publish {
			status = enums.ProductStatusActive
		}
		row := &models.Product{
			ID:                  uuid.New(),
			StoreID:             storeID,
			SKU:                 strings.TrimSpace(input.SKU),
			Name:                strings.TrimSpace(input.Name),
			Description:         input.Description,
			Brand:               input.Brand,
			Category:            input.Category,
			Images:              nonNilStrings(input.Images),
			Status:              status,
			PriceCents:          input.PriceCents,
			CompareAtPriceCents: input.CompareAtPriceCents,
			Currency:            input.Currency,
			MaxPerOrder:         input.MaxPerOrder,
		}
		created, err := txRepo.Create(ctx, row)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		createdID = created.ID

		inventory := &models.InventoryItem{
			ProductID:    created.ID,
			AvailableQty: input.AvailableQty,
		}
		if err := tx.WithContext(ctx).Create(inventory).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert inventory")
		}

		if len(input.VolumeDiscounts) > 0 {
			tiers := buildTiers(storeID, created.ID, input.VolumeDiscounts)
			if err := txRepo.ReplaceVolumeDiscounts(ctx, created.ID, tiers); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert volume discounts")
			}
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}

	return s.GetProduct(ctx, createdID)
}

// UpdateProduct applies the provided fields to an existing product.
func (s *service) UpdateProduct(ctx context.Context, userID, storeID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if err := s.storeGuard.EnsureSellerAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}
	if input.VolumeDiscounts != nil {
		if err := validateTiers(*input.VolumeDiscounts); err != nil {
			return nil, err
		}
	}

	product, err := s.loadStoreProduct(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		applyUpdate(product, input)
		if product.PriceCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
		}
		if _, err := txRepo.Update(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}

		if input.VolumeDiscounts != nil {
			tiers := buildTiers(storeID, product.ID, *input.VolumeDiscounts)
			if err := txRepo.ReplaceVolumeDiscounts(ctx, product.ID, tiers); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: replace volume discounts")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(ctx, product.ID)
}

// SetStatus moves the product through its lifecycle (draft/active/archived).
// Archiving is the terminal removal path; rows are never hard-deleted because
// order line snapshots reference them.
func (s *service) SetStatus(ctx context.Context, userID, storeID, productID uuid.UUID, status enums.ProductStatus) (*ProductDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid product status %q", status))
	}
	if err := s.storeGuard.EnsureSellerAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}
	product, err := s.loadStoreProduct(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if product.Status == enums.ProductStatusArchived && status != enums.ProductStatusArchived {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "archived products cannot be restored")
	}

	if _, err := s.repo.UpdateStatus(ctx, product.ID, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product status")
	}
	return s.GetProduct(ctx, product.ID)
}

// GetProduct loads the full product detail.
func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindDetail(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return NewProductDTO(product), nil
}

// ListProducts returns one page of the store catalog.
func (s *service) ListProducts(ctx context.Context, input ListInput) (*ListResult, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}

	rows, err := s.repo.List(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	result := &ListResult{Products: make([]ProductDTO, 0, len(rows))}
	for i := range rows {
		if i == limit {
			last := rows[limit-1]
			result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: last.CreatedAt,
				ID:        last.ID,
			})
			break
		}
		result.Products = append(result.Products, *NewProductDTO(&rows[i]))
	}
	return result, nil
}

func (s *service) loadStoreProduct(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to store")
	}
	return product, nil
}

func validateCreateInput(input CreateProductInput) error {
	if strings.TrimSpace(input.SKU) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.PriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.AvailableQty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "available qty cannot be negative")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	return validateTiers(input.VolumeDiscounts)
}

func validateTiers(tiers []VolumeDiscountInput) error {
	seen := make(map[int]struct{}, len(tiers))
	for _, tier := range tiers {
		if tier.MinQty < 2 {
			return pkgerrors.New(pkgerrors.CodeValidation, "volume discount min_qty must be at least 2")
		}
		if tier.UnitPriceCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "volume discount unit price must be positive")
		}
		if _, dup := seen[tier.MinQty]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate volume discount for min_qty %d", tier.MinQty))
		}
		seen[tier.MinQty] = struct{}{}
	}
	return nil
}

func buildTiers(storeID, productID uuid.UUID, inputs []VolumeDiscountInput) []models.ProductVolumeDiscount {
	tiers := make([]models.ProductVolumeDiscount, len(inputs))
	for i, tier := range inputs {
		tiers[i] = models.ProductVolumeDiscount{
			ID:             uuid.New(),
			StoreID:        storeID,
			ProductID:      productID,
			MinQty:         tier.MinQty,
			UnitPriceCents: tier.UnitPriceCents,
		}
	}
	return tiers
}

func applyUpdate(product *models.Product, input UpdateProductInput) {
	if input.SKU != nil {
		product.SKU = strings.TrimSpace(*input.SKU)
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Brand != nil {
		product.Brand = input.Brand
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Images != nil {
		product.Images = nonNilStrings(*input.Images)
	}
	if input.PriceCents != nil {
		product.PriceCents = *input.PriceCents
	}
	if input.CompareAtPriceCents != nil {
		product.CompareAtPriceCents = input.CompareAtPriceCents
	}
	if input.MaxPerOrder != nil {
		product.MaxPerOrder = *input.MaxPerOrder
	}
}

// nonNilStrings keeps array columns non-null: an omitted list is stored as
// an empty array, never NULL.
func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
