package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
)

// ListFilters describe the supported filter knobs for the browse endpoint.
type ListFilters struct {
	Status        *enums.ProductStatus `json:"status,omitempty"`
	Category      *string              `json:"category,omitempty"`
	PriceMinCents *int                 `json:"price_min_cents,omitempty"`
	PriceMaxCents *int                 `json:"price_max_cents,omitempty"`
	Query         string               `json:"q,omitempty"`
}

// ListInput captures the inputs needed to paginate/filter products for a store.
type ListInput struct {
	StoreID    uuid.UUID
	Filters    ListFilters
	Pagination pagination.Params
}

// Repository wires together product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
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

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindDetail loads the product with inventory and discount tiers.
func (r *Repository) FindDetail(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Inventory").
		Preload("VolumeDiscounts", func(db *gorm.DB) *gorm.DB {
			return db.Order("min_qty ASC")
		}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDsForStore loads products with discount tiers, scoped to one store.
func (r *Repository) FindByIDsForStore(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("VolumeDiscounts").
		Where("store_id = ? AND id IN ?", storeID, ids).
		Find(&products).Error
	return products, err
}

// FindBySKU looks up a product by its store-scoped SKU.
func (r *Repository) FindBySKU(ctx context.Context, storeID uuid.UUID, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND sku = ?", storeID, sku).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Create inserts the product row.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Update persists the full product row.
func (r *Repository) Update(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateStatus flips the lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProductStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("status", status)
	return res.RowsAffected, res.Error
}

// ReplaceVolumeDiscounts replaces all volume discounts for the product.
func (r *Repository) ReplaceVolumeDiscounts(ctx context.Context, productID uuid.UUID, tiers []models.ProductVolumeDiscount) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductVolumeDiscount{}).Error; err != nil {
		return err
	}
	if len(tiers) == 0 {
		return nil
	}
	return tx.Create(&tiers).Error
}

// List returns a page of products ordered by (created_at, id) descending.
func (r *Repository) List(ctx context.Context, input ListInput) ([]models.Product, error) {
	q := r.db.WithContext(ctx).
		Preload("Inventory").
		Preload("VolumeDiscounts").
		Where("store_id = ?", input.StoreID)

	if input.Filters.Status != nil {
		q = q.Where("status = ?", *input.Filters.Status)
	}
	if input.Filters.Category != nil {
		q = q.Where("category = ?", *input.Filters.Category)
	}
	if input.Filters.PriceMinCents != nil {
		q = q.Where("price_cents >= ?", *input.Filters.PriceMinCents)
	}
	if input.Filters.PriceMaxCents != nil {
		q = q.Where("price_cents <= ?", *input.Filters.PriceMaxCents)
	}
	if query := strings.TrimSpace(input.Filters.Query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var products []models.Product
	err = q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(input.Pagination.Limit)).
		Find(&products).Error
	return products, err
}
