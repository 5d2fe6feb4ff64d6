package product

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
)

func mustCreateCatalogStore(t *testing.T, tx *gorm.DB) *models.Store {
	t.Helper()
	owner := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("ts_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		FirstName:    "Repo",
		LastName:     "Tester",
		Role:         enums.RoleSeller,
		IsActive:     true,
		StoreIDs:     []uuid.UUID{},
	}
	if err := tx.Create(owner).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	store := &models.Store{
		ID:      uuid.New(),
		Name:    "Repo Store",
		Slug:    "repo-store-" + uuid.NewString(),
		OwnerID: owner.ID,
		Status:  enums.StoreStatusActive,
	}
	if err := tx.Create(store).Error; err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func mustCreateCatalogProduct(t *testing.T, tx *gorm.DB, storeID uuid.UUID, priceCents int) *models.Product {
	t.Helper()
	row := &models.Product{
		StoreID:    storeID,
		SKU:        fmt.Sprintf("SKU-%s", uuid.NewString()),
		Name:       "Test Product",
		Category:   "accessories",
		Status:     enums.ProductStatusActive,
		PriceCents: priceCents,
		Currency:   enums.CurrencyUSD,
	}
	if err := tx.Create(row).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return row
}

func TestRepositoryProductFlow(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()

	store := mustCreateCatalogStore(t, tx)
	created := mustCreateCatalogProduct(t, tx, store.ID, 1999)

	found, err := repo.FindBySKU(ctx, store.ID, created.SKU)
	if err != nil {
		t.Fatalf("find by sku: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected product %s, got %s", created.ID, found.ID)
	}

	created.Name = "Updated Name"
	if _, err := repo.Update(ctx, created); err != nil {
		t.Fatalf("update product: %v", err)
	}

	if err := repo.ReplaceVolumeDiscounts(ctx, created.ID, []models.ProductVolumeDiscount{
		{ID: uuid.New(), StoreID: store.ID, ProductID: created.ID, MinQty: 5, UnitPriceCents: 1500},
	}); err != nil {
		t.Fatalf("replace discounts: %v", err)
	}

	detail, err := repo.FindDetail(ctx, created.ID)
	if err != nil {
		t.Fatalf("find detail: %v", err)
	}
	if detail.Name != "Updated Name" {
		t.Fatalf("expected updated name, got %s", detail.Name)
	}
	if len(detail.VolumeDiscounts) != 1 {
		t.Fatalf("expected 1 discount tier, got %d", len(detail.VolumeDiscounts))
	}

	if _, err := repo.UpdateStatus(ctx, created.ID, enums.ProductStatusArchived); err != nil {
		t.Fatalf("archive product: %v", err)
	}
	archived, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if archived.Status != enums.ProductStatusArchived {
		t.Fatalf("expected archived, got %s", archived.Status)
	}
}

func TestRepositoryListPagination(t *testing.T) {
	conn := openTestDB(t)
	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})

	repo := NewRepository(tx)
	ctx := context.Background()

	store := mustCreateCatalogStore(t, tx)
	for i := 0; i < 5; i++ {
		mustCreateCatalogProduct(t, tx, store.ID, 1000+i)
	}

	page, err := repo.List(ctx, ListInput{
		StoreID:    store.ID,
		Pagination: pagination.Params{Limit: 2},
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	// Limit plus the buffer row used to detect the next page.
	if len(page) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page))
	}

	minPrice := 1003
	filtered, err := repo.List(ctx, ListInput{
		StoreID:    store.ID,
		Filters:    ListFilters{PriceMinCents: &minPrice},
		Pagination: pagination.Params{Limit: 10},
	})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(filtered))
	}
}
