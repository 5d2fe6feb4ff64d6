package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
)

func TestReserveInventory(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productA := uuid.New()
	productB := uuid.New()

	for _, item := range []models.InventoryItem{
		{ProductID: productA, AvailableQty: 5},
		{ProductID: productB, AvailableQty: 1},
	} {
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}

	params := ReserveParams{
		StoreID:     uuid.New(),
		BuyerID:     uuid.New(),
		CheckoutKey: "ck-1",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		Requests: []ReservationRequest{
			{ProductID: productA, Qty: 3},
			{ProductID: productB, Qty: 1},
		},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		reservations, terr := ReserveInventory(ctx, tx, params)
		if terr != nil {
			return terr
		}
		if len(reservations) != 2 {
			t.Fatalf("expected 2 reservations, got %d", len(reservations))
		}
		for _, res := range reservations {
			if res.CheckoutKey != "ck-1" {
				t.Fatalf("unexpected checkout key %q", res.CheckoutKey)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reserve transaction: %v", err)
	}

	var invA, invB models.InventoryItem
	if err := db.First(&invA, "product_id = ?", productA).Error; err != nil {
		t.Fatalf("load inventory a: %v", err)
	}
	if err := db.First(&invB, "product_id = ?", productB).Error; err != nil {
		t.Fatalf("load inventory b: %v", err)
	}
	if invA.AvailableQty != 2 || invA.ReservedQty != 3 {
		t.Fatalf("unexpected inventory a state: %+v", invA)
	}
	if invB.AvailableQty != 0 || invB.ReservedQty != 1 {
		t.Fatalf("unexpected inventory b state: %+v", invB)
	}
}

func TestReserveInventoryInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productA := uuid.New()
	productB := uuid.New()

	for _, item := range []models.InventoryItem{
		{ProductID: productA, AvailableQty: 5},
		{ProductID: productB, AvailableQty: 1},
	} {
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}

	params := ReserveParams{
		StoreID:     uuid.New(),
		BuyerID:     uuid.New(),
		CheckoutKey: "ck-2",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		Requests: []ReservationRequest{
			{ProductID: productA, Qty: 2},
			{ProductID: productB, Qty: 3},
		},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := ReserveInventory(ctx, tx, params)
		return terr
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	detail, ok := typed.Details().(InsufficientStockDetail)
	if !ok {
		t.Fatalf("unexpected details type %T", typed.Details())
	}
	if detail.ProductID != productB || detail.RequestedQty != 3 || detail.AvailableQty != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	// The whole batch must roll back: product A keeps its full stock.
	var invA models.InventoryItem
	if err := db.First(&invA, "product_id = ?", productA).Error; err != nil {
		t.Fatalf("load inventory a: %v", err)
	}
	if invA.AvailableQty != 5 || invA.ReservedQty != 0 {
		t.Fatalf("expected rollback, got %+v", invA)
	}
	var count int64
	if err := db.Model(&models.StockReservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no reservations, found %d", count)
	}
}

func TestReserveInventoryLastUnitAdmitsExactlyOne(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	if err := db.Create(&models.InventoryItem{ProductID: product, AvailableQty: 1}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	reserve := func(key string) error {
		return db.Transaction(func(tx *gorm.DB) error {
			_, terr := ReserveInventory(ctx, tx, ReserveParams{
				StoreID:     uuid.New(),
				BuyerID:     uuid.New(),
				CheckoutKey: key,
				ExpiresAt:   time.Now().Add(15 * time.Minute),
				Requests:    []ReservationRequest{{ProductID: product, Qty: 1}},
			})
			return terr
		})
	}

	// Two checkouts contend for the final unit: the guarded UPDATE admits the
	// first and turns the second away.
	if err := reserve("ck-winner"); err != nil {
		t.Fatalf("first reservation: %v", err)
	}
	err := reserve("ck-loser")
	if err == nil {
		t.Fatal("second reservation took the same unit")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 0 || item.ReservedQty != 1 {
		t.Fatalf("unexpected inventory state: %+v", item)
	}
	var holds int64
	if err := db.Model(&models.StockReservation{}).
		Where("status = ?", enums.ReservationStatusActive).
		Count(&holds).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if holds != 1 {
		t.Fatalf("expected exactly one active hold, found %d", holds)
	}

	// Once the winner releases, the unit is takeable again.
	svc := newTestService(t, db)
	if err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.ReleaseCheckout(ctx, tx, "ck-winner")
		return terr
	}); err != nil {
		t.Fatalf("release winner: %v", err)
	}
	if err := reserve("ck-retry"); err != nil {
		t.Fatalf("reservation after release: %v", err)
	}
}

func TestReserveInventoryUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	params := ReserveParams{
		StoreID:     uuid.New(),
		BuyerID:     uuid.New(),
		CheckoutKey: "ck-3",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		Requests:    []ReservationRequest{{ProductID: uuid.New(), Qty: 1}},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := ReserveInventory(ctx, tx, params)
		return terr
	})
	if err == nil {
		t.Fatal("expected error for unknown product")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeProductUnavailable {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveInventoryInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	if err := db.Create(&models.InventoryItem{ProductID: product, AvailableQty: 5}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	params := ReserveParams{
		StoreID:     uuid.New(),
		BuyerID:     uuid.New(),
		CheckoutKey: "ck-4",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		Requests:    []ReservationRequest{{ProductID: product, Qty: 0}},
	}

	_, err := ReserveInventory(ctx, db, params)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.InventoryItem{},
		&models.StockReservation{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func seedReservation(t *testing.T, conn *gorm.DB, productID uuid.UUID, qty int, status enums.ReservationStatus, expiresAt time.Time) models.StockReservation {
	t.Helper()
	row := models.StockReservation{
		ID:          uuid.New(),
		ProductID:   productID,
		StoreID:     uuid.New(),
		BuyerID:     uuid.New(),
		CheckoutKey: "ck-" + uuid.NewString(),
		Qty:         qty,
		Status:      status,
		ExpiresAt:   expiresAt,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return row
}
