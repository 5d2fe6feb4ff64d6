package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
)

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	client := db.NewFromConn(conn)
	pub := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(client, NewRepository(conn), pub, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestServiceSetStockAndGetLevels(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	productID := uuid.New()

	item, err := svc.SetStock(ctx, productID, 12)
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if item.AvailableQty != 12 {
		t.Fatalf("unexpected qty %d", item.AvailableQty)
	}

	// Overwrite does not disturb reserved units.
	if err := conn.Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("reserved_qty", 3).Error; err != nil {
		t.Fatalf("seed reserved: %v", err)
	}
	if _, err := svc.SetStock(ctx, productID, 7); err != nil {
		t.Fatalf("set stock again: %v", err)
	}

	levels, err := svc.GetLevels(ctx, productID)
	if err != nil {
		t.Fatalf("get levels: %v", err)
	}
	if levels.AvailableQty != 7 || levels.ReservedQty != 3 {
		t.Fatalf("unexpected levels %+v", levels)
	}
}

func TestServiceCommitCheckout(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	productID := uuid.New()

	if err := conn.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 2, ReservedQty: 3}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	row := seedReservation(t, conn, productID, 3, enums.ReservationStatusActive, time.Now().Add(10*time.Minute))

	err := conn.Transaction(func(tx *gorm.DB) error {
		settled, terr := svc.CommitCheckout(ctx, tx, row.CheckoutKey)
		if terr != nil {
			return terr
		}
		if len(settled) != 1 {
			t.Fatalf("expected 1 settled reservation, got %d", len(settled))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	// Committed units leave reserved without returning to available.
	if item.AvailableQty != 2 || item.ReservedQty != 0 {
		t.Fatalf("unexpected inventory %+v", item)
	}

	var stored models.StockReservation
	if err := conn.First(&stored, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if stored.Status != enums.ReservationStatusCommitted || stored.CommittedAt == nil {
		t.Fatalf("unexpected reservation %+v", stored)
	}

	// Second commit is a no-op.
	err = conn.Transaction(func(tx *gorm.DB) error {
		settled, terr := svc.CommitCheckout(ctx, tx, row.CheckoutKey)
		if terr != nil {
			return terr
		}
		if len(settled) != 0 {
			t.Fatalf("expected idempotent commit, settled %d", len(settled))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
}

func TestServiceReleaseCheckout(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	productID := uuid.New()

	if err := conn.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 1, ReservedQty: 4}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	row := seedReservation(t, conn, productID, 4, enums.ReservationStatusActive, time.Now().Add(10*time.Minute))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.ReleaseCheckout(ctx, tx, row.CheckoutKey)
		return terr
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 5 || item.ReservedQty != 0 {
		t.Fatalf("unexpected inventory %+v", item)
	}

	var stored models.StockReservation
	if err := conn.First(&stored, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if stored.Status != enums.ReservationStatusReleased || stored.ReleasedAt == nil {
		t.Fatalf("unexpected reservation %+v", stored)
	}
}

func TestServiceExpireDue(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	productID := uuid.New()
	now := time.Now()

	if err := conn.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 0, ReservedQty: 6}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	dueA := seedReservation(t, conn, productID, 2, enums.ReservationStatusActive, now.Add(-time.Minute))
	dueB := seedReservation(t, conn, productID, 3, enums.ReservationStatusActive, now.Add(-time.Hour))
	fresh := seedReservation(t, conn, productID, 1, enums.ReservationStatusActive, now.Add(time.Hour))

	expired, err := svc.ExpireDue(ctx, now, 100)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired, got %d", expired)
	}

	var item models.InventoryItem
	if err := conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 5 || item.ReservedQty != 1 {
		t.Fatalf("unexpected inventory %+v", item)
	}

	for _, id := range []uuid.UUID{dueA.ID, dueB.ID} {
		var stored models.StockReservation
		if err := conn.First(&stored, "id = ?", id).Error; err != nil {
			t.Fatalf("load reservation: %v", err)
		}
		if stored.Status != enums.ReservationStatusExpired {
			t.Fatalf("expected expired status, got %s", stored.Status)
		}
	}
	var untouched models.StockReservation
	if err := conn.First(&untouched, "id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("load fresh reservation: %v", err)
	}
	if untouched.Status != enums.ReservationStatusActive {
		t.Fatalf("fresh reservation should stay active, got %s", untouched.Status)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventReservationExpired).
		Count(&events).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if events != 2 {
		t.Fatalf("expected 2 outbox events, got %d", events)
	}

	// A second sweep finds nothing.
	expired, err = svc.ExpireDue(ctx, now, 100)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected idempotent sweep, got %d", expired)
	}
}
