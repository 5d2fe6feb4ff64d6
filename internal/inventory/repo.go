package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Repository manages persistence for inventory items and stock reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	UpsertItem(ctx context.Context, item *models.InventoryItem) error
	AddStock(ctx context.Context, productID uuid.UUID, delta int) (int64, error)
	FindActiveByCheckoutKey(ctx context.Context, checkoutKey string) ([]models.StockReservation, error)
	FindDueReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.StockReservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, stampedAt time.Time) (int64, error)
	ReturnUnits(ctx context.Context, productID uuid.UUID, qty int) (int64, error)
	ConsumeReservedUnits(ctx context.Context, productID uuid.UUID, qty int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpsertItem(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// AddStock raises or lowers available_qty; the guard refuses a decrement past zero.
func (r *repository) AddStock(ctx context.Context, productID uuid.UUID, delta int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ? AND available_qty + ? >= 0", productID, delta).
		Update("available_qty", gorm.Expr("available_qty + ?", delta))
	return res.RowsAffected, res.Error
}

func (r *repository) FindActiveByCheckoutKey(ctx context.Context, checkoutKey string) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("checkout_key = ? AND status = ?", checkoutKey, enums.ReservationStatusActive).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindDueReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TransitionReservation flips a reservation's status only when it still holds
// the expected source status, so concurrent sweeps and commits cannot double-apply.
func (r *repository) TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus, stampedAt time.Time) (int64, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.ReservationStatusCommitted:
		updates["committed_at"] = stampedAt
	case enums.ReservationStatusReleased, enums.ReservationStatusExpired:
		updates["released_at"] = stampedAt
	}
	res := r.db.WithContext(ctx).Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ReturnUnits gives reserved units back to available stock.
func (r *repository) ReturnUnits(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"reserved_qty":  gorm.Expr("reserved_qty - ?", qty),
		})
	return res.RowsAffected, res.Error
}

// ConsumeReservedUnits burns reserved units on commit without touching available stock.
func (r *repository) ConsumeReservedUnits(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		Update("reserved_qty", gorm.Expr("reserved_qty - ?", qty))
	return res.RowsAffected, res.Error
}
