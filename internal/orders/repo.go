package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/pagination"
)

// Repository handles order and charge persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to order operations.
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

// NextOrderNumber allocates the next human-facing order number. Postgres uses
// the dedicated sequence; sqlite has no sequences, so tests fall back to a
// max scan inside the caller's transaction.
func (r *Repository) NextOrderNumber(ctx context.Context) (int64, error) {
	var number int64
	if r.db.Dialector.Name() == "postgres" {
		err := r.db.WithContext(ctx).Raw("SELECT nextval('order_number_seq')").Scan(&number).Error
		return number, err
	}
	err := r.db.WithContext(ctx).Raw("SELECT COALESCE(MAX(order_number), 999) + 1 FROM orders").Scan(&number).Error
	return number, err
}

// Create persists the order together with its line items.
func (r *Repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// CreateCharge persists a charge row.
func (r *Repository) CreateCharge(ctx context.Context, charge *models.Charge) (*models.Charge, error) {
	if err := r.db.WithContext(ctx).Create(charge).Error; err != nil {
		return nil, err
	}
	return charge, nil
}

// FindByID loads an order with its line items and charges.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Charges", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIdempotencyKey loads the order created under a checkout key, if any.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Charges").
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus flips an order's status only when it still holds the
// expected source status. Lifecycle timestamps are stamped alongside.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, stampedAt time.Time) (int64, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.OrderStatusPaid:
		updates["paid_at"] = stampedAt
	case enums.OrderStatusFulfilled:
		updates["fulfilled_at"] = stampedAt
	case enums.OrderStatusCanceled:
		updates["canceled_at"] = stampedAt
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// MarkChargeRefunded records the gateway refund against the charge.
func (r *Repository) MarkChargeRefunded(ctx context.Context, chargeID uuid.UUID, refundID string, refundedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ?", chargeID).
		Updates(map[string]any{
			"status":           enums.ChargeStatusRefunded,
			"square_refund_id": refundID,
			"refunded_at":      refundedAt,
		}).Error
}

// ListByBuyer returns the buyer's orders, newest first, cursor-paginated.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, params)
}

// ListByStore returns the store's orders, newest first, cursor-paginated.
func (r *Repository) ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	return r.list(ctx, "store_id = ?", storeID, params)
}

func (r *Repository) list(ctx context.Context, scope string, scopeID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where(scope, scopeID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}
