package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
	"github.com/tecnoshop/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes the stock ledger operations.
type Service interface {
	SetStock(ctx context.Context, productID uuid.UUID, availableQty int) (*models.InventoryItem, error)
	GetLevels(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	Reserve(ctx context.Context, tx *gorm.DB, params ReserveParams) ([]models.StockReservation, error)
	CommitCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error)
	ReleaseCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

type service struct {
	tx   txRunner
	repo Repository
	pub  outboxPublisher
	logg *logger.Logger
}

// NewService wires the inventory service.
func NewService(tx txRunner, repo Repository, pub outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if pub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, pub: pub, logg: logg}, nil
}

// SetStock overwrites the sellable count for a product. Reserved units are
// untouched; holds taken by in-flight checkouts keep their claim.
func (s *service) SetStock(ctx context.Context, productID uuid.UUID, availableQty int) (*models.InventoryItem, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if availableQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "available qty cannot be negative")
	}

	var item *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindItem(ctx, productID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing == nil {
			existing = &models.InventoryItem{ProductID: productID}
		}
		existing.AvailableQty = availableQty
		if err := repo.UpsertItem(ctx, existing); err != nil {
			return err
		}
		item = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) GetLevels(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	item, err := s.repo.FindItem(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, params ReserveParams) ([]models.StockReservation, error) {
	return ReserveInventory(ctx, tx, params)
}

// CommitCheckout burns the active holds for a checkout key. Already-committed
// reservations are skipped, making the operation safe to retry.
func (s *service) CommitCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error) {
	return s.settleCheckout(ctx, tx, checkoutKey, enums.ReservationStatusCommitted)
}

// ReleaseCheckout returns the active holds for a checkout key to available stock.
func (s *service) ReleaseCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string) ([]models.StockReservation, error) {
	return s.settleCheckout(ctx, tx, checkoutKey, enums.ReservationStatusReleased)
}

func (s *service) settleCheckout(ctx context.Context, tx *gorm.DB, checkoutKey string, target enums.ReservationStatus) ([]models.StockReservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if checkoutKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout key required")
	}

	repo := s.repo.WithTx(tx)
	rows, err := repo.FindActiveByCheckoutKey(ctx, checkoutKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	settled := make([]models.StockReservation, 0, len(rows))
	for _, row := range rows {
		affected, err := repo.TransitionReservation(ctx, row.ID, enums.ReservationStatusActive, target, now)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Lost the race to a sweep or a concurrent settle; nothing to apply.
			continue
		}
		switch target {
		case enums.ReservationStatusCommitted:
			affected, err = repo.ConsumeReservedUnits(ctx, row.ProductID, row.Qty)
		case enums.ReservationStatusReleased:
			affected, err = repo.ReturnUnits(ctx, row.ProductID, row.Qty)
		}
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("reserved units missing for product %s", row.ProductID))
		}
		row.Status = target
		settled = append(settled, row)
	}
	return settled, nil
}

// ExpireDue releases reservations whose hold window lapsed and records a
// reservation_expired event for each. Returns the number of rows expired.
func (s *service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	expired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindDueReservations(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			affected, err := repo.TransitionReservation(ctx, row.ID, enums.ReservationStatusActive, enums.ReservationStatusExpired, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}
			if _, err := repo.ReturnUnits(ctx, row.ProductID, row.Qty); err != nil {
				return err
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   row.ID,
				Data: payloads.ReservationExpiredEvent{
					ReservationID: row.ID,
					ProductID:     row.ProductID,
					StoreID:       row.StoreID,
					Qty:           row.Qty,
					ExpiredAt:     now,
				},
				Version: 1,
			}
			if err := s.pub.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"expired": expired})
		s.logg.Info(logCtx, "released expired stock reservations")
	}
	return expired, nil
}
