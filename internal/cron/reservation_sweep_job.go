package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tecnoshop/storefront-backend/pkg/logger"
)

const defaultSweepBatch = 200

// reservationExpirer is the slice of the inventory service the sweep needs.
type reservationExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReservationSweepJobParams configure the reservation expiry sweep.
type ReservationSweepJobParams struct {
	Logger    *logger.Logger
	Inventory reservationExpirer
	BatchSize int
}

// NewReservationSweepJob builds the job that releases expired stock holds.
// The sweep is the backstop for checkouts that died between reserving and
// charging, so the held units return to sale even if nothing else runs.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &reservationSweepJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg      *logger.Logger
	inventory reservationExpirer
	batch     int
	now       func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	total := 0
	// Drain in batches until a sweep comes back short.
	for {
		expired, err := j.inventory.ExpireDue(ctx, j.now().UTC(), j.batch)
		if err != nil {
			return fmt.Errorf("expire reservations: %w", err)
		}
		total += expired
		if expired < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": total})
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
