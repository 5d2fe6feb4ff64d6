package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
	"github.com/tecnoshop/storefront-backend/pkg/outbox"
)

type stubExpirer struct {
	batches []int
	calls   int
	err     error
}

func (s *stubExpirer) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.calls >= len(s.batches) {
		return 0, nil
	}
	n := s.batches[s.calls]
	s.calls++
	return n, nil
}

func TestReservationSweepDrainsInBatches(t *testing.T) {
	expirer := &stubExpirer{batches: []int{5, 5, 2}}
	job, err := NewReservationSweepJob(ReservationSweepJobParams{
		Logger:    testLogger(),
		Inventory: expirer,
		BatchSize: 5,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 sweep batches, got %d", expirer.calls)
	}
}

func TestReservationSweepPropagatesErrors(t *testing.T) {
	expirer := &stubExpirer{err: errors.New("db down")}
	job, err := NewReservationSweepJob(ReservationSweepJobParams{
		Logger:    testLogger(),
		Inventory: expirer,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type stubReconciler struct {
	synced int
	limit  int
	err    error
}

func (s *stubReconciler) ReconcileDue(ctx context.Context, now time.Time, limit int) (int, error) {
	s.limit = limit
	return s.synced, s.err
}

func TestSubscriptionReconcileJob(t *testing.T) {
	reconciler := &stubReconciler{synced: 3}
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:    testLogger(),
		Billing:   reconciler,
		BatchSize: 25,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reconciler.limit != 25 {
		t.Fatalf("batch size not passed through: %d", reconciler.limit)
	}

	reconciler.err = errors.New("square down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutboxRetentionDeletesOldRows(t *testing.T) {
	dsn := "file:cron_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	fresh := time.Now().UTC()
	seed := func(published *time.Time, attempts int, createdAt time.Time) uuid.UUID {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			PublishedAt:   published,
			AttemptCount:  attempts,
		}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
		if err := conn.Model(&models.OutboxEvent{}).
			Where("id = ?", row.ID).
			UpdateColumn("created_at", createdAt).Error; err != nil {
			t.Fatalf("age row: %v", err)
		}
		return row.ID
	}

	seed(&old, 1, old)                   // published long ago: pruned
	seed(nil, 12, old)                   // abandoned by the publisher: pruned
	keptPending := seed(nil, 2, old)     // still publishable: kept
	keptRecent := seed(&fresh, 1, fresh) // recently published: kept

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         db.NewFromConn(conn),
		Repository: outbox.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var remaining []models.OutboxEvent
	if err := conn.Find(&remaining).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", len(remaining))
	}
	survivors := map[uuid.UUID]bool{}
	for _, row := range remaining {
		survivors[row.ID] = true
	}
	if !survivors[keptPending] || !survivors[keptRecent] {
		t.Fatalf("wrong rows survived: %v", survivors)
	}
}
