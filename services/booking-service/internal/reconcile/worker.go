// Package reconcile repairs slot availability that drifted from the
// appointments referencing the slot.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

// Batch is the store surface one reconciliation pass needs, bound to a
// single transaction.
type Batch interface {
	ClaimReconciliation(ctx context.Context, limit int) ([]model.ReconciliationItem, error)
	GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error)
	SlotHeld(ctx context.Context, slotID string) (bool, error)
	SwapSlotAvailability(ctx context.Context, slotID string, expected, next bool) (bool, error)
	ResolveReconciliation(ctx context.Context, id int64, detail string) error
	BumpReconciliation(ctx context.Context, id int64, detail string) error
}

// Runner opens a transaction and hands fn a Batch bound to it.
type Runner interface {
	RunBatch(ctx context.Context, fn func(Batch) error) error
}

type RunnerFunc func(ctx context.Context, fn func(Batch) error) error

func (f RunnerFunc) RunBatch(ctx context.Context, fn func(Batch) error) error { return f(ctx, fn) }

type Worker struct {
	runner        Runner
	logger        *zap.Logger
	interval      time.Duration
	batchSize     int
	escalateAfter int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	// EscalateAfter is the attempt count from which an item that still
	// cannot be repaired is logged as needing manual reconciliation.
	EscalateAfter int
}

func NewWorker(runner Runner, logger *zap.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		runner:        runner,
		logger:        logger,
		interval:      cfg.Interval,
		batchSize:     cfg.BatchSize,
		escalateAfter: cfg.EscalateAfter,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("reconciliation batch failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Info("reconciliation batch", zap.Int("resolved", n))
			}
		}
	}
}

// RunOnce processes one batch and returns how many items were resolved.
// The slot's target availability is recomputed from its appointments rather
// than taken from the item, since later transitions may have superseded it.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	resolved := 0
	err := w.runner.RunBatch(ctx, func(b Batch) error {
		resolved = 0
		items, err := b.ClaimReconciliation(ctx, w.batchSize)
		if err != nil {
			return err
		}
		for _, it := range items {
			done, detail, err := w.repair(ctx, b, it)
			if err != nil {
				return err
			}
			if !done {
				if err := b.BumpReconciliation(ctx, it.ID, detail); err != nil {
					return err
				}
				w.logUnrepaired(it, detail)
				continue
			}
			if err := b.ResolveReconciliation(ctx, it.ID, detail); err != nil {
				return err
			}
			resolved++
		}
		return nil
	})
	return resolved, err
}

func (w *Worker) logUnrepaired(it model.ReconciliationItem, detail string) {
	attempts := it.Attempts + 1
	fields := []zap.Field{
		zap.Int64("item_id", it.ID),
		zap.String("time_slot_id", it.TimeSlotID),
		zap.String("kind", it.Kind),
		zap.Int("attempts", attempts),
		zap.String("detail", detail),
	}
	if attempts >= w.escalateAfter {
		w.logger.Error("manual reconciliation required: slot could not be repaired", fields...)
		return
	}
	w.logger.Info("reconciliation item left open", fields...)
}

func (w *Worker) repair(ctx context.Context, b Batch, it model.ReconciliationItem) (bool, string, error) {
	slot, err := b.GetSlot(ctx, it.TimeSlotID)
	if errors.Is(err, booking.ErrNotFound) {
		return true, "slot no longer exists", nil
	}
	if err != nil {
		return false, "", err
	}
	held, err := b.SlotHeld(ctx, it.TimeSlotID)
	if err != nil {
		return false, "", err
	}
	want := !held
	if slot.Available == want {
		return true, "slot already consistent", nil
	}
	swapped, err := b.SwapSlotAvailability(ctx, slot.ID, slot.Available, want)
	if err != nil {
		return false, "", err
	}
	if !swapped {
		return false, "slot changed during repair", nil
	}
	w.logger.Info("slot availability repaired",
		zap.String("time_slot_id", slot.ID),
		zap.String("kind", it.Kind),
		zap.Bool("available", want),
	)
	return true, "slot availability set", nil
}
