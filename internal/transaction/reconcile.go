package transaction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bayarin/bayarin/internal/idempotency"
)

const sweepBatch = 100

// SweepResult counts what one reconciliation pass did.
type SweepResult struct {
	Checked   int
	Completed int
	Failed    int
}

// Reconciler settles transactions left pending by a crash between the insert
// and the commit.
type Reconciler struct {
	engine  *Engine
	timeout time.Duration
	now     func() time.Time
}

// NewReconciler settles transactions pending longer than timeout.
func NewReconciler(engine *Engine, timeout time.Duration) *Reconciler {
	return &Reconciler{engine: engine, timeout: timeout, now: time.Now}
}

// Sweep resolves stale pending transactions: those whose entries are on the
// ledger become success, the rest fail and free their idempotency key.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	e := r.engine
	cutoff := r.now().Add(-r.timeout)

	stale, err := e.repo.ListPending(ctx, cutoff, sweepBatch)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, tx := range stale {
		result.Checked++
		scoped := idempotency.Scope(string(tx.Type), tx.InitiatorID, tx.IdempotencyKey)

		entries, err := e.ledger.EntriesForTransaction(ctx, tx.ID)
		if err != nil {
			return result, err
		}

		if len(entries) > 0 {
			settled, err := e.repo.UpdateStatus(ctx, tx.ID, StatusPending, StatusSuccess, "")
			if errors.Is(err, ErrStatusChanged) {
				continue
			}
			if err != nil {
				return result, err
			}
			e.complete(ctx, scoped, settled)
			result.Completed++
			continue
		}

		_, err = e.repo.UpdateStatus(ctx, tx.ID, StatusPending, StatusFailed, "timed out before commit")
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			return result, err
		}
		e.release(ctx, scoped, tx.ID)
		result.Failed++
	}

	if result.Checked > 0 {
		e.logger.Info("reconciliation sweep finished",
			slog.Int("checked", result.Checked),
			slog.Int("completed", result.Completed),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}
