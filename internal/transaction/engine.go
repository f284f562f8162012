package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/funding"
	"github.com/bayarin/bayarin/internal/idempotency"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/notification"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

const (
	defaultMaxAttempts   = 3
	defaultBackoff       = 20 * time.Millisecond
	defaultDuplicateWait = 2 * time.Second
	duplicatePoll        = 50 * time.Millisecond
	publishTimeout       = 2 * time.Second
)

// PINVerifier checks a user's transaction PIN.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, userID, pin string) error
}

// Dependencies wires an Engine.
type Dependencies struct {
	Repository       Repository
	Wallets          wallet.Registry
	Ledger           ledger.Store
	Tx               txn.Manager
	Tracker          idempotency.Tracker
	Channels         funding.Authorizer
	PINs             PINVerifier
	Events           notification.Publisher
	Logger           *slog.Logger
	Currency         string
	ClearingWalletID string
}

// Engine executes topups, transfers, refunds and reversals.
type Engine struct {
	repo     Repository
	wallets  wallet.Registry
	ledger   ledger.Store
	tx       txn.Manager
	tracker  idempotency.Tracker
	channels funding.Authorizer
	pins     PINVerifier
	events   notification.Publisher
	logger   *slog.Logger
	currency string
	clearing string

	maxAttempts   int
	backoff       time.Duration
	duplicateWait time.Duration
}

// NewEngine builds an Engine.
func NewEngine(deps Dependencies) *Engine {
	events := deps.Events
	if events == nil {
		events = notification.NewLoggerPublisher(deps.Logger)
	}
	return &Engine{
		repo:          deps.Repository,
		wallets:       deps.Wallets,
		ledger:        deps.Ledger,
		tx:            deps.Tx,
		tracker:       deps.Tracker,
		channels:      deps.Channels,
		pins:          deps.PINs,
		events:        events,
		logger:        deps.Logger,
		currency:      deps.Currency,
		clearing:      deps.ClearingWalletID,
		maxAttempts:   defaultMaxAttempts,
		backoff:       defaultBackoff,
		duplicateWait: defaultDuplicateWait,
	}
}

// Result is the outcome of a money movement. Duplicate is set when the
// idempotency key had already been used and Transaction is the original.
type Result struct {
	Transaction Transaction
	Duplicate   bool
}

// leg is one side of a double-entry posting.
type leg struct {
	walletID    string
	entryType   ledger.EntryType
	amount      int64
	description string
}

// plan is a fully resolved money movement ready to commit.
type plan struct {
	tx   Transaction
	legs []leg
	// guard runs first inside the unit; an error aborts the commit.
	guard func(ctx context.Context) error
	// hooks run inside the unit after the entries are appended.
	hooks []func(ctx context.Context, committed Transaction) error
	// after runs once the unit committed.
	after func(ctx context.Context, committed Transaction)
}

// request is an operation whose plan is built only once its key is held,
// so a duplicate never repeats side effects such as channel authorization.
type request struct {
	typ         Type
	initiatorID string
	key         string
	build       func(ctx context.Context) (plan, error)
}

func (e *Engine) execute(ctx context.Context, req request) (Result, error) {
	id := uuid.NewString()
	scoped := idempotency.Scope(string(req.typ), req.initiatorID, req.key)

	if err := e.tracker.Reserve(ctx, scoped, id); err != nil {
		var exists *idempotency.AlreadyExistsError
		if errors.As(err, &exists) {
			return e.duplicate(ctx, exists)
		}
		return Result{}, apperr.Storage(err)
	}

	// A tracker key may have expired while the transaction it guarded is
	// still on record.
	existing, err := e.repo.FindByIdempotencyKey(ctx, req.initiatorID, req.typ, req.key)
	switch {
	case err == nil:
		e.release(ctx, scoped, id)
		return e.settled(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		e.release(ctx, scoped, id)
		return Result{}, apperr.Storage(err)
	}

	p, err := req.build(ctx)
	if err != nil {
		e.release(ctx, scoped, id)
		return Result{}, apperr.Storage(err)
	}

	now := time.Now().UTC()
	p.tx.ID = id
	p.tx.Type = req.typ
	p.tx.InitiatorID = req.initiatorID
	p.tx.IdempotencyKey = req.key
	p.tx.Currency = e.currency
	p.tx.Status = StatusPending
	p.tx.CreatedAt = now
	p.tx.UpdatedAt = now

	if err := e.repo.Create(ctx, p.tx); err != nil {
		e.release(ctx, scoped, id)
		if errors.Is(err, ErrDuplicateKey) {
			if existing, findErr := e.repo.FindByIdempotencyKey(ctx, req.initiatorID, req.typ, req.key); findErr == nil {
				return e.settled(ctx, existing.ID)
			}
		}
		return Result{}, apperr.Storage(err)
	}

	committed, err := e.commit(ctx, p)
	if err != nil {
		err = apperr.Storage(err)
		e.fail(ctx, p.tx, scoped, err)
		return Result{}, err
	}

	e.complete(ctx, scoped, committed)
	if p.after != nil {
		p.after(ctx, committed)
	}
	e.publish(ctx, notification.Event{
		Kind:          notification.KindTransactionCompleted,
		TransactionID: committed.ID,
		Type:          string(committed.Type),
		Status:        string(committed.Status),
		Amount:        committed.Amount,
		FromWalletID:  committed.FromWalletID,
		ToWalletID:    committed.ToWalletID,
		ActorID:       committed.InitiatorID,
		OccurredAt:    committed.UpdatedAt,
	})
	return Result{Transaction: committed}, nil
}

// commit retries the atomic unit on lost compare-and-swap races.
func (e *Engine) commit(ctx context.Context, p plan) (Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		committed, err := e.attempt(ctx, p)
		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return Transaction{}, err
		}
		lastErr = err
		e.logger.Debug("transaction conflict, retrying",
			slog.String("transaction_id", p.tx.ID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Transaction{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * e.backoff):
		}
	}
	return Transaction{}, apperr.Storage(fmt.Errorf("retries exhausted after %d attempts: %v", e.maxAttempts, lastErr))
}

// attempt reads an optimistic snapshot of every user wallet, then applies
// the plan in one unit. A wallet that moved since the snapshot fails the
// compare-and-swap with a conflict.
func (e *Engine) attempt(ctx context.Context, p plan) (Transaction, error) {
	deltas := make(map[string]int64, len(p.legs))
	for _, l := range p.legs {
		if l.entryType == ledger.Debit {
			deltas[l.walletID] -= l.amount
		} else {
			deltas[l.walletID] += l.amount
		}
	}
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshot := make(map[string]wallet.Wallet, len(ids))
	for _, id := range ids {
		if id == e.clearing {
			continue
		}
		w, err := e.wallets.Get(ctx, id)
		if err != nil {
			return Transaction{}, err
		}
		if !w.IsActive() {
			return Transaction{}, wallet.ErrNotActive
		}
		if !w.AllowsOverdraft() && w.Balance+deltas[id] < 0 {
			return Transaction{}, wallet.ErrInsufficient
		}
		snapshot[id] = w
	}

	var committed Transaction
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if p.guard != nil {
			if err := p.guard(ctx); err != nil {
				return err
			}
		}
		if _, ok := deltas[e.clearing]; ok {
			// the clearing wallet takes part in every topup, so it is
			// serialized instead of raced
			w, err := e.wallets.GetForUpdate(ctx, e.clearing)
			if err != nil {
				return err
			}
			snapshot[e.clearing] = w
		}

		for _, id := range ids {
			if _, err := e.wallets.AdjustBalance(ctx, id, deltas[id], snapshot[id].Balance); err != nil {
				return err
			}
		}

		running := make(map[string]int64, len(ids))
		for _, id := range ids {
			running[id] = snapshot[id].Balance
		}
		entries := make([]ledger.Entry, 0, len(p.legs))
		for _, l := range p.legs {
			before := running[l.walletID]
			after := before + l.amount
			if l.entryType == ledger.Debit {
				after = before - l.amount
			}
			running[l.walletID] = after
			entries = append(entries, ledger.Entry{
				ID:            uuid.NewString(),
				TransactionID: p.tx.ID,
				WalletID:      l.walletID,
				Type:          l.entryType,
				Amount:        l.amount,
				BalanceBefore: before,
				BalanceAfter:  after,
				Description:   l.description,
			})
		}
		if err := e.ledger.AppendEntries(ctx, entries); err != nil {
			return err
		}

		var err error
		committed, err = e.repo.UpdateStatus(ctx, p.tx.ID, StatusPending, StatusSuccess, "")
		if err != nil {
			return err
		}
		for _, hook := range p.hooks {
			if err := hook(ctx, committed); err != nil {
				return err
			}
		}
		return nil
	})
	return committed, err
}

// fail records the failure outside the request's cancellation so a client
// disconnect cannot leave the transaction pending.
func (e *Engine) fail(ctx context.Context, tx Transaction, scoped string, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := failureReason(cause)

	failed, err := e.repo.UpdateStatus(ctx, tx.ID, StatusPending, StatusFailed, reason)
	if err != nil {
		e.logger.Error("failed to mark transaction failed",
			slog.String("transaction_id", tx.ID),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		// the unit may have committed before the error surfaced
		if current, getErr := e.repo.Get(ctx, tx.ID); getErr == nil && current.Status == StatusSuccess {
			e.complete(ctx, scoped, current)
		}
		return
	}
	e.release(ctx, scoped, tx.ID)

	level := slog.LevelWarn
	if errors.Is(cause, apperr.ErrStorage) {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "transaction failed",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.Int64("amount", tx.Amount),
		slog.String("reason", reason),
	)
	e.publish(ctx, notification.Event{
		Kind:          notification.KindTransactionFailed,
		TransactionID: failed.ID,
		Type:          string(failed.Type),
		Status:        string(failed.Status),
		Amount:        failed.Amount,
		FromWalletID:  failed.FromWalletID,
		ToWalletID:    failed.ToWalletID,
		ActorID:       failed.InitiatorID,
		Reason:        reason,
		OccurredAt:    failed.UpdatedAt,
	})
}

func failureReason(err error) string {
	var coded *apperr.Error
	if errors.As(err, &coded) {
		return coded.Code() + ": " + coded.Message()
	}
	return err.Error()
}

func (e *Engine) complete(ctx context.Context, scoped string, tx Transaction) {
	payload, err := json.Marshal(tx)
	if err == nil {
		err = e.tracker.Complete(context.WithoutCancel(ctx), scoped, tx.ID, payload)
	}
	if err != nil {
		// the repository lookup still resolves duplicates
		e.logger.Warn("failed to complete idempotency key",
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err),
		)
	}
}

func (e *Engine) release(ctx context.Context, scoped, transactionID string) {
	if err := e.tracker.Release(context.WithoutCancel(ctx), scoped, transactionID); err != nil {
		e.logger.Warn("failed to release idempotency key",
			slog.String("transaction_id", transactionID),
			slog.Any("error", err),
		)
	}
}

// duplicate resolves a request whose key is already held.
func (e *Engine) duplicate(ctx context.Context, exists *idempotency.AlreadyExistsError) (Result, error) {
	if exists.Completed() && len(exists.Result) > 0 {
		var tx Transaction
		if err := json.Unmarshal(exists.Result, &tx); err == nil {
			return Result{Transaction: tx, Duplicate: true}, nil
		}
	}
	return e.settled(ctx, exists.TransactionID)
}

// settled waits briefly for the original transaction to leave pending and
// returns it as a duplicate.
func (e *Engine) settled(ctx context.Context, id string) (Result, error) {
	deadline := time.Now().Add(e.duplicateWait)
	for {
		tx, err := e.repo.Get(ctx, id)
		switch {
		case err == nil && tx.Status != StatusPending:
			return Result{Transaction: tx, Duplicate: true}, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return Result{}, apperr.Storage(err)
		}

		if time.Now().After(deadline) {
			if err == nil {
				return Result{Transaction: tx, Duplicate: true}, nil
			}
			return Result{}, ErrInProgress
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(duplicatePoll):
		}
	}
}

func (e *Engine) publish(ctx context.Context, event notification.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event",
			slog.String("kind", event.Kind),
			slog.String("transaction_id", event.TransactionID),
			slog.Any("error", err),
		)
	}
}
