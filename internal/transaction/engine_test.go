package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/funding"
	"github.com/bayarin/bayarin/internal/idempotency"
	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/logging"
	"github.com/bayarin/bayarin/internal/notification"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

const testPIN = "123456"

type harness struct {
	engine   *Engine
	repo     Repository
	wallets  wallet.Registry
	ledger   *ledger.MemoryStore
	tracker  *idempotency.MemoryTracker
	events   *notification.Recorder
	ids      *identity.Service
	service  *wallet.Service
	clearing wallet.Wallet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	registry := wallet.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	tx := txn.NewMemory()
	service := wallet.NewService(registry, store, tx, "IDR")
	clearing, err := service.EnsureClearing(ctx)
	if err != nil {
		t.Fatalf("clearing wallet: %v", err)
	}

	h := &harness{
		repo:     NewMemoryRepository(),
		wallets:  registry,
		ledger:   store,
		tracker:  idempotency.NewMemoryTracker(24 * time.Hour),
		events:   notification.NewRecorder(256),
		ids:      identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost),
		service:  service,
		clearing: clearing,
	}
	h.engine = NewEngine(Dependencies{
		Repository:       h.repo,
		Wallets:          registry,
		Ledger:           store,
		Tx:               tx,
		Tracker:          h.tracker,
		Channels:         funding.NewStaticChannels(funding.DefaultChannels()...),
		PINs:             h.ids,
		Events:           h.events,
		Logger:           logging.Discard(),
		Currency:         "IDR",
		ClearingWalletID: clearing.ID,
	})
	h.engine.backoff = time.Millisecond
	return h
}

// user registers a user and returns its id and main wallet.
func (h *harness) user(t *testing.T) (string, wallet.Wallet) {
	t.Helper()
	ctx := context.Background()
	u, err := h.ids.Register(ctx, identity.Registration{
		Email:    uuid.NewString()[:8] + "@example.com",
		FullName: "Test User",
		Password: "secret-password",
		PIN:      testPIN,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	wallets, err := h.service.Provision(ctx, u.ID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	return u.ID, wallets[0]
}

func (h *harness) topup(t *testing.T, userID string, amount int64) Transaction {
	t.Helper()
	res, err := h.engine.Topup(context.Background(), TopupInput{
		UserID:         userID,
		Amount:         amount,
		ChannelCode:    "BCA_VA",
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("topup: %v", err)
	}
	return res.Transaction
}

func (h *harness) balance(t *testing.T, walletID string) int64 {
	t.Helper()
	w, err := h.wallets.Get(context.Background(), walletID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.Balance
}

// assertConsistent checks that every cached balance equals its ledger replay
// and that the ledger sums to zero across all wallets.
func (h *harness) assertConsistent(t *testing.T, walletIDs ...string) {
	t.Helper()
	ctx := context.Background()
	var total int64
	for _, id := range append(walletIDs, h.clearing.ID) {
		replayed, err := h.ledger.RecomputeBalance(ctx, id)
		if err != nil {
			t.Fatalf("recompute: %v", err)
		}
		if cached := h.balance(t, id); cached != replayed {
			t.Fatalf("wallet %s: cached balance %d, ledger says %d", id, cached, replayed)
		}
		total += replayed
	}
	if total != 0 {
		t.Fatalf("ledger does not balance, sum is %d", total)
	}
}

func TestTopupThenTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)
	_, bobMain := h.user(t)

	topup := h.topup(t, alice, 1_000_000)
	if topup.Status != StatusSuccess || topup.ExternalReference == "" {
		t.Fatalf("unexpected topup %+v", topup)
	}
	if topup.Description != "Topup via BCA_VA" {
		t.Fatalf("unexpected description %q", topup.Description)
	}

	res, err := h.engine.Transfer(ctx, TransferInput{
		UserID:         alice,
		FromWalletID:   aliceMain.ID,
		ToWalletID:     bobMain.ID,
		Amount:         250_000,
		PIN:            testPIN,
		IdempotencyKey: "transfer-1",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Duplicate || res.Transaction.Status != StatusSuccess {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Transaction.Description != "Transfer to user" {
		t.Fatalf("unexpected description %q", res.Transaction.Description)
	}

	if got := h.balance(t, aliceMain.ID); got != 750_000 {
		t.Fatalf("alice balance = %d, want 750000", got)
	}
	if got := h.balance(t, bobMain.ID); got != 250_000 {
		t.Fatalf("bob balance = %d, want 250000", got)
	}
	if got := h.balance(t, h.clearing.ID); got != -1_000_000 {
		t.Fatalf("clearing balance = %d, want -1000000", got)
	}

	detail, err := h.engine.Detail(ctx, res.Transaction.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(detail.Entries))
	}
	out, in := detail.Entries[0], detail.Entries[1]
	if out.Type != ledger.Debit || out.BalanceBefore != 1_000_000 || out.BalanceAfter != 750_000 {
		t.Fatalf("unexpected debit entry %+v", out)
	}
	if in.Type != ledger.Credit || in.BalanceAfter != 250_000 || in.Description != "Transfer in: Transfer to user" {
		t.Fatalf("unexpected credit entry %+v", in)
	}

	h.assertConsistent(t, aliceMain.ID, bobMain.ID)

	var completed int
	for _, e := range h.events.Events() {
		if e.Kind == notification.KindTransactionCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Fatalf("expected 2 completed events, got %d", completed)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	alice, aliceMain := h.user(t)
	_, bobMain := h.user(t)
	h.topup(t, alice, 100_000)

	_, err := h.engine.Transfer(context.Background(), TransferInput{
		UserID:         alice,
		FromWalletID:   aliceMain.ID,
		ToWalletID:     bobMain.ID,
		Amount:         150_000,
		PIN:            testPIN,
		IdempotencyKey: "too-much",
	})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	tx, err := h.repo.FindByIdempotencyKey(context.Background(), alice, TypeTransfer, "too-much")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed transaction must not hold the key, got %+v %v", tx, err)
	}
	if got := h.balance(t, aliceMain.ID); got != 100_000 {
		t.Fatalf("alice balance changed to %d", got)
	}
	h.assertConsistent(t, aliceMain.ID, bobMain.ID)
}

func TestFailedTransactionIsRecorded(t *testing.T) {
	h := newHarness(t)
	alice, aliceMain := h.user(t)
	_, bobMain := h.user(t)

	_, err := h.engine.Transfer(context.Background(), TransferInput{
		UserID:         alice,
		FromWalletID:   aliceMain.ID,
		ToWalletID:     bobMain.ID,
		Amount:         1,
		PIN:            testPIN,
		IdempotencyKey: "empty-wallet",
	})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	txs, total, err := h.repo.ListByWallets(context.Background(), []string{aliceMain.ID}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || txs[0].Status != StatusFailed || txs[0].FailureReason == "" {
		t.Fatalf("expected one failed transaction with a reason, got %+v", txs)
	}
	entries, _ := h.ledger.EntriesForTransaction(context.Background(), txs[0].ID)
	if len(entries) != 0 {
		t.Fatalf("failed transaction wrote %d entries", len(entries))
	}
}

func TestTransferValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)
	bob, bobMain := h.user(t)
	h.topup(t, alice, 100_000)

	cases := []struct {
		name string
		in   TransferInput
		kind error
	}{
		{"zero amount", TransferInput{UserID: alice, FromWalletID: aliceMain.ID, ToWalletID: bobMain.ID, PIN: testPIN, IdempotencyKey: "k"}, apperr.ErrValidation},
		{"missing key", TransferInput{UserID: alice, FromWalletID: aliceMain.ID, ToWalletID: bobMain.ID, Amount: 1, PIN: testPIN}, apperr.ErrValidation},
		{"same wallet", TransferInput{UserID: alice, FromWalletID: aliceMain.ID, ToWalletID: aliceMain.ID, Amount: 1, PIN: testPIN, IdempotencyKey: "k"}, apperr.ErrValidation},
		{"not owner", TransferInput{UserID: bob, FromWalletID: aliceMain.ID, ToWalletID: bobMain.ID, Amount: 1, PIN: testPIN, IdempotencyKey: "k"}, apperr.ErrForbidden},
		{"wrong pin", TransferInput{UserID: alice, FromWalletID: aliceMain.ID, ToWalletID: bobMain.ID, Amount: 1, PIN: "000000", IdempotencyKey: "k"}, apperr.ErrUnauthorized},
		{"clearing target", TransferInput{UserID: alice, FromWalletID: aliceMain.ID, ToWalletID: h.clearing.ID, Amount: 1, PIN: testPIN, IdempotencyKey: "k"}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := h.engine.Transfer(ctx, tc.in); !errors.Is(err, tc.kind) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.kind, err)
		}
	}
	if got := h.balance(t, aliceMain.ID); got != 100_000 {
		t.Fatalf("rejected transfers moved money, balance %d", got)
	}
}

func TestTopupUnknownChannel(t *testing.T) {
	h := newHarness(t)
	alice, aliceMain := h.user(t)

	_, err := h.engine.Topup(context.Background(), TopupInput{
		UserID:         alice,
		Amount:         50_000,
		ChannelCode:    "CARRIER_PIGEON",
		IdempotencyKey: "pigeon",
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// the key was released, so a corrected retry goes through
	res, err := h.engine.Topup(context.Background(), TopupInput{
		UserID:         alice,
		Amount:         50_000,
		ChannelCode:    "OVO",
		IdempotencyKey: "pigeon",
	})
	if err != nil || res.Duplicate {
		t.Fatalf("retry after rejected channel: %+v %v", res, err)
	}
	if got := h.balance(t, aliceMain.ID); got != 50_000 {
		t.Fatalf("balance = %d, want 50000", got)
	}
}

func TestDuplicateTopupReturnsOriginal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)

	in := TopupInput{UserID: alice, Amount: 200_000, ChannelCode: "GOPAY", IdempotencyKey: "same-key"}
	first, err := h.engine.Topup(ctx, in)
	if err != nil {
		t.Fatalf("first topup: %v", err)
	}
	second, err := h.engine.Topup(ctx, in)
	if err != nil {
		t.Fatalf("second topup: %v", err)
	}
	if !second.Duplicate || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Transaction.ID, second)
	}
	if second.Transaction.ExternalReference != first.Transaction.ExternalReference {
		t.Fatalf("duplicate re-authorized the channel")
	}
	if got := h.balance(t, aliceMain.ID); got != 200_000 {
		t.Fatalf("balance = %d, want 200000", got)
	}
}

func TestDuplicateResolvedFromRepositoryAfterKeyExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)

	in := TopupInput{UserID: alice, Amount: 75_000, ChannelCode: "DANA", IdempotencyKey: "expiring"}
	first, err := h.engine.Topup(ctx, in)
	if err != nil {
		t.Fatalf("first topup: %v", err)
	}
	if err := h.tracker.Release(ctx, idempotency.Scope(string(TypeTopup), alice, "expiring"), first.Transaction.ID); !errors.Is(err, idempotency.ErrCompleted) {
		t.Fatalf("completed key must not be released, got %v", err)
	}
	h.tracker.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })

	second, err := h.engine.Topup(ctx, in)
	if err != nil {
		t.Fatalf("second topup: %v", err)
	}
	if !second.Duplicate || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Transaction.ID, second)
	}
	if got := h.balance(t, aliceMain.ID); got != 75_000 {
		t.Fatalf("balance = %d, want 75000", got)
	}
}

func TestConcurrentDuplicatesApplyOnce(t *testing.T) {
	h := newHarness(t)
	alice, aliceMain := h.user(t)

	const workers = 10
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.engine.Topup(context.Background(), TopupInput{
				UserID:         alice,
				Amount:         100_000,
				ChannelCode:    "QRIS",
				IdempotencyKey: "burst",
			})
			ids[i], errs[i] = res.Transaction.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got transaction %s, want %s", i, ids[i], ids[0])
		}
	}
	if got := h.balance(t, aliceMain.ID); got != 100_000 {
		t.Fatalf("balance = %d, want 100000", got)
	}
	h.assertConsistent(t, aliceMain.ID)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	alice, aliceMain := h.user(t)
	_, bobMain := h.user(t)
	_, carolMain := h.user(t)
	h.topup(t, alice, 1_000_000)

	targets := []string{bobMain.ID, carolMain.ID}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to string) {
			defer wg.Done()
			_, errs[i] = h.engine.Transfer(context.Background(), TransferInput{
				UserID:         alice,
				FromWalletID:   aliceMain.ID,
				ToWalletID:     to,
				Amount:         600_000,
				PIN:            testPIN,
				IdempotencyKey: fmt.Sprintf("split-%d", i),
			})
		}(i, to)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficient, got %d and %d", succeeded, insufficient)
	}
	if got := h.balance(t, aliceMain.ID); got != 400_000 {
		t.Fatalf("alice balance = %d, want 400000", got)
	}
	h.assertConsistent(t, aliceMain.ID, bobMain.ID, carolMain.ID)
}

func TestConcurrentTopupsSerializeOnClearing(t *testing.T) {
	h := newHarness(t)

	const users = 8
	mains := make([]string, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		id, main := h.user(t)
		mains[i] = main.ID
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := h.engine.Topup(context.Background(), TopupInput{
				UserID:         id,
				Amount:         10_000,
				ChannelCode:    "BRI_VA",
				IdempotencyKey: "parallel",
			}); err != nil {
				t.Errorf("topup: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if got := h.balance(t, h.clearing.ID); got != -users*10_000 {
		t.Fatalf("clearing balance = %d, want %d", got, -users*10_000)
	}
	h.assertConsistent(t, mains...)
}

func TestFrozenWalletRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)
	_, bobMain := h.user(t)
	h.topup(t, alice, 300_000)

	if _, err := h.wallets.SetStatus(ctx, bobMain.ID, wallet.StatusFrozen, "investigation", "admin"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	_, err := h.engine.Transfer(ctx, TransferInput{
		UserID:         alice,
		FromWalletID:   aliceMain.ID,
		ToWalletID:     bobMain.ID,
		Amount:         100_000,
		PIN:            testPIN,
		IdempotencyKey: "to-frozen",
	})
	if !errors.Is(err, apperr.ErrWalletNotActive) {
		t.Fatalf("expected wallet not active, got %v", err)
	}
	if got := h.balance(t, aliceMain.ID); got != 300_000 {
		t.Fatalf("alice balance changed to %d", got)
	}
	h.assertConsistent(t, aliceMain.ID, bobMain.ID)
}

func TestUserDetailHidesForeignTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.user(t)
	bob, _ := h.user(t)
	tx := h.topup(t, alice, 20_000)

	if _, err := h.engine.UserDetail(ctx, alice, tx.ID); err != nil {
		t.Fatalf("owner detail: %v", err)
	}
	if _, err := h.engine.UserDetail(ctx, bob, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if _, err := h.engine.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}

	h.topup(t, alice, 30_000)
	details, total, err := h.engine.UserHistory(ctx, alice, 1, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 2 || len(details) != 1 || details[0].Amount != 30_000 {
		t.Fatalf("unexpected history page total=%d %+v", total, details)
	}
}
