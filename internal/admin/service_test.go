package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/audit"
	"github.com/bayarin/bayarin/internal/funding"
	"github.com/bayarin/bayarin/internal/idempotency"
	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/logging"
	"github.com/bayarin/bayarin/internal/notification"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

var (
	superAdmin   = Actor{ID: uuid.NewString(), Role: identity.RoleSuperAdmin}
	opsAdmin     = Actor{ID: uuid.NewString(), Role: identity.RoleOpsAdmin}
	financeAdmin = Actor{ID: uuid.NewString(), Role: identity.RoleFinanceAdmin}
)

type fixture struct {
	svc      *Service
	engine   *transaction.Engine
	wallets  wallet.Registry
	walletSv *wallet.Service
	ledger   *ledger.MemoryStore
	audits   audit.Repository
	events   *notification.Recorder
	ids      *identity.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := wallet.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	tx := txn.NewMemory()
	walletSv := wallet.NewService(registry, store, tx, "IDR")
	clearing, err := walletSv.EnsureClearing(context.Background())
	if err != nil {
		t.Fatalf("clearing: %v", err)
	}
	ids := identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	events := notification.NewRecorder(64)
	engine := transaction.NewEngine(transaction.Dependencies{
		Repository:       transaction.NewMemoryRepository(),
		Wallets:          registry,
		Ledger:           store,
		Tx:               tx,
		Tracker:          idempotency.NewMemoryTracker(24 * time.Hour),
		Channels:         funding.NewStaticChannels(funding.DefaultChannels()...),
		PINs:             ids,
		Events:           events,
		Logger:           logging.Discard(),
		Currency:         "IDR",
		ClearingWalletID: clearing.ID,
	})
	audits := audit.NewMemoryRepository()
	return &fixture{
		svc:      NewService(engine, ids, registry, store, audits, tx, events, logging.Discard()),
		engine:   engine,
		wallets:  registry,
		walletSv: walletSv,
		ledger:   store,
		audits:   audits,
		events:   events,
		ids:      ids,
	}
}

// funded registers a user and tops up their main wallet.
func (f *fixture) funded(t *testing.T, amount int64) (string, wallet.Wallet, transaction.Transaction) {
	t.Helper()
	ctx := context.Background()
	u, err := f.ids.Register(ctx, identity.Registration{
		Email:    uuid.NewString()[:8] + "@example.com",
		FullName: "Funded User",
		Password: "secret-password",
		PIN:      "123456",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	wallets, err := f.walletSv.Provision(ctx, u.ID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	res, err := f.engine.Topup(ctx, transaction.TopupInput{
		UserID: u.ID, Amount: amount, ChannelCode: "MANDIRI_VA", IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("topup: %v", err)
	}
	return u.ID, wallets[0], res.Transaction
}

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		role identity.Role
		op   Operation
		want bool
	}{
		{identity.RoleFinanceAdmin, OpRefund, true},
		{identity.RoleOpsAdmin, OpRefund, false},
		{identity.RoleOpsAdmin, OpFreezeWallet, true},
		{identity.RoleFinanceAdmin, OpFreezeWallet, false},
		{identity.RoleSuperAdmin, OpReverse, true},
		{identity.RoleOpsAdmin, OpViewLedger, true},
		{identity.RoleFinanceAdmin, OpValidateBalance, true},
		{identity.RoleOpsAdmin, OpViewAuditLogs, false},
		{identity.RoleSuperAdmin, OpViewAuditLogs, true},
		{identity.RoleFinanceAdmin, OpMonitorTransactions, true},
		{identity.RoleOpsAdmin, OpInspectUsers, true},
		{identity.Role("intern"), OpViewLedger, false},
		{identity.RoleSuperAdmin, Operation("delete_everything"), false},
	}
	for _, tc := range cases {
		if got := Allowed(tc.role, tc.op); got != tc.want {
			t.Fatalf("Allowed(%s, %s) = %v, want %v", tc.role, tc.op, got, tc.want)
		}
	}
}

func TestFreezeAndUnfreezeAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, main, _ := f.funded(t, 50_000)

	if _, err := f.svc.FreezeWallet(ctx, financeAdmin, main.ID, "suspicious"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("finance admin must not freeze, got %v", err)
	}

	frozen, err := f.svc.FreezeWallet(ctx, opsAdmin, main.ID, "suspicious")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen.Status != wallet.StatusFrozen || frozen.StatusReason != "suspicious" {
		t.Fatalf("unexpected wallet %+v", frozen)
	}
	// already frozen: no second audit record
	if _, err := f.svc.FreezeWallet(ctx, opsAdmin, main.ID, "again"); err != nil {
		t.Fatalf("repeat freeze: %v", err)
	}
	if _, err := f.svc.UnfreezeWallet(ctx, superAdmin, main.ID, "cleared"); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}

	entries, total, err := f.svc.AuditLogs(ctx, superAdmin, audit.Filter{ResourceID: main.ID})
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 audit entries, got %d", total)
	}
	if entries[0].Action != audit.ActionUnfreezeWallet || entries[1].Action != audit.ActionFreezeWallet {
		t.Fatalf("unexpected audit order %+v", entries)
	}
	if _, _, err := f.svc.AuditLogs(ctx, opsAdmin, audit.Filter{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ops admin must not read audit logs, got %v", err)
	}

	var statusEvents int
	for _, e := range f.events.Events() {
		if e.Kind == notification.KindWalletStatusChanged && e.WalletID == main.ID {
			statusEvents++
		}
	}
	if statusEvents != 2 {
		t.Fatalf("expected 2 wallet status events, got %d", statusEvents)
	}

	if _, err := f.svc.FreezeWallet(ctx, opsAdmin, main.ID, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank reason must be rejected, got %v", err)
	}
}

func TestRefundIsAuditedWithTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, main, topup := f.funded(t, 100_000)

	if _, err := f.svc.Refund(ctx, opsAdmin, RefundRequest{
		OriginalTransactionID: topup.ID, Amount: 10_000, Reason: "x", IdempotencyKey: "k0",
	}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ops admin must not refund, got %v", err)
	}

	res, err := f.svc.Refund(ctx, financeAdmin, RefundRequest{
		OriginalTransactionID: topup.ID,
		Amount:                40_000,
		Reason:                "customer request",
		IdempotencyKey:        "refund-1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.Transaction.InitiatorID != financeAdmin.ID {
		t.Fatalf("refund initiator = %s, want %s", res.Transaction.InitiatorID, financeAdmin.ID)
	}

	entries, _, err := f.audits.List(ctx, audit.Filter{ActorID: financeAdmin.ID})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(entries), err)
	}
	want := "Refund transaction " + topup.ID + " for amount 40000. Reason: customer request"
	if entries[0].Description != want || entries[0].Action != audit.ActionRefundTransaction {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}

	summary, err := f.svc.RefundHistory(ctx, opsAdmin, topup.ID)
	if err != nil {
		t.Fatalf("refund history: %v", err)
	}
	if len(summary.Refunds) != 1 || summary.RefundedAmount != 40_000 || summary.Remaining != 60_000 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	// a failed refund leaves no audit record behind
	if _, err := f.svc.Refund(ctx, financeAdmin, RefundRequest{
		OriginalTransactionID: topup.ID, Amount: 70_000, Reason: "too much", IdempotencyKey: "refund-2",
	}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, total, _ := f.audits.List(ctx, audit.Filter{}); total != 1 {
		t.Fatalf("expected 1 audit entry after failed refund, got %d", total)
	}

	w, _ := f.wallets.Get(ctx, main.ID)
	if w.Balance != 60_000 {
		t.Fatalf("balance = %d, want 60000", w.Balance)
	}
}

func TestReverseIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, topup := f.funded(t, 80_000)

	res, err := f.svc.Reverse(ctx, superAdmin, ReverseRequest{
		OriginalTransactionID: topup.ID, Reason: "chargeback", IdempotencyKey: "rev-1",
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if res.Transaction.Amount != 80_000 {
		t.Fatalf("reversal amount = %d", res.Transaction.Amount)
	}
	entries, _, _ := f.audits.List(ctx, audit.Filter{ResourceID: topup.ID})
	if len(entries) != 1 || entries[0].Description != "Reversed transaction "+topup.ID+". Reason: chargeback" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}

func TestValidateWalletBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, main, _ := f.funded(t, 25_000)

	check, err := f.svc.ValidateWalletBalance(ctx, opsAdmin, main.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !check.IsValid || check.Message != "Balance is valid" || check.CalculatedBalance != 25_000 {
		t.Fatalf("unexpected check %+v", check)
	}

	// drift the cached balance behind the ledger's back
	if _, err := f.wallets.AdjustBalance(ctx, main.ID, 500, 25_000); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	check, err = f.svc.ValidateWalletBalance(ctx, opsAdmin, main.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if check.IsValid || check.Difference != 500 || check.Message != "Balance mismatch! Difference: 500" {
		t.Fatalf("unexpected check %+v", check)
	}
	w, _ := f.wallets.Get(ctx, main.ID)
	if w.Balance != 25_500 {
		t.Fatalf("validation must not correct the balance, got %d", w.Balance)
	}
}

func TestLedgerSearchByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, aliceMain, _ := f.funded(t, 10_000)
	f.funded(t, 20_000)

	result, err := f.svc.Ledger(ctx, financeAdmin, LedgerFilter{UserID: alice})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if result.Total != 1 || result.Entries[0].WalletID != aliceMain.ID {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Filter.Limit != 20 {
		t.Fatalf("filter limit = %d, want the default 20", result.Filter.Limit)
	}

	credits, err := f.svc.Ledger(ctx, financeAdmin, LedgerFilter{EntryType: ledger.Credit})
	if err != nil || credits.Total != 2 {
		t.Fatalf("credit search total = %d (%v), want 2", credits.Total, err)
	}

	none, err := f.svc.Ledger(ctx, financeAdmin, LedgerFilter{UserID: uuid.NewString()})
	if err != nil || none.Total != 0 || none.Entries == nil {
		t.Fatalf("unknown user search = %+v (%v)", none, err)
	}

	if _, err := f.svc.Ledger(ctx, financeAdmin, LedgerFilter{EntryType: "sideways"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for entry type, got %v", err)
	}

	wl, err := f.svc.WalletLedger(ctx, opsAdmin, aliceMain.ID, 0, 0)
	if err != nil || wl.Total != 1 || !strings.HasPrefix(wl.Entries[0].Description, "Topup via") {
		t.Fatalf("wallet ledger = %+v (%v)", wl, err)
	}
}
