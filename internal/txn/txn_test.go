package txn

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRollsBackInReverseOrder(t *testing.T) {
	m := NewMemory()
	var applied []string

	boom := errors.New("boom")
	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		applied = append(applied, "a")
		OnRollback(ctx, func() { applied = append(applied, "undo-a") })
		applied = append(applied, "b")
		OnRollback(ctx, func() { applied = append(applied, "undo-b") })
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	want := []string{"a", "b", "undo-b", "undo-a"}
	if len(applied) != len(want) {
		t.Fatalf("expected %v, got %v", want, applied)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, applied)
		}
	}
}

func TestMemoryNestedJoinsOuterUnit(t *testing.T) {
	m := NewMemory()
	undone := false

	err := m.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := m.WithinTx(ctx, func(inner context.Context) error {
			OnRollback(inner, func() { undone = true })
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer failure")
	})
	if err == nil {
		t.Fatalf("expected outer failure")
	}
	if !undone {
		t.Fatalf("expected inner write to be rolled back with the outer unit")
	}
}

func TestOnRollbackOutsideUnitIsNoop(t *testing.T) {
	called := false
	OnRollback(context.Background(), func() { called = true })
	if called {
		t.Fatalf("undo must not run outside a unit")
	}
}
