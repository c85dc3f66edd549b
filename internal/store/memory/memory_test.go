package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
)

func TestUpdateBumpsOnlyChangedAggregates(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	state, err := s.Update(ctx, func(snap *ledger.Snapshot) error {
		snap.Debts = ledger.ApplyDebtAdd(snap.Debts, "Bu Sari", 20000, "", at)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if state.Versions[store.AggregateBook] != 1 {
		t.Fatalf("expected book version 1, got %d", state.Versions[store.AggregateBook])
	}
	if state.Versions[store.AggregateInventory] != 0 {
		t.Fatalf("expected inventory untouched, got %d", state.Versions[store.AggregateInventory])
	}

	state, err = s.Update(ctx, func(snap *ledger.Snapshot) error { return nil })
	if err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if state.Versions[store.AggregateBook] != 1 {
		t.Fatalf("noop update must not bump version, got %d", state.Versions[store.AggregateBook])
	}
}

func TestUpdateErrorDiscardsChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	_, err := s.Update(ctx, func(snap *ledger.Snapshot) error {
		snap.Stock = ledger.ApplyStockAdd(snap.Stock, ledger.StockAdd{ItemName: "Beras", Quantity: 5, Unit: "kg"}, at)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	state, _ := s.Load(ctx)
	if len(state.Snapshot.Stock.Stocks) != 0 {
		t.Fatalf("expected no stock after failed update, got %d", len(state.Snapshot.Stock.Stocks))
	}
	if state.Versions[store.AggregateInventory] != 0 {
		t.Fatalf("expected inventory version 0, got %d", state.Versions[store.AggregateInventory])
	}
}

func TestLoadReturnsIsolatedCopy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, _ := s.Load(ctx)
	if len(first.Snapshot.Stock.Stocks) == 0 {
		t.Fatalf("expected seeded stock")
	}
	first.Snapshot.Stock.Stocks[0].PackQuantity = 999

	second, _ := s.Load(ctx)
	if second.Snapshot.Stock.Stocks[0].PackQuantity == 999 {
		t.Fatalf("load leaked internal state")
	}
}

func TestApplyRemoteRespectsVersion(t *testing.T) {
	source := NewSeeded()
	target := New()
	ctx := context.Background()

	state, _ := source.Load(ctx)
	payload, err := store.EncodeAggregate(state.Snapshot, store.AggregateInventory)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	applied, err := target.ApplyRemote(ctx, store.RemoteUpdate{
		Aggregate: store.AggregateInventory,
		Version:   state.Versions[store.AggregateInventory],
		Payload:   payload,
	})
	if err != nil || !applied {
		t.Fatalf("expected remote applied, got %v %v", applied, err)
	}

	got, _ := target.Load(ctx)
	if len(got.Snapshot.Stock.Stocks) != len(state.Snapshot.Stock.Stocks) {
		t.Fatalf("expected %d stocks, got %d", len(state.Snapshot.Stock.Stocks), len(got.Snapshot.Stock.Stocks))
	}
	if got.Fingerprints[store.AggregateInventory] != state.Fingerprints[store.AggregateInventory] {
		t.Fatalf("fingerprint mismatch after remote apply")
	}

	applied, _ = target.ApplyRemote(ctx, store.RemoteUpdate{
		Aggregate: store.AggregateInventory,
		Version:   0,
		Payload:   []byte(`{"stocks":[],"movements":[]}`),
	})
	if applied {
		t.Fatalf("older remote version must be ignored")
	}
}

func TestApplyRemoteBreaksTiesByOrigin(t *testing.T) {
	ctx := context.Background()
	target := New()
	if _, err := target.Update(ctx, func(snap *ledger.Snapshot) error {
		snap.Debts = ledger.ApplyDebtAdd(snap.Debts, "Bu Tejo", 8000, "", time.Now().UTC())
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	payload := []byte(`{"transactions":[],"debts":[]}`)
	tie := store.RemoteUpdate{Origin: "replica-a", LocalOrigin: "replica-m", Aggregate: store.AggregateBook, Version: 1, Payload: payload}
	if applied, err := target.ApplyRemote(ctx, tie); err != nil || applied {
		t.Fatalf("lower origin must lose the tie, got %v %v", applied, err)
	}

	tie.Origin = "replica-z"
	if applied, err := target.ApplyRemote(ctx, tie); err != nil || !applied {
		t.Fatalf("higher origin must win the tie, got %v %v", applied, err)
	}
	state, _ := target.Load(ctx)
	if len(state.Snapshot.Debts.Debts) != 0 || state.Versions[store.AggregateBook] != 1 {
		t.Fatalf("expected remote book at v1, got %+v v%d", state.Snapshot.Debts.Debts, state.Versions[store.AggregateBook])
	}
}
