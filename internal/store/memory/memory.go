package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	snapshot     ledger.Snapshot
	versions     map[string]int64
	fingerprints map[string]string
}

func New() *Store {
	s := &Store{
		versions:     make(map[string]int64, len(store.Aggregates)),
		fingerprints: make(map[string]string, len(store.Aggregates)),
	}
	s.snapshot = emptySnapshot()
	for _, aggregate := range store.Aggregates {
		payload, _ := store.EncodeAggregate(s.snapshot, aggregate)
		s.fingerprints[aggregate] = store.Fingerprint(payload)
	}
	return s
}

// NewSeeded returns a store stocked with a small demo catalogue for local
// development.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	price := func(v int64) *int64 { return &v }
	upp := func(v int) *int { return &v }

	seed := []ledger.StockAdd{
		{ItemName: "Indomie Goreng", Quantity: 2, Unit: "dus", UnitsPerPack: upp(40), Prices: ledger.PriceFields{ModalPerPack: price(110000), SellPerUnit: price(3500)}},
		{ItemName: "Beras", Quantity: 25, Unit: "kg", Prices: ledger.PriceFields{ModalPerUnit: price(13000), SellPerUnit: price(15000)}},
		{ItemName: "Aqua 600ml", Quantity: 1, Unit: "dus", UnitsPerPack: upp(24), Prices: ledger.PriceFields{ModalPerPack: price(48000), SellPerUnit: price(3000)}},
		{ItemName: "Gula Pasir", Quantity: 10, Unit: "kg", Prices: ledger.PriceFields{SellPerUnit: price(17500)}},
	}
	_, _ = s.Update(context.Background(), func(snap *ledger.Snapshot) error {
		for _, in := range seed {
			snap.Stock = ledger.ApplyStockAdd(snap.Stock, in, now)
		}
		return nil
	})
	return s
}

func (s *Store) Load(_ context.Context) (store.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked(), nil
}

func (s *Store) Update(ctx context.Context, fn func(*ledger.Snapshot) error) (store.State, error) {
	if err := ctx.Err(); err != nil {
		return store.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot.Clone()
	if err := fn(&next); err != nil {
		return store.State{}, err
	}

	for _, aggregate := range store.Aggregates {
		payload, err := store.EncodeAggregate(next, aggregate)
		if err != nil {
			return store.State{}, err
		}
		fingerprint := store.Fingerprint(payload)
		if fingerprint == s.fingerprints[aggregate] {
			continue
		}
		s.fingerprints[aggregate] = fingerprint
		s.versions[aggregate]++
	}
	s.snapshot = next
	return s.stateLocked(), nil
}

func (s *Store) ApplyRemote(_ context.Context, update store.RemoteUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !update.Wins(s.versions[update.Aggregate], s.fingerprints[update.Aggregate]) {
		return false, nil
	}
	fingerprint := store.Fingerprint(update.Payload)

	next := s.snapshot.Clone()
	if err := store.DecodeAggregate(&next, update.Aggregate, update.Payload); err != nil {
		return false, err
	}
	s.snapshot = next
	s.versions[update.Aggregate] = update.Version
	s.fingerprints[update.Aggregate] = fingerprint
	return true, nil
}

func (s *Store) stateLocked() store.State {
	return store.State{
		Snapshot:     s.snapshot.Clone(),
		Versions:     maps.Clone(s.versions),
		Fingerprints: maps.Clone(s.fingerprints),
	}
}

func emptySnapshot() ledger.Snapshot {
	var snap ledger.Snapshot
	_ = store.DecodeAggregate(&snap, store.AggregateBook, []byte(`{}`))
	_ = store.DecodeAggregate(&snap, store.AggregateInventory, []byte(`{}`))
	return snap
}
