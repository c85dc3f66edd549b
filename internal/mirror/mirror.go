// Package mirror keeps replicas of one shop's ledgers in step. Local commits
// are published per aggregate; remote commits are applied last-writer-wins
// on the aggregate version, with ties going to the higher origin id.
package mirror

import (
	"context"
	"errors"
	"log"
	"sync"

	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
)

type Update struct {
	Origin      string `json:"origin"`
	ShopID      string `json:"shop_id"`
	Aggregate   string `json:"aggregate"`
	Version     int64  `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Payload     []byte `json:"payload"`
}

type Transport interface {
	Publish(ctx context.Context, update Update) error
	Latest(ctx context.Context, shopID string, aggregate string) (*Update, bool, error)
	Subscribe(ctx context.Context, shopID string, handle func(Update)) error
}

// Repository wraps a store.Repository. Remote updates that arrive while a
// local write is running are queued and evaluated once it finishes.
type Repository struct {
	inner     store.Repository
	transport Transport
	origin    string
	shopID    string

	mu        sync.Mutex
	inFlight  int
	pending   []Update
	published map[string]string
}

func New(inner store.Repository, transport Transport, origin string, shopID string) *Repository {
	return &Repository{
		inner:     inner,
		transport: transport,
		origin:    origin,
		shopID:    shopID,
		published: make(map[string]string),
	}
}

func (r *Repository) Load(ctx context.Context) (store.State, error) {
	return r.inner.Load(ctx)
}

func (r *Repository) Update(ctx context.Context, fn func(*ledger.Snapshot) error) (store.State, error) {
	r.mu.Lock()
	r.inFlight++
	r.mu.Unlock()

	state, err := r.inner.Update(ctx, fn)

	r.mu.Lock()
	r.inFlight--
	var queued []Update
	if r.inFlight == 0 {
		queued, r.pending = r.pending, nil
	}
	r.mu.Unlock()

	if err == nil {
		r.publish(ctx, state)
	}
	for _, update := range queued {
		r.apply(ctx, update)
	}
	return state, err
}

func (r *Repository) ApplyRemote(ctx context.Context, update store.RemoteUpdate) (bool, error) {
	if update.LocalOrigin == "" {
		update.LocalOrigin = r.origin
	}
	return r.inner.ApplyRemote(ctx, update)
}

// Receive handles one update from the transport.
func (r *Repository) Receive(ctx context.Context, update Update) {
	if update.Origin == r.origin || update.ShopID != r.shopID {
		return
	}
	r.mu.Lock()
	if r.inFlight > 0 {
		r.pending = append(r.pending, update)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.apply(ctx, update)
}

// Sync pulls the latest published state of every aggregate, then follows
// the transport until ctx is done.
func (r *Repository) Sync(ctx context.Context) error {
	if err := r.CatchUp(ctx); err != nil {
		log.Printf("[mirror] WARN: catch-up failed: %v", err)
	}
	err := r.transport.Subscribe(ctx, r.shopID, func(update Update) {
		r.Receive(ctx, update)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Repository) CatchUp(ctx context.Context) error {
	for _, aggregate := range store.Aggregates {
		update, ok, err := r.transport.Latest(ctx, r.shopID, aggregate)
		if err != nil {
			return err
		}
		if ok {
			r.Receive(ctx, *update)
		}
	}
	return nil
}

func (r *Repository) publish(ctx context.Context, state store.State) {
	for _, aggregate := range store.Aggregates {
		fingerprint := state.Fingerprints[aggregate]
		r.mu.Lock()
		seen := r.published[aggregate] == fingerprint
		r.mu.Unlock()
		if seen || state.Versions[aggregate] == 0 {
			continue
		}

		payload, err := store.EncodeAggregate(state.Snapshot, aggregate)
		if err != nil {
			log.Printf("[mirror] WARN: encode %s: %v", aggregate, err)
			continue
		}
		update := Update{
			Origin:      r.origin,
			ShopID:      r.shopID,
			Aggregate:   aggregate,
			Version:     state.Versions[aggregate],
			Fingerprint: fingerprint,
			Payload:     payload,
		}
		if err := r.transport.Publish(ctx, update); err != nil {
			log.Printf("[mirror] WARN: publish %s v%d: %v", aggregate, update.Version, err)
			continue
		}
		r.mu.Lock()
		r.published[aggregate] = fingerprint
		r.mu.Unlock()
	}
}

func (r *Repository) apply(ctx context.Context, update Update) {
	if store.Fingerprint(update.Payload) != update.Fingerprint {
		log.Printf("[mirror] WARN: dropping %s v%d from %s: fingerprint mismatch", update.Aggregate, update.Version, update.Origin)
		return
	}

	// The version comparison happens inside the store, under the same lock
	// as the write, so a local commit cannot slip in between.
	applied, err := r.inner.ApplyRemote(ctx, store.RemoteUpdate{
		Origin:      update.Origin,
		LocalOrigin: r.origin,
		Aggregate:   update.Aggregate,
		Version:     update.Version,
		Payload:     update.Payload,
	})
	if err != nil {
		log.Printf("[mirror] WARN: apply %s v%d from %s: %v", update.Aggregate, update.Version, update.Origin, err)
		return
	}
	if applied {
		r.mu.Lock()
		r.published[update.Aggregate] = update.Fingerprint
		r.mu.Unlock()
		log.Printf("[mirror] applied %s v%d from %s", update.Aggregate, update.Version, update.Origin)
	}
}
