package store

import (
	"context"
	"errors"

	"catatwarung/backend/internal/ledger"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("concurrent update conflict")
)

// State is a committed snapshot together with the version and fingerprint
// of each persisted aggregate.
type State struct {
	Snapshot     ledger.Snapshot
	Versions     map[string]int64
	Fingerprints map[string]string
}

// RemoteUpdate carries one aggregate written by another replica. Origin is
// the writer; LocalOrigin is the replica receiving it and only matters for
// breaking version ties.
type RemoteUpdate struct {
	Origin      string
	LocalOrigin string
	Aggregate   string
	Version     int64
	Payload     []byte
}

// Wins reports whether the update should replace a stored aggregate at
// version with the given fingerprint: a newer version wins, an equal version
// goes to the higher origin, and identical content never applies. Stores
// call it while holding the row or lock they are about to write.
func (u RemoteUpdate) Wins(version int64, fingerprint string) bool {
	if Fingerprint(u.Payload) == fingerprint {
		return false
	}
	switch {
	case u.Version > version:
		return true
	case u.Version == version:
		return u.Origin > u.LocalOrigin
	default:
		return false
	}
}

type Repository interface {
	Load(ctx context.Context) (State, error)
	// Update runs fn against a private copy of the current snapshot and
	// commits every change it makes as one unit. Nothing is written when fn
	// returns an error.
	Update(ctx context.Context, fn func(*ledger.Snapshot) error) (State, error)
	// ApplyRemote replaces one aggregate when update.Wins against what is
	// stored. The comparison and the write are atomic.
	ApplyRemote(ctx context.Context, update RemoteUpdate) (bool, error)
}
