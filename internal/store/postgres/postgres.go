package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
)

const maxSerializableAttempts = 5

const schema = `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	shop_id     TEXT        NOT NULL,
	aggregate   TEXT        NOT NULL,
	version     BIGINT      NOT NULL DEFAULT 0,
	fingerprint TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (shop_id, aggregate)
)`

// Store persists one shop's ledgers as two JSONB aggregates. Every write
// locks both rows inside a serializable transaction.
type Store struct {
	db     *sql.DB
	shopID string
}

func New(ctx context.Context, databaseURL string, shopID string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, shopID: shopID}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var empty ledger.Snapshot
	for _, aggregate := range store.Aggregates {
		payload, err := store.EncodeAggregate(empty, aggregate)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO ledger_snapshots (shop_id, aggregate, version, fingerprint, payload, updated_at)
			VALUES ($1, $2, 0, $3, $4, now())
			ON CONFLICT (shop_id, aggregate) DO NOTHING
		`, s.shopID, aggregate, store.Fingerprint(payload), payload); err != nil {
			return fmt.Errorf("seed %s: %w", aggregate, err)
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (store.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate, version, fingerprint, payload
		FROM ledger_snapshots
		WHERE shop_id = $1
	`, s.shopID)
	if err != nil {
		return store.State{}, err
	}
	defer rows.Close()
	return scanState(rows)
}

func (s *Store) Update(ctx context.Context, fn func(*ledger.Snapshot) error) (store.State, error) {
	for attempt := 1; ; attempt++ {
		state, err := s.updateOnce(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return state, err
		}
		if attempt >= maxSerializableAttempts {
			return store.State{}, fmt.Errorf("update after %d attempts: %w", attempt, store.ErrConflict)
		}
	}
}

func (s *Store) updateOnce(ctx context.Context, fn func(*ledger.Snapshot) error) (store.State, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return store.State{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT aggregate, version, fingerprint, payload
		FROM ledger_snapshots
		WHERE shop_id = $1
		FOR UPDATE
	`, s.shopID)
	if err != nil {
		return store.State{}, err
	}
	current, err := scanState(rows)
	_ = rows.Close()
	if err != nil {
		return store.State{}, err
	}

	next := current.Snapshot.Clone()
	if err := fn(&next); err != nil {
		return store.State{}, err
	}

	for _, aggregate := range store.Aggregates {
		payload, err := store.EncodeAggregate(next, aggregate)
		if err != nil {
			return store.State{}, err
		}
		fingerprint := store.Fingerprint(payload)
		if fingerprint == current.Fingerprints[aggregate] {
			continue
		}
		version := current.Versions[aggregate] + 1
		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_snapshots
			SET version = $3, fingerprint = $4, payload = $5, updated_at = now()
			WHERE shop_id = $1 AND aggregate = $2
		`, s.shopID, aggregate, version, fingerprint, payload); err != nil {
			return store.State{}, err
		}
		current.Versions[aggregate] = version
		current.Fingerprints[aggregate] = fingerprint
	}

	if err := tx.Commit(); err != nil {
		return store.State{}, err
	}
	current.Snapshot = next
	return current, nil
}

func (s *Store) ApplyRemote(ctx context.Context, update store.RemoteUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		version     int64
		fingerprint string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT version, fingerprint
		FROM ledger_snapshots
		WHERE shop_id = $1 AND aggregate = $2
		FOR UPDATE
	`, s.shopID, update.Aggregate).Scan(&version, &fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}

	if !update.Wins(version, fingerprint) {
		return false, nil
	}
	incoming := store.Fingerprint(update.Payload)
	var probe ledger.Snapshot
	if err := store.DecodeAggregate(&probe, update.Aggregate, update.Payload); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_snapshots
		SET version = $3, fingerprint = $4, payload = $5, updated_at = now()
		WHERE shop_id = $1 AND aggregate = $2
	`, s.shopID, update.Aggregate, update.Version, incoming, update.Payload); err != nil {
		if isSerializationFailure(err) {
			return false, store.ErrConflict
		}
		return false, err
	}
	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return false, store.ErrConflict
		}
		return false, err
	}
	return true, nil
}

func scanState(rows *sql.Rows) (store.State, error) {
	state := store.State{
		Versions:     make(map[string]int64, len(store.Aggregates)),
		Fingerprints: make(map[string]string, len(store.Aggregates)),
	}
	var empty ledger.Snapshot
	for _, aggregate := range store.Aggregates {
		payload, _ := store.EncodeAggregate(empty, aggregate)
		_ = store.DecodeAggregate(&state.Snapshot, aggregate, payload)
	}

	for rows.Next() {
		var (
			aggregate   string
			version     int64
			fingerprint string
			payload     []byte
		)
		if err := rows.Scan(&aggregate, &version, &fingerprint, &payload); err != nil {
			return store.State{}, err
		}
		if err := store.DecodeAggregate(&state.Snapshot, aggregate, payload); err != nil {
			return store.State{}, err
		}
		state.Versions[aggregate] = version
		state.Fingerprints[aggregate] = fingerprint
	}
	if err := rows.Err(); err != nil {
		return store.State{}, err
	}
	return state, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
