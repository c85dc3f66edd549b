package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/ledger"
)

const (
	AggregateBook      = "book"
	AggregateInventory = "inventory"
)

var Aggregates = []string{AggregateBook, AggregateInventory}

type bookPayload struct {
	Transactions []domain.Transaction `json:"transactions"`
	Debts        []domain.Debt        `json:"debts"`
}

type inventoryPayload struct {
	Stocks    []domain.StockItem     `json:"stocks"`
	Movements []domain.StockMovement `json:"movements"`
}

func EncodeAggregate(snap ledger.Snapshot, aggregate string) ([]byte, error) {
	switch aggregate {
	case AggregateBook:
		return json.Marshal(bookPayload{
			Transactions: nonNil(snap.Transactions.Transactions),
			Debts:        nonNil(snap.Debts.Debts),
		})
	case AggregateInventory:
		return json.Marshal(inventoryPayload{
			Stocks:    nonNil(snap.Stock.Stocks),
			Movements: nonNil(snap.Stock.Movements),
		})
	default:
		return nil, fmt.Errorf("unknown aggregate %q", aggregate)
	}
}

func DecodeAggregate(snap *ledger.Snapshot, aggregate string, payload []byte) error {
	switch aggregate {
	case AggregateBook:
		var book bookPayload
		if err := json.Unmarshal(payload, &book); err != nil {
			return fmt.Errorf("decode %s: %w", aggregate, err)
		}
		snap.Transactions = ledger.TransactionState{Transactions: nonNil(book.Transactions)}
		snap.Debts = ledger.DebtState{Debts: nonNil(book.Debts)}
	case AggregateInventory:
		var inv inventoryPayload
		if err := json.Unmarshal(payload, &inv); err != nil {
			return fmt.Errorf("decode %s: %w", aggregate, err)
		}
		snap.Stock = ledger.StockState{Stocks: nonNil(inv.Stocks), Movements: nonNil(inv.Movements)}
	default:
		return fmt.Errorf("unknown aggregate %q", aggregate)
	}
	return nil
}

// Fingerprint identifies an encoded aggregate; equal payloads give equal
// fingerprints.
func Fingerprint(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
