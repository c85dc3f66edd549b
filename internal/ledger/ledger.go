// Package ledger holds the three coupled aggregates of a shop (stock, debts
// and transactions) and the pure functions that move them from one state to
// the next. Nothing here performs I/O; callers load a Snapshot, apply
// functions and commit the result in one unit.
package ledger

import (
	"errors"
	"math"
	"strings"

	"catatwarung/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("name already used")
	ErrInvalidInput  = errors.New("invalid input")
)

type Snapshot struct {
	Stock        StockState       `json:"stock"`
	Debts        DebtState        `json:"debts"`
	Transactions TransactionState `json:"transactions"`
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Stock:        s.Stock.Clone(),
		Debts:        s.Debts.Clone(),
		Transactions: s.Transactions.Clone(),
	}
}

// ItemKey is the identity of a stock item: lowercase with whitespace collapsed.
func ItemKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

var honorifics = map[string]struct{}{
	"bu": {}, "pak": {}, "mas": {}, "mbak": {}, "ibu": {}, "bapak": {},
}

// DebtorKey is the identity of a debtor; a leading honorific is ignored so
// "Bu Tejo" and "tejo" land on the same account.
func DebtorKey(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) > 1 {
		if _, ok := honorifics[fields[0]]; ok {
			fields = fields[1:]
		}
	}
	return strings.Join(fields, " ")
}

func intPtr(v int) *int {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

func positiveInt(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return intPtr(*v)
}

func nonNegative(v *int64) *int64 {
	if v == nil || *v < 0 {
		return nil
	}
	return int64Ptr(*v)
}

func roundDiv(amount int64, divisor int) int64 {
	if divisor <= 0 {
		return amount
	}
	return int64(math.Round(float64(amount) / float64(divisor)))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	return intPtr(*v)
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return int64Ptr(*v)
}

func isItemIntent(txType string) bool {
	return txType == domain.IntentSale || txType == domain.IntentPurchase || txType == domain.IntentStockAdd
}
