package ledger

import (
	"fmt"
	"time"

	"catatwarung/backend/internal/domain"
)

// TransactionState keeps transactions newest first.
type TransactionState struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// Reversal tells the stock ledger what to undo after a sale or purchase
// line disappears.
type Reversal struct {
	ItemName string
	Quantity int
	Unit     string
	Kind     string
}

func (r Reversal) StockEvent() StockEvent {
	return StockEvent{ItemName: r.ItemName, Quantity: r.Quantity, Unit: r.Unit, Kind: r.Kind}
}

func (s TransactionState) Clone() TransactionState {
	next := TransactionState{Transactions: make([]domain.Transaction, len(s.Transactions))}
	for i, tx := range s.Transactions {
		next.Transactions[i] = cloneTransaction(tx)
	}
	return next
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	items := make([]domain.TransactionItem, len(tx.Items))
	for i, item := range tx.Items {
		item.PricePerUnit = cloneInt64(item.PricePerUnit)
		items[i] = item
	}
	tx.Items = items
	return tx
}

func (s TransactionState) indexByID(id string) int {
	for i := range s.Transactions {
		if s.Transactions[i].ID == id {
			return i
		}
	}
	return -1
}

func TransactionByID(state TransactionState, id string) (domain.Transaction, bool) {
	idx := state.indexByID(id)
	if idx < 0 {
		return domain.Transaction{}, false
	}
	return cloneTransaction(state.Transactions[idx]), true
}

func Record(state TransactionState, tx domain.Transaction) TransactionState {
	next := TransactionState{Transactions: make([]domain.Transaction, 0, len(state.Transactions)+1)}
	next.Transactions = append(next.Transactions, cloneTransaction(tx))
	for _, existing := range state.Transactions {
		next.Transactions = append(next.Transactions, cloneTransaction(existing))
	}
	return next
}

// Edit replaces the line items and note. For item-bearing transactions the
// total is recomputed, and an edit that leaves no lines removes the
// transaction.
func Edit(state TransactionState, id string, items []domain.TransactionItem, note string) (TransactionState, error) {
	idx := state.indexByID(id)
	if idx < 0 {
		return state, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	next := state.Clone()
	tx := &next.Transactions[idx]

	if isItemIntent(tx.Type) || len(tx.Items) > 0 {
		if len(items) == 0 {
			next.Transactions = append(next.Transactions[:idx], next.Transactions[idx+1:]...)
			return next, nil
		}
		edited := cloneTransaction(domain.Transaction{Items: items}).Items
		for i := range edited {
			edited[i].TotalAmount = LineTotal(edited[i])
		}
		tx.Items = edited
		tx.TotalAmount = sumItems(edited)
	}
	tx.Note = note
	return next, nil
}

// Delete removes a transaction and reports the stock reversals it implies.
func Delete(state TransactionState, id string) (TransactionState, []Reversal, error) {
	idx := state.indexByID(id)
	if idx < 0 {
		return state, nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	removed := state.Transactions[idx]
	next := state.Clone()
	next.Transactions = append(next.Transactions[:idx], next.Transactions[idx+1:]...)

	if !reversible(removed.Type) {
		return next, nil, nil
	}
	reversals := make([]Reversal, 0, len(removed.Items))
	for _, item := range removed.Items {
		reversals = append(reversals, reversalFor(removed.Type, item))
	}
	return next, reversals, nil
}

// DeleteItem removes one line. Removing the last line removes the whole
// transaction.
func DeleteItem(state TransactionState, id string, index int) (TransactionState, *Reversal, error) {
	idx := state.indexByID(id)
	if idx < 0 {
		return state, nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if index < 0 || index >= len(state.Transactions[idx].Items) {
		return state, nil, fmt.Errorf("transaction %s item %d: %w", id, index, ErrNotFound)
	}
	next := state.Clone()
	tx := &next.Transactions[idx]
	item := tx.Items[index]

	tx.Items = append(tx.Items[:index], tx.Items[index+1:]...)
	txType := tx.Type
	if len(tx.Items) == 0 {
		next.Transactions = append(next.Transactions[:idx], next.Transactions[idx+1:]...)
	} else {
		tx.TotalAmount = sumItems(tx.Items)
	}

	if !reversible(txType) {
		return next, nil, nil
	}
	reversal := reversalFor(txType, item)
	return next, &reversal, nil
}

// StripItem removes every line that refers to itemName, dropping
// transactions that end up empty.
func StripItem(state TransactionState, itemName string) TransactionState {
	key := ItemKey(itemName)
	next := TransactionState{Transactions: make([]domain.Transaction, 0, len(state.Transactions))}
	for _, tx := range state.Transactions {
		tx = cloneTransaction(tx)
		if len(tx.Items) == 0 {
			next.Transactions = append(next.Transactions, tx)
			continue
		}
		kept := tx.Items[:0]
		for _, item := range tx.Items {
			if ItemKey(item.ItemName) != key {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			continue
		}
		if len(kept) != len(tx.Items) {
			tx.TotalAmount = sumItems(kept)
		}
		tx.Items = kept
		next.Transactions = append(next.Transactions, tx)
	}
	return next
}

// DeleteWhere drops every transaction matching pred and reports how many
// went away.
func DeleteWhere(state TransactionState, pred func(domain.Transaction) bool) (TransactionState, int) {
	next := TransactionState{Transactions: make([]domain.Transaction, 0, len(state.Transactions))}
	removed := 0
	for _, tx := range state.Transactions {
		if pred(tx) {
			removed++
			continue
		}
		next.Transactions = append(next.Transactions, cloneTransaction(tx))
	}
	return next, removed
}

func ByDate(state TransactionState, day time.Time, loc *time.Location) []domain.Transaction {
	from, to := DayWindow(day, loc)
	return between(state, from, to)
}

func Today(state TransactionState, now time.Time, loc *time.Location) []domain.Transaction {
	return ByDate(state, now, loc)
}

func Summary(state TransactionState, from time.Time, to time.Time) domain.Summary {
	var summary domain.Summary
	for _, tx := range between(state, from, to) {
		summary.TransactionCount++
		switch tx.Type {
		case domain.IntentSale:
			summary.TotalSales += tx.TotalAmount
		case domain.IntentPurchase:
			summary.TotalPurchases += tx.TotalAmount
		case domain.IntentDebtAdd:
			summary.TotalDebtAdded += tx.TotalAmount
		case domain.IntentDebtPayment:
			summary.TotalDebtPaid += tx.TotalAmount
		}
	}
	return summary
}

// DayWindow returns [start, end) of the local calendar day containing t.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// LineTotal prefers an explicit line total and falls back to
// quantity × price. Unknown prices count as zero.
func LineTotal(item domain.TransactionItem) int64 {
	if item.TotalAmount > 0 {
		return item.TotalAmount
	}
	if item.PricePerUnit == nil {
		return 0
	}
	return int64(item.Quantity) * *item.PricePerUnit
}

func between(state TransactionState, from time.Time, to time.Time) []domain.Transaction {
	result := make([]domain.Transaction, 0)
	for _, tx := range state.Transactions {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	return result
}

func sumItems(items []domain.TransactionItem) int64 {
	var total int64
	for _, item := range items {
		total += item.TotalAmount
	}
	return total
}

func reversible(txType string) bool {
	return txType == domain.IntentSale || txType == domain.IntentPurchase
}

func reversalFor(txType string, item domain.TransactionItem) Reversal {
	return Reversal{
		ItemName: item.ItemName,
		Quantity: item.Quantity,
		Unit:     item.Unit,
		Kind:     txType,
	}
}
