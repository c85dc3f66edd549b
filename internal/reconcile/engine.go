// Package reconcile applies interpreted intents across the stock, debt and
// transaction ledgers. Every operation runs inside one repository update so
// its effects on all ledgers commit together.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
	"catatwarung/backend/internal/unit"
	"catatwarung/backend/internal/xid"
)

var ErrInvalidIntent = errors.New("invalid intent")

// Result describes what one operation changed. Warnings list every place
// where input was incomplete and the ledgers degraded instead of failing.
type Result struct {
	Transaction *domain.Transaction
	Stocks      []domain.StockItem
	Debt        *domain.Debt
	Warnings    []string
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type Engine struct {
	repo store.Repository
	now  func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply reconciles one intent. Only an unknown intent type or a
// price_update for an unknown item is an error; everything else degrades
// into warnings.
func (e *Engine) Apply(ctx context.Context, intent domain.ParsedIntent) (Result, error) {
	kind := strings.ToLower(strings.TrimSpace(intent.Type))
	apply, ok := map[string]func(*ledger.Snapshot, domain.ParsedIntent, time.Time, *Result) error{
		domain.IntentSale:        applySale,
		domain.IntentPurchase:    applyPurchase,
		domain.IntentDebtAdd:     applyDebtAdd,
		domain.IntentDebtPayment: applyDebtPayment,
		domain.IntentStockAdd:    applyStockAdd,
		domain.IntentPriceUpdate: applyPriceUpdate,
	}[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown type %q", ErrInvalidIntent, intent.Type)
	}
	intent.Type = kind

	at := e.now().UTC()
	var result Result
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		result = Result{}
		return apply(snap, intent, at, &result)
	})
	if err != nil {
		return Result{}, err
	}
	if len(result.Warnings) > 0 {
		log.Printf("[engine] intent=%s applied with %d warning(s): %s", kind, len(result.Warnings), strings.Join(result.Warnings, "; "))
	}
	return result, nil
}

func (e *Engine) DeleteTransaction(ctx context.Context, id string) (Result, error) {
	at := e.now().UTC()
	var result Result
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		result = Result{}
		next, reversals, err := ledger.Delete(snap.Transactions, id)
		if err != nil {
			return err
		}
		snap.Transactions = next
		reverse(snap, reversals, at, &result)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// DeleteTransactionItem removes one line and reverses only that line's stock
// effect.
func (e *Engine) DeleteTransactionItem(ctx context.Context, id string, index int) (Result, error) {
	at := e.now().UTC()
	var result Result
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		result = Result{}
		next, reversal, err := ledger.DeleteItem(snap.Transactions, id, index)
		if err != nil {
			return err
		}
		snap.Transactions = next
		if tx, ok := ledger.TransactionByID(next, id); ok {
			result.Transaction = &tx
		}
		if reversal != nil {
			reverse(snap, []ledger.Reversal{*reversal}, at, &result)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// EditTransaction rewrites lines and note. Stock is not re-derived from the
// edited lines, except that clearing every line of a sale or purchase is
// handled as a delete and reverses its stock.
func (e *Engine) EditTransaction(ctx context.Context, id string, req domain.TransactionEditRequest) (Result, error) {
	at := e.now().UTC()
	items := normalizeEditItems(req.Items)
	var result Result
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		result = Result{}
		current, ok := ledger.TransactionByID(snap.Transactions, id)
		if !ok {
			return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
		}
		if len(items) == 0 && len(current.Items) > 0 {
			next, reversals, err := ledger.Delete(snap.Transactions, id)
			if err != nil {
				return err
			}
			snap.Transactions = next
			reverse(snap, reversals, at, &result)
			result.warn("transaction %s had no lines left and was deleted", id)
			return nil
		}

		next, err := ledger.Edit(snap.Transactions, id, items, strings.TrimSpace(req.Note))
		if err != nil {
			return err
		}
		snap.Transactions = next
		if tx, ok := ledger.TransactionByID(next, id); ok {
			result.Transaction = &tx
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (e *Engine) AdjustStock(ctx context.Context, stockID string, req domain.StockAdjustRequest) (domain.StockItem, error) {
	at := e.now().UTC()
	var item domain.StockItem
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		next, err := ledger.AdjustStockAbsolute(snap.Stock, stockID, req.Quantity, req.Reason, at)
		if err != nil {
			return err
		}
		snap.Stock = next
		item, _ = ledger.StockByID(next, stockID)
		return nil
	})
	return item, err
}

func (e *Engine) UpdateStock(ctx context.Context, stockID string, req domain.StockUpdateRequest) (domain.StockItem, error) {
	at := e.now().UTC()
	in := ledger.StockUpdate{
		Name:         req.Name,
		PackUnit:     normalizedUnitPtr(req.PackUnit),
		UnitUnit:     normalizedUnitPtr(req.UnitUnit),
		UnitsPerPack: req.UnitsPerPack,
		Prices: ledger.PriceFields{
			ModalPerPack: req.ModalPerPack,
			ModalPerUnit: req.ModalPerUnit,
			SellPerPack:  req.SellPerPack,
			SellPerUnit:  req.SellPerUnit,
		},
		MinStock: req.MinStock,
	}

	var item domain.StockItem
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		next, err := ledger.UpdateStock(snap.Stock, stockID, in, at)
		if err != nil {
			return err
		}
		snap.Stock = next
		item, _ = ledger.StockByID(next, stockID)
		return nil
	})
	return item, err
}

// DeleteStock removes the item, its movements and every transaction line
// naming it.
func (e *Engine) DeleteStock(ctx context.Context, stockID string) (domain.StockItem, error) {
	var removed domain.StockItem
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		next, item, err := ledger.DeleteStock(snap.Stock, stockID)
		if err != nil {
			return err
		}
		snap.Stock = next
		snap.Transactions = ledger.StripItem(snap.Transactions, item.Name)
		removed = item
		return nil
	})
	return removed, err
}

func (e *Engine) UpdateDebt(ctx context.Context, debtID string, req domain.DebtUpdateRequest) (domain.Debt, error) {
	at := e.now().UTC()
	var debt domain.Debt
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		next, err := ledger.UpdateDebtManual(snap.Debts, debtID, ledger.DebtUpdate{
			DebtorName:  req.DebtorName,
			TotalAmount: req.TotalAmount,
		}, at)
		if err != nil {
			return err
		}
		snap.Debts = next
		debt, _ = ledger.DebtByID(next, debtID)
		return nil
	})
	return debt, err
}

// DeleteDebt removes the account and every debt transaction recorded for
// it. Rows written before debt ids existed are matched by debtor name.
func (e *Engine) DeleteDebt(ctx context.Context, debtID string) (domain.Debt, int, error) {
	var (
		removed domain.Debt
		dropped int
	)
	_, err := e.repo.Update(ctx, func(snap *ledger.Snapshot) error {
		next, debt, err := ledger.DeleteDebt(snap.Debts, debtID)
		if err != nil {
			return err
		}
		snap.Debts = next
		snap.Transactions, dropped = ledger.DeleteWhere(snap.Transactions, belongsToDebt(debt))
		removed = debt
		return nil
	})
	if err != nil {
		return domain.Debt{}, 0, err
	}
	return removed, dropped, nil
}

func belongsToDebt(debt domain.Debt) func(domain.Transaction) bool {
	key := ledger.DebtorKey(debt.DebtorName)
	return func(tx domain.Transaction) bool {
		if tx.DebtID != "" {
			return tx.DebtID == debt.ID
		}
		if tx.Type != domain.IntentDebtAdd && tx.Type != domain.IntentDebtPayment {
			return false
		}
		text := strings.ToLower(tx.Note + " " + tx.RawText)
		return key != "" && strings.Contains(text, key)
	}
}

func reverse(snap *ledger.Snapshot, reversals []ledger.Reversal, at time.Time, result *Result) {
	touched := newTouchedSet()
	for _, r := range reversals {
		if _, ok := ledger.FindStock(snap.Stock, r.ItemName); !ok {
			result.warn("%s no longer in stock list; nothing to restore", r.ItemName)
			continue
		}
		snap.Stock = ledger.ReverseTransaction(snap.Stock, r.StockEvent(), at)
		touched.add(r.ItemName)
	}
	result.Stocks = touched.collect(snap.Stock)
}

func normalizeEditItems(items []domain.TransactionItem) []domain.TransactionItem {
	out := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		item.ItemName = strings.TrimSpace(item.ItemName)
		if ledger.ItemKey(item.ItemName) == "" {
			continue
		}
		item.Quantity = max(0, item.Quantity)
		item.Unit = unit.OrDefault(item.Unit)
		out = append(out, item)
	}
	return out
}

func normalizedUnitPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	normalized := unit.OrDefault(*raw)
	return &normalized
}

func newTransaction(kind string, intent domain.ParsedIntent, items []domain.TransactionItem, total int64, at time.Time) domain.Transaction {
	if items == nil {
		items = []domain.TransactionItem{}
	}
	return domain.Transaction{
		ID:          xid.New("tx"),
		Type:        kind,
		Items:       items,
		TotalAmount: total,
		Note:        strings.TrimSpace(intent.Note),
		RawText:     intent.RawText,
		CreatedAt:   at,
	}
}

// touchedSet keeps item names in first-seen order without duplicates.
type touchedSet struct {
	seen  map[string]bool
	names []string
}

func newTouchedSet() *touchedSet {
	return &touchedSet{seen: make(map[string]bool)}
}

func (t *touchedSet) add(name string) {
	key := ledger.ItemKey(name)
	if key == "" || t.seen[key] {
		return
	}
	t.seen[key] = true
	t.names = append(t.names, name)
}

func (t *touchedSet) collect(state ledger.StockState) []domain.StockItem {
	items := make([]domain.StockItem, 0, len(t.names))
	for _, name := range t.names {
		if item, ok := ledger.FindStock(state, name); ok {
			items = append(items, item)
		}
	}
	return items
}
