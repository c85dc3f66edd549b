package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/store"
	"catatwarung/backend/internal/unit"
)

func applySale(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	return applyItemIntent(snap, intent, domain.IntentSale, nil, at, result)
}

func applyPurchase(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	return applyItemIntent(snap, intent, domain.IntentPurchase, intent.Stock, at, result)
}

func applyItemIntent(snap *ledger.Snapshot, intent domain.ParsedIntent, kind string, stock *domain.IntentStock, at time.Time, result *Result) error {
	items := make([]domain.TransactionItem, 0, len(intent.Transactions))
	touched := newTouchedSet()

	for _, line := range intent.Transactions {
		name := strings.TrimSpace(line.ItemName)
		if ledger.ItemKey(name) == "" {
			result.warn("%s line without item name skipped", kind)
			continue
		}
		qty := quantityOf(line.Quantity)
		u := unit.OrDefault(line.Unit)
		explicit := positive(line.PricePerUnit)

		item := domain.TransactionItem{
			ItemName:     name,
			Quantity:     qty,
			Unit:         u,
			PricePerUnit: explicit,
		}
		if kind == domain.IntentSale && explicit == nil {
			item.PricePerUnit = sellPrice(snap.Stock, name, u)
		}
		if total := positive(line.TotalAmount); total != nil {
			item.TotalAmount = *total
		}
		item.TotalAmount = ledger.LineTotal(item)
		if item.TotalAmount == 0 {
			result.warn("price unknown for %s; line total is 0", name)
		}
		items = append(items, item)

		if qty <= 0 {
			result.warn("quantity unknown for %s; stock unchanged", name)
			continue
		}
		if kind == domain.IntentSale {
			checkAvailable(snap.Stock, name, qty, u, result)
		}
		snap.Stock = ledger.ApplyTransaction(snap.Stock, ledger.StockEvent{
			ItemName:     name,
			Quantity:     qty,
			Kind:         kind,
			Unit:         u,
			Price:        explicit,
			UnitsPerPack: unitsPerPackFor(stock, name, len(intent.Transactions)),
		}, at)
		touched.add(name)
	}

	result.Stocks = touched.collect(snap.Stock)
	warnLowStock(result)

	if len(items) == 0 {
		result.warn("%s without usable lines; nothing recorded", kind)
		return nil
	}
	var total int64
	for _, item := range items {
		total += item.TotalAmount
	}
	tx := newTransaction(kind, intent, items, total, at)
	snap.Transactions = ledger.Record(snap.Transactions, tx)
	result.Transaction = &tx
	return nil
}

func applyDebtAdd(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	debtor, ok := debtorOf(intent, result)
	if !ok {
		return nil
	}
	amount := amountOf(intent.Debt.Amount)
	if amount == 0 {
		result.warn("debt amount unknown for %s; recorded as 0", debtor)
	}
	note := noteOr(intent.Note, "Hutang "+debtor)

	snap.Debts = ledger.ApplyDebtAdd(snap.Debts, debtor, amount, note, at)
	debt, _ := ledger.FindDebt(snap.Debts, debtor)

	tx := newTransaction(domain.IntentDebtAdd, intent, nil, amount, at)
	tx.Note = note
	tx.DebtID = debt.ID
	snap.Transactions = ledger.Record(snap.Transactions, tx)
	result.Transaction = &tx
	result.Debt = &debt
	return nil
}

func applyDebtPayment(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	debtor, ok := debtorOf(intent, result)
	if !ok {
		return nil
	}
	amount := amountOf(intent.Debt.Amount)
	note := noteOr(intent.Note, "Bayar hutang "+debtor)

	if _, known := ledger.FindDebt(snap.Debts, debtor); !known {
		result.warn("no open debt for %s; account opened from this payment", debtor)
	}
	snap.Debts = ledger.ApplyDebtPayment(snap.Debts, debtor, amount, intent.Debt.OriginalAmount, note, at)
	debt, _ := ledger.FindDebt(snap.Debts, debtor)

	paid := amount
	if n := len(debt.Transactions); n > 0 && debt.Transactions[n-1].Type == domain.DebtTxPayment {
		paid = debt.Transactions[n-1].Amount
	}
	if paid < amount {
		result.warn("payment from %s capped at remaining debt %d", debtor, paid)
	}

	tx := newTransaction(domain.IntentDebtPayment, intent, nil, paid, at)
	tx.Note = note
	tx.DebtID = debt.ID
	snap.Transactions = ledger.Record(snap.Transactions, tx)
	result.Transaction = &tx
	result.Debt = &debt
	return nil
}

// applyStockAdd books manual stock changes. They leave a movement but no
// transaction row.
func applyStockAdd(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	adds := stockAddsOf(intent)
	if len(adds) == 0 {
		result.warn("stock_add without item; nothing changed")
		return nil
	}
	touched := newTouchedSet()
	for _, in := range adds {
		if before, ok := ledger.FindStock(snap.Stock, in.ItemName); ok && in.Quantity < 0 && -in.Quantity > before.PackQuantity && before.UnitsPerPack == nil {
			result.warn("stock for %s clamped at 0", before.Name)
		}
		snap.Stock = ledger.ApplyStockAdd(snap.Stock, in, at)
		touched.add(in.ItemName)
	}
	result.Stocks = touched.collect(snap.Stock)
	warnLowStock(result)
	return nil
}

// applyPriceUpdate fails with ledger.ErrNotFound for an unknown item so the
// caller can tell the user; the snapshot is left untouched in that case.
func applyPriceUpdate(snap *ledger.Snapshot, intent domain.ParsedIntent, at time.Time, result *Result) error {
	in, ok := priceUpdateOf(intent)
	if !ok {
		return fmt.Errorf("%w: price_update without item", ErrInvalidIntent)
	}
	next, err := ledger.ApplyPriceUpdate(snap.Stock, in, at)
	if err != nil {
		return err
	}
	snap.Stock = next
	if item, found := ledger.FindStock(next, in.ItemName); found {
		result.Stocks = []domain.StockItem{item}
	}
	return nil
}

func stockAddsOf(intent domain.ParsedIntent) []ledger.StockAdd {
	if s := intent.Stock; s != nil && ledger.ItemKey(s.ItemName) != "" {
		return []ledger.StockAdd{{
			ItemName:     strings.TrimSpace(s.ItemName),
			Quantity:     signedQuantity(s.Quantity),
			Unit:         unit.Normalize(s.Unit),
			UnitsPerPack: s.UnitsPerPack,
			Prices: ledger.PriceFields{
				ModalPerPack: s.ModalPerPack,
				ModalPerUnit: s.ModalPerUnit,
				SellPerPack:  s.SellPerPack,
				SellPerUnit:  s.SellPerUnit,
			},
		}}
	}

	adds := make([]ledger.StockAdd, 0, len(intent.Transactions))
	for _, line := range intent.Transactions {
		if ledger.ItemKey(line.ItemName) == "" {
			continue
		}
		adds = append(adds, ledger.StockAdd{
			ItemName: strings.TrimSpace(line.ItemName),
			Quantity: signedQuantity(line.Quantity),
			Unit:     unit.Normalize(line.Unit),
		})
	}
	return adds
}

func priceUpdateOf(intent domain.ParsedIntent) (ledger.PriceUpdate, bool) {
	if s := intent.Stock; s != nil && ledger.ItemKey(s.ItemName) != "" {
		return ledger.PriceUpdate{
			ItemName:     strings.TrimSpace(s.ItemName),
			Unit:         unit.Normalize(s.Unit),
			UnitsPerPack: s.UnitsPerPack,
			Prices: ledger.PriceFields{
				ModalPerPack: s.ModalPerPack,
				ModalPerUnit: s.ModalPerUnit,
				SellPerPack:  s.SellPerPack,
				SellPerUnit:  s.SellPerUnit,
			},
		}, true
	}
	for _, line := range intent.Transactions {
		if ledger.ItemKey(line.ItemName) == "" {
			continue
		}
		in := ledger.PriceUpdate{ItemName: strings.TrimSpace(line.ItemName), Unit: unit.Normalize(line.Unit)}
		if unit.IsPack(line.Unit) {
			in.Prices.SellPerPack = positive(line.PricePerUnit)
		} else {
			in.Prices.SellPerUnit = positive(line.PricePerUnit)
		}
		return in, true
	}
	return ledger.PriceUpdate{}, false
}

// sellPrice looks up the stored selling price for a line: a pack unit takes
// the pack price and falls back to the piece price, a piece unit takes the
// piece price only.
func sellPrice(state ledger.StockState, name string, u string) *int64 {
	item, ok := ledger.FindStock(state, name)
	if !ok {
		return nil
	}
	if unit.IsPack(u) {
		if item.SellPerPack != nil {
			return positive(item.SellPerPack)
		}
	}
	return positive(item.SellPerUnit)
}

func checkAvailable(state ledger.StockState, name string, qty int, u string, result *Result) {
	item, ok := ledger.FindStock(state, name)
	if !ok {
		result.warn("%s not in stock list; added with zero stock", name)
		return
	}
	available, requested := item.PackQuantity, qty
	if item.UnitsPerPack != nil && item.SmallUnitQuantity != nil {
		available = *item.SmallUnitQuantity
		if unit.IsPack(u) {
			requested = qty * *item.UnitsPerPack
		}
	}
	if requested > available {
		result.warn("stock for %s clamped at 0", item.Name)
	}
}

func warnLowStock(result *Result) {
	for _, item := range result.Stocks {
		if item.PackQuantity <= item.MinStock {
			result.warn("low stock: %s has %d %s left", item.Name, item.PackQuantity, item.PackUnit)
		}
	}
}

// unitsPerPackFor hands the intent's conversion factor to a line. A stock
// block without a name, or an intent with a single line, applies to every
// line; otherwise the names must match, one containing the other ("Indomie"
// covers "Indomie Goreng").
func unitsPerPackFor(stock *domain.IntentStock, name string, lines int) *int {
	if stock == nil || stock.UnitsPerPack == nil {
		return nil
	}
	key := ledger.ItemKey(stock.ItemName)
	if key == "" || lines == 1 {
		return stock.UnitsPerPack
	}
	line := ledger.ItemKey(name)
	if strings.Contains(line, key) || strings.Contains(key, line) {
		return stock.UnitsPerPack
	}
	return nil
}

func debtorOf(intent domain.ParsedIntent, result *Result) (string, bool) {
	if intent.Debt == nil || ledger.DebtorKey(intent.Debt.DebtorName) == "" {
		result.warn("%s without debtor name; nothing recorded", intent.Type)
		return "", false
	}
	return strings.TrimSpace(intent.Debt.DebtorName), true
}

func quantityOf(v *int) int {
	if v == nil {
		return 0
	}
	return max(0, *v)
}

func signedQuantity(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func amountOf(v *int64) int64 {
	if v == nil {
		return 0
	}
	return max(0, *v)
}

func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

func noteOr(note string, fallback string) string {
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		return trimmed
	}
	return fallback
}

// IsNotFound reports whether err means the referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) || errors.Is(err, store.ErrNotFound)
}
