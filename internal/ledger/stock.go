package ledger

import (
	"fmt"
	"strings"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/unit"
	"catatwarung/backend/internal/xid"
)

type StockState struct {
	Stocks    []domain.StockItem     `json:"stocks"`
	Movements []domain.StockMovement `json:"movements"`
}

type PriceFields struct {
	ModalPerPack *int64
	ModalPerUnit *int64
	SellPerPack  *int64
	SellPerUnit  *int64
}

type StockAdd struct {
	ItemName     string
	Quantity     int
	Unit         string
	UnitsPerPack *int
	Prices       PriceFields
}

// StockEvent is one sale or purchase line as seen by the stock ledger.
type StockEvent struct {
	ItemName     string
	Quantity     int
	Kind         string
	Unit         string
	Price        *int64
	UnitsPerPack *int
}

type PriceUpdate struct {
	ItemName     string
	Unit         string
	UnitsPerPack *int
	Prices       PriceFields
}

func (s StockState) Clone() StockState {
	next := StockState{
		Stocks:    make([]domain.StockItem, len(s.Stocks)),
		Movements: make([]domain.StockMovement, len(s.Movements)),
	}
	for i, item := range s.Stocks {
		next.Stocks[i] = cloneStockItem(item)
	}
	copy(next.Movements, s.Movements)
	return next
}

func cloneStockItem(item domain.StockItem) domain.StockItem {
	item.SmallUnitQuantity = cloneInt(item.SmallUnitQuantity)
	item.UnitsPerPack = cloneInt(item.UnitsPerPack)
	item.ModalPerPack = cloneInt64(item.ModalPerPack)
	item.ModalPerUnit = cloneInt64(item.ModalPerUnit)
	item.SellPerPack = cloneInt64(item.SellPerPack)
	item.SellPerUnit = cloneInt64(item.SellPerUnit)
	return item
}

func (s StockState) indexByName(name string) int {
	key := ItemKey(name)
	if key == "" {
		return -1
	}
	for i := range s.Stocks {
		if ItemKey(s.Stocks[i].Name) == key {
			return i
		}
	}
	return -1
}

func (s StockState) indexByID(id string) int {
	for i := range s.Stocks {
		if s.Stocks[i].ID == id {
			return i
		}
	}
	return -1
}

func FindStock(state StockState, name string) (domain.StockItem, bool) {
	idx := state.indexByName(name)
	if idx < 0 {
		return domain.StockItem{}, false
	}
	return cloneStockItem(state.Stocks[idx]), true
}

func StockByID(state StockState, id string) (domain.StockItem, bool) {
	idx := state.indexByID(id)
	if idx < 0 {
		return domain.StockItem{}, false
	}
	return cloneStockItem(state.Stocks[idx]), true
}

// ApplyStockAdd books a manual stock change. A negative quantity is a manual
// decrease; the result is clamped at zero.
func ApplyStockAdd(state StockState, in StockAdd, at time.Time) StockState {
	next := state.Clone()
	name := strings.TrimSpace(in.ItemName)
	if ItemKey(name) == "" {
		return next
	}

	idx := next.indexByName(name)
	if idx < 0 {
		item := newStockItem(name, in.Unit, positiveInt(in.UnitsPerPack), at)
		if item.UnitsPerPack != nil {
			// With a factor the quantity counts packs, whatever unit was spoken.
			if !unit.IsPack(item.PackUnit) {
				item.UnitUnit = unit.SmallUnit(item.PackUnit)
				item.PackUnit = unit.DefaultPack
			}
			setSmallQuantity(&item, max(0, in.Quantity) * *item.UnitsPerPack)
		} else {
			seedQuantity(&item, in.Quantity, unit.OrDefault(in.Unit))
		}
		applyPrices(&item, in.Prices)
		next.Stocks = append(next.Stocks, item)
		idx = len(next.Stocks) - 1
	} else {
		item := &next.Stocks[idx]
		adoptUnitsPerPack(item, in.UnitsPerPack)

		deltaUnit := unit.Normalize(in.Unit)
		if deltaUnit == "" {
			deltaUnit = item.PackUnit
		}
		if item.UnitsPerPack != nil {
			setSmallQuantity(item, currentSmall(item)+piecesFor(in.Quantity, deltaUnit, *item.UnitsPerPack))
		} else {
			item.PackQuantity = max(0, item.PackQuantity+in.Quantity)
		}
		applyPrices(item, in.Prices)
		item.UpdatedAt = at
	}

	movementType, reason := domain.MovementIn, "Tambah stok"
	if in.Quantity < 0 {
		movementType, reason = domain.MovementOut, "Kurangi stok"
	}
	next.Movements = append(next.Movements, newMovement(next.Stocks[idx].ID, movementType, absInt(in.Quantity), reason, at))
	return next
}

// ApplyTransaction moves stock for one sale or purchase line. Unknown items
// are created: a purchase seeds quantity and cost, a sale seeds a zero-stock
// record that only remembers the selling price. Unit labels of an existing
// item are never touched here.
func ApplyTransaction(state StockState, ev StockEvent, at time.Time) StockState {
	next := state.Clone()
	name := strings.TrimSpace(ev.ItemName)
	if ItemKey(name) == "" {
		return next
	}
	qty := max(0, ev.Quantity)
	isPack := unit.IsPack(ev.Unit)
	price := nonNegative(ev.Price)
	if price != nil && *price == 0 {
		price = nil
	}

	idx := next.indexByName(name)
	if idx >= 0 {
		item := &next.Stocks[idx]
		adoptUnitsPerPack(item, ev.UnitsPerPack)

		if item.UnitsPerPack != nil && item.SmallUnitQuantity != nil {
			pieces := piecesFor(qty, ev.Unit, *item.UnitsPerPack)
			if ev.Kind == domain.IntentSale {
				pieces = -pieces
			}
			setSmallQuantity(item, *item.SmallUnitQuantity+pieces)
		} else if ev.Kind == domain.IntentSale {
			item.PackQuantity = max(0, item.PackQuantity-qty)
		} else {
			item.PackQuantity += qty
		}

		if price != nil {
			applyEventPrice(item, ev.Kind, isPack, *price)
		}
		item.UpdatedAt = at
	} else {
		item := newStockItem(name, ev.Unit, positiveInt(ev.UnitsPerPack), at)
		if ev.Kind == domain.IntentPurchase {
			seedQuantity(&item, qty, unit.OrDefault(ev.Unit))
		} else {
			seedQuantity(&item, 0, unit.OrDefault(ev.Unit))
		}
		if price != nil {
			applyEventPrice(&item, ev.Kind, isPack, *price)
		}
		next.Stocks = append(next.Stocks, item)
		idx = len(next.Stocks) - 1
	}

	movementType, reason := domain.MovementIn, "Pembelian"
	if ev.Kind == domain.IntentSale {
		movementType, reason = domain.MovementOut, "Penjualan"
	}
	next.Movements = append(next.Movements, newMovement(next.Stocks[idx].ID, movementType, qty, reason, at))
	return next
}

// ReverseTransaction undoes the quantity effect of ApplyTransaction. Prices
// stay as they are. A reversal for an item that no longer exists is a no-op.
func ReverseTransaction(state StockState, ev StockEvent, at time.Time) StockState {
	idx := state.indexByName(ev.ItemName)
	if idx < 0 {
		return state
	}
	next := state.Clone()
	item := &next.Stocks[idx]
	qty := max(0, ev.Quantity)

	if item.UnitsPerPack != nil && item.SmallUnitQuantity != nil {
		pieces := piecesFor(qty, ev.Unit, *item.UnitsPerPack)
		if ev.Kind == domain.IntentPurchase {
			pieces = -pieces
		}
		setSmallQuantity(item, *item.SmallUnitQuantity+pieces)
	} else if ev.Kind == domain.IntentPurchase {
		item.PackQuantity = max(0, item.PackQuantity-qty)
	} else {
		item.PackQuantity += qty
	}
	item.UpdatedAt = at

	movementType := domain.MovementIn
	if ev.Kind == domain.IntentPurchase {
		movementType = domain.MovementOut
	}
	reason := fmt.Sprintf("Transaksi %s dihapus", ev.Kind)
	next.Movements = append(next.Movements, newMovement(item.ID, movementType, qty, reason, at))
	return next
}

// ApplyPriceUpdate overwrites only the provided price fields. It never
// creates an item.
func ApplyPriceUpdate(state StockState, in PriceUpdate, at time.Time) (StockState, error) {
	idx := state.indexByName(in.ItemName)
	if idx < 0 {
		return state, fmt.Errorf("stock %q: %w", strings.TrimSpace(in.ItemName), ErrNotFound)
	}
	next := state.Clone()
	item := &next.Stocks[idx]

	if normalized := unit.Normalize(in.Unit); normalized != "" && unit.Classify(normalized) != unit.Piece {
		item.PackUnit = normalized
		item.UnitUnit = unit.SmallUnit(normalized)
	}
	adoptUnitsPerPack(item, in.UnitsPerPack)
	applyPrices(item, in.Prices)
	item.UpdatedAt = at
	return next, nil
}

// AdjustStockAbsolute overrides the pack count, e.g. after a physical count.
// Loose pieces below one pack are kept.
func AdjustStockAbsolute(state StockState, stockID string, newQuantity int, reason string, at time.Time) (StockState, error) {
	idx := state.indexByID(stockID)
	if idx < 0 {
		return state, fmt.Errorf("stock %s: %w", stockID, ErrNotFound)
	}
	next := state.Clone()
	item := &next.Stocks[idx]
	previous := item.PackQuantity
	target := max(0, newQuantity)

	if item.UnitsPerPack != nil {
		upp := *item.UnitsPerPack
		loose := currentSmall(item) % upp
		setSmallQuantity(item, target*upp+loose)
	} else {
		item.PackQuantity = target
	}
	item.UpdatedAt = at

	if strings.TrimSpace(reason) == "" {
		reason = "Penyesuaian stok"
	}
	next.Movements = append(next.Movements, newMovement(item.ID, domain.MovementAdjustment, target-previous, reason, at))
	return next, nil
}

type StockUpdate struct {
	Name         *string
	PackUnit     *string
	UnitUnit     *string
	UnitsPerPack *int
	Prices       PriceFields
	MinStock     *int
}

// UpdateStock is the explicit edit path. Changing UnitsPerPack keeps the
// number of whole packs and carries over loose pieces that still fit.
func UpdateStock(state StockState, stockID string, in StockUpdate, at time.Time) (StockState, error) {
	idx := state.indexByID(stockID)
	if idx < 0 {
		return state, fmt.Errorf("stock %s: %w", stockID, ErrNotFound)
	}
	if in.Name != nil {
		key := ItemKey(*in.Name)
		if key == "" {
			return state, fmt.Errorf("stock name empty: %w", ErrInvalidInput)
		}
		if other := state.indexByName(key); other >= 0 && other != idx {
			return state, fmt.Errorf("stock %q: %w", *in.Name, ErrDuplicateName)
		}
	}

	next := state.Clone()
	item := &next.Stocks[idx]
	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.PackUnit != nil {
		item.PackUnit = unit.OrDefault(*in.PackUnit)
	}
	if in.UnitUnit != nil {
		item.UnitUnit = unit.OrDefault(*in.UnitUnit)
	}
	if upp := positiveInt(in.UnitsPerPack); upp != nil {
		switch {
		case item.UnitsPerPack == nil:
			adoptUnitsPerPack(item, upp)
		case *item.UnitsPerPack != *upp:
			oldUnits, newUnits := *item.UnitsPerPack, *upp
			loose := min(currentSmall(item)%oldUnits, newUnits-1)
			item.UnitsPerPack = upp
			setSmallQuantity(item, item.PackQuantity*newUnits+loose)
			deriveModalPerUnit(item)
		}
	}
	applyPrices(item, in.Prices)
	if in.MinStock != nil {
		item.MinStock = max(0, *in.MinStock)
	}
	item.UpdatedAt = at
	return next, nil
}

// DeleteStock drops the item and its movement history. Cleaning up
// transaction lines is the caller's job.
func DeleteStock(state StockState, stockID string) (StockState, domain.StockItem, error) {
	idx := state.indexByID(stockID)
	if idx < 0 {
		return state, domain.StockItem{}, fmt.Errorf("stock %s: %w", stockID, ErrNotFound)
	}
	removed := cloneStockItem(state.Stocks[idx])

	next := StockState{
		Stocks:    make([]domain.StockItem, 0, len(state.Stocks)-1),
		Movements: make([]domain.StockMovement, 0, len(state.Movements)),
	}
	for i, item := range state.Stocks {
		if i != idx {
			next.Stocks = append(next.Stocks, cloneStockItem(item))
		}
	}
	for _, mv := range state.Movements {
		if mv.StockID != stockID {
			next.Movements = append(next.Movements, mv)
		}
	}
	return next, removed, nil
}

func LowStock(state StockState) []domain.StockItem {
	result := make([]domain.StockItem, 0)
	for _, item := range state.Stocks {
		if item.PackQuantity <= item.MinStock {
			result = append(result, cloneStockItem(item))
		}
	}
	return result
}

func MovementsFor(state StockState, stockID string) []domain.StockMovement {
	result := make([]domain.StockMovement, 0)
	for _, mv := range state.Movements {
		if mv.StockID == stockID {
			result = append(result, mv)
		}
	}
	return result
}

// ReplayMovements rebuilds a quantity from the audit trail, clamping at zero
// after each step the same way the ledger does. It is exact for items whose
// movements are all in one unit.
func ReplayMovements(movements []domain.StockMovement, stockID string, initial int) int {
	qty := initial
	for _, mv := range movements {
		if mv.StockID != stockID {
			continue
		}
		switch mv.Type {
		case domain.MovementIn:
			qty += mv.Quantity
		case domain.MovementOut:
			qty -= mv.Quantity
		case domain.MovementAdjustment:
			qty += mv.Quantity
		}
		qty = max(0, qty)
	}
	return qty
}

func newStockItem(name string, rawUnit string, unitsPerPack *int, at time.Time) domain.StockItem {
	packUnit := unit.OrDefault(rawUnit)
	return domain.StockItem{
		ID:           xid.New("stk"),
		Name:         name,
		PackUnit:     packUnit,
		UnitUnit:     unit.SmallUnit(packUnit),
		UnitsPerPack: unitsPerPack,
		MinStock:     domain.DefaultMinStock,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func newMovement(stockID string, movementType string, qty int, reason string, at time.Time) domain.StockMovement {
	return domain.StockMovement{
		ID:        xid.New("mv"),
		StockID:   stockID,
		Type:      movementType,
		Quantity:  qty,
		Reason:    reason,
		CreatedAt: at,
	}
}

// seedQuantity sets the opening quantity of a fresh item. qty is expressed
// in u; piece quantities of a packed item are split into packs.
func seedQuantity(item *domain.StockItem, qty int, u string) {
	qty = max(0, qty)
	if item.UnitsPerPack == nil {
		item.PackQuantity = qty
		item.SmallUnitQuantity = nil
		return
	}
	setSmallQuantity(item, piecesFor(qty, u, *item.UnitsPerPack))
}

// setSmallQuantity stores the piece count and derives the pack count from
// it. Requires UnitsPerPack.
func setSmallQuantity(item *domain.StockItem, small int) {
	small = max(0, small)
	item.SmallUnitQuantity = intPtr(small)
	item.PackQuantity = small / *item.UnitsPerPack
}

func currentSmall(item *domain.StockItem) int {
	if item.SmallUnitQuantity != nil {
		return *item.SmallUnitQuantity
	}
	if item.UnitsPerPack != nil {
		return item.PackQuantity * *item.UnitsPerPack
	}
	return item.PackQuantity
}

// adoptUnitsPerPack records a conversion factor the first time one is seen.
// An already known factor is never replaced implicitly.
func adoptUnitsPerPack(item *domain.StockItem, unitsPerPack *int) {
	upp := positiveInt(unitsPerPack)
	if upp == nil || item.UnitsPerPack != nil {
		return
	}
	small := item.PackQuantity * *upp
	item.UnitsPerPack = upp
	setSmallQuantity(item, small)
	deriveModalPerUnit(item)
}

func piecesFor(qty int, u string, unitsPerPack int) int {
	if unit.IsPack(u) {
		return qty * unitsPerPack
	}
	return qty
}

func applyEventPrice(item *domain.StockItem, kind string, isPack bool, price int64) {
	switch {
	case kind == domain.IntentPurchase && isPack:
		item.ModalPerPack = int64Ptr(price)
		deriveModalPerUnit(item)
	case kind == domain.IntentPurchase:
		item.ModalPerUnit = int64Ptr(price)
	case isPack:
		item.SellPerPack = int64Ptr(price)
	default:
		item.SellPerUnit = int64Ptr(price)
	}
}

// applyPrices sets the provided prices. ModalPerUnit is derived from
// ModalPerPack unless the caller gave one explicitly.
func applyPrices(item *domain.StockItem, prices PriceFields) {
	if v := nonNegative(prices.ModalPerPack); v != nil {
		item.ModalPerPack = v
	}
	if v := nonNegative(prices.SellPerPack); v != nil {
		item.SellPerPack = v
	}
	if v := nonNegative(prices.SellPerUnit); v != nil {
		item.SellPerUnit = v
	}
	if v := nonNegative(prices.ModalPerUnit); v != nil {
		item.ModalPerUnit = v
		return
	}
	deriveModalPerUnit(item)
}

func deriveModalPerUnit(item *domain.StockItem) {
	if item.ModalPerPack == nil || item.UnitsPerPack == nil {
		return
	}
	item.ModalPerUnit = int64Ptr(roundDiv(*item.ModalPerPack, *item.UnitsPerPack))
}
