package domain

import "time"

type StockItem struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PackQuantity      int       `json:"pack_quantity"`
	SmallUnitQuantity *int      `json:"small_unit_quantity"`
	PackUnit          string    `json:"pack_unit"`
	UnitUnit          string    `json:"unit_unit"`
	UnitsPerPack      *int      `json:"units_per_pack"`
	ModalPerPack      *int64    `json:"modal_per_pack"`
	ModalPerUnit      *int64    `json:"modal_per_unit"`
	SellPerPack       *int64    `json:"sell_per_pack"`
	SellPerUnit       *int64    `json:"sell_per_unit"`
	MinStock          int       `json:"min_stock"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StockMovement is the inventory audit trail. Quantity is absolute for in/out
// and a signed delta for adjustment.
type StockMovement struct {
	ID        string    `json:"id"`
	StockID   string    `json:"stock_id"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type DebtTransaction struct {
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type Debt struct {
	ID              string            `json:"id"`
	DebtorName      string            `json:"debtor_name"`
	TotalAmount     int64             `json:"total_amount"`
	PaidAmount      int64             `json:"paid_amount"`
	RemainingAmount int64             `json:"remaining_amount"`
	Status          string            `json:"status"`
	Transactions    []DebtTransaction `json:"transactions"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type TransactionItem struct {
	ItemName     string `json:"item_name"`
	Quantity     int    `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit *int64 `json:"price_per_unit"`
	TotalAmount  int64  `json:"total_amount"`
}

type Transaction struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Items       []TransactionItem `json:"items"`
	TotalAmount int64             `json:"total_amount"`
	Note        string            `json:"note"`
	RawText     string            `json:"raw_text"`
	DebtID      string            `json:"debt_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type IntentLine struct {
	ItemName     string `json:"item_name"`
	Quantity     *int   `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit *int64 `json:"price_per_unit"`
	TotalAmount  *int64 `json:"total_amount"`
}

type IntentDebt struct {
	DebtorName     string `json:"debtor_name"`
	Amount         *int64 `json:"amount"`
	OriginalAmount *int64 `json:"original_amount"`
}

type IntentStock struct {
	ItemName     string `json:"item_name"`
	Quantity     *int   `json:"quantity"`
	Unit         string `json:"unit"`
	UnitsPerPack *int   `json:"units_per_pack"`
	ModalPerPack *int64 `json:"modal_per_pack"`
	ModalPerUnit *int64 `json:"modal_per_unit"`
	SellPerPack  *int64 `json:"sell_per_pack"`
	SellPerUnit  *int64 `json:"sell_per_unit"`
}

// ParsedIntent is what the speech/OCR interpreter hands over. Only Type and
// RawText are expected; everything else may be missing.
type ParsedIntent struct {
	Type         string       `json:"type"`
	Transactions []IntentLine `json:"transactions"`
	Debt         *IntentDebt  `json:"debt"`
	Stock        *IntentStock `json:"stock"`
	Note         string       `json:"note"`
	RawText      string       `json:"raw_text"`
	Confidence   float64      `json:"confidence"`
}

type StockUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	PackUnit     *string `json:"pack_unit,omitempty"`
	UnitUnit     *string `json:"unit_unit,omitempty"`
	UnitsPerPack *int    `json:"units_per_pack,omitempty"`
	ModalPerPack *int64  `json:"modal_per_pack,omitempty"`
	ModalPerUnit *int64  `json:"modal_per_unit,omitempty"`
	SellPerPack  *int64  `json:"sell_per_pack,omitempty"`
	SellPerUnit  *int64  `json:"sell_per_unit,omitempty"`
	MinStock     *int    `json:"min_stock,omitempty"`
}

type StockAdjustRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type DebtUpdateRequest struct {
	DebtorName  *string `json:"debtor_name,omitempty"`
	TotalAmount *int64  `json:"total_amount,omitempty"`
}

type TransactionEditRequest struct {
	Items []TransactionItem `json:"items"`
	Note  string            `json:"note"`
}

type VoiceRequest struct {
	Text string `json:"text"`
}

type Summary struct {
	Date             string `json:"date"`
	TotalSales       int64  `json:"total_sales"`
	TotalPurchases   int64  `json:"total_purchases"`
	TotalDebtAdded   int64  `json:"total_debt_added"`
	TotalDebtPaid    int64  `json:"total_debt_paid"`
	TransactionCount int    `json:"transaction_count"`
}

type ReconcileResponse struct {
	Intent      ParsedIntent `json:"intent"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Stocks      []StockItem  `json:"stocks,omitempty"`
	Debt        *Debt        `json:"debt,omitempty"`
	Warnings    []string     `json:"warnings"`
}

type Actor struct {
	ShopID string
	Owner  string
}

const (
	IntentSale        = "sale"
	IntentPurchase    = "purchase"
	IntentDebtAdd     = "debt_add"
	IntentDebtPayment = "debt_payment"
	IntentStockAdd    = "stock_add"
	IntentPriceUpdate = "price_update"
)

const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

const (
	DebtStatusPending = "pending"
	DebtStatusPartial = "partial"
	DebtStatusPaid    = "paid"
)

const (
	DebtTxAdd     = "add"
	DebtTxPayment = "payment"
)

const DefaultMinStock = 5
