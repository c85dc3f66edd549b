package intent

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"catatwarung/backend/internal/domain"
)

// Numbers travel as strings so the model can leave them empty; strict
// structured output has no optional fields.
type modelIntent struct {
	Type           string      `json:"type" jsonschema:"enum=sale,enum=purchase,enum=debt_add,enum=debt_payment,enum=stock_add,enum=price_update" jsonschema_description:"What happened in the shop"`
	Lines          []modelLine `json:"lines" jsonschema_description:"Items sold or bought. Empty for debt events."`
	DebtorName     string      `json:"debtor_name" jsonschema_description:"Who owes or pays, including honorific such as Bu or Pak. Empty when not a debt event."`
	DebtAmount     string      `json:"debt_amount" jsonschema_description:"Debt added or paid in rupiah, digits only. Empty if not said."`
	OriginalAmount string      `json:"original_amount" jsonschema_description:"Total debt before this payment if mentioned, rupiah digits only. Empty otherwise."`
	Stock          modelStock  `json:"stock" jsonschema_description:"Stock details for stock_add, price_update and pack sizes mentioned in a purchase."`
	Note           string      `json:"note" jsonschema_description:"Short free-text note, may be empty"`
	Confidence     float64     `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
}

type modelLine struct {
	ItemName     string `json:"item_name" jsonschema_description:"Product name as spoken"`
	Quantity     string `json:"quantity" jsonschema_description:"Whole number, empty if not said. Negative only for stock reductions."`
	Unit         string `json:"unit" jsonschema_description:"Unit as spoken, e.g. dus, pak, pcs, kg, liter"`
	PricePerUnit string `json:"price_per_unit" jsonschema_description:"Rupiah per unit, digits only, empty if not said"`
	TotalAmount  string `json:"total_amount" jsonschema_description:"Rupiah for the whole line, digits only, empty if not said"`
}

type modelStock struct {
	ItemName     string `json:"item_name"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
	UnitsPerPack string `json:"units_per_pack" jsonschema_description:"Pieces in one pack, empty if unknown"`
	ModalPerPack string `json:"modal_per_pack" jsonschema_description:"Purchase cost per pack in rupiah"`
	ModalPerUnit string `json:"modal_per_unit" jsonschema_description:"Purchase cost per piece in rupiah"`
	SellPerPack  string `json:"sell_per_pack" jsonschema_description:"Selling price per pack in rupiah"`
	SellPerUnit  string `json:"sell_per_unit" jsonschema_description:"Selling price per piece in rupiah"`
}

func (m modelIntent) toParsedIntent(rawText string) (domain.ParsedIntent, error) {
	out := domain.ParsedIntent{
		Type:         m.Type,
		Transactions: make([]domain.IntentLine, 0, len(m.Lines)),
		Note:         m.Note,
		RawText:      rawText,
		Confidence:   m.Confidence,
	}

	for i, line := range m.Lines {
		qty, err := parseQuantity(line.Quantity)
		if err != nil {
			return domain.ParsedIntent{}, fmt.Errorf("line %d quantity: %w", i, err)
		}
		price, err := parseRupiah(line.PricePerUnit)
		if err != nil {
			return domain.ParsedIntent{}, fmt.Errorf("line %d price: %w", i, err)
		}
		total, err := parseRupiah(line.TotalAmount)
		if err != nil {
			return domain.ParsedIntent{}, fmt.Errorf("line %d total: %w", i, err)
		}
		out.Transactions = append(out.Transactions, domain.IntentLine{
			ItemName:     line.ItemName,
			Quantity:     qty,
			Unit:         line.Unit,
			PricePerUnit: price,
			TotalAmount:  total,
		})
	}

	if strings.TrimSpace(m.DebtorName) != "" || !isBlank(m.DebtAmount) {
		amount, err := parseRupiah(m.DebtAmount)
		if err != nil {
			return domain.ParsedIntent{}, fmt.Errorf("debt amount: %w", err)
		}
		original, err := parseRupiah(m.OriginalAmount)
		if err != nil {
			return domain.ParsedIntent{}, fmt.Errorf("original amount: %w", err)
		}
		out.Debt = &domain.IntentDebt{DebtorName: m.DebtorName, Amount: amount, OriginalAmount: original}
	}

	stock, err := m.Stock.toIntentStock()
	if err != nil {
		return domain.ParsedIntent{}, err
	}
	out.Stock = stock
	return out, nil
}

func (s modelStock) toIntentStock() (*domain.IntentStock, error) {
	if strings.TrimSpace(s.ItemName) == "" && isBlank(s.UnitsPerPack) {
		return nil, nil
	}
	out := &domain.IntentStock{ItemName: s.ItemName, Unit: s.Unit}
	var err error
	if out.Quantity, err = parseQuantity(s.Quantity); err != nil {
		return nil, fmt.Errorf("stock quantity: %w", err)
	}
	if out.UnitsPerPack, err = parseQuantity(s.UnitsPerPack); err != nil {
		return nil, fmt.Errorf("units per pack: %w", err)
	}
	for _, field := range []struct {
		raw string
		dst **int64
	}{
		{s.ModalPerPack, &out.ModalPerPack},
		{s.ModalPerUnit, &out.ModalPerUnit},
		{s.SellPerPack, &out.SellPerPack},
		{s.SellPerUnit, &out.SellPerUnit},
	} {
		if *field.dst, err = parseRupiah(field.raw); err != nil {
			return nil, fmt.Errorf("stock price: %w", err)
		}
	}
	return out, nil
}

var rupiahMultipliers = []struct {
	suffix string
	factor int64
}{
	{"juta", 1_000_000},
	{"jt", 1_000_000},
	{"ribu", 1_000},
	{"rb", 1_000},
	{"k", 1_000},
}

// parseRupiah reads "15000", "Rp 15.000", "15rb" or "1,5 juta". Blank and
// "null" mean unknown.
func parseRupiah(raw string) (*int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if isBlank(s) {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "rp")
	s = strings.TrimSpace(strings.TrimPrefix(s, "."))

	factor := int64(1)
	for _, m := range rupiahMultipliers {
		if strings.HasSuffix(s, m.suffix) {
			factor = m.factor
			s = strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			break
		}
	}

	switch {
	case factor == 1:
		// Without a multiplier both separators group thousands.
		s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	v := d.Mul(decimal.NewFromInt(factor)).Round(0).IntPart()
	return &v, nil
}

func parseQuantity(raw string) (*int, error) {
	s := strings.TrimSpace(raw)
	if isBlank(s) {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", raw, err)
	}
	v := int(d.Round(0).IntPart())
	return &v, nil
}

func isBlank(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || s == "null"
}
