package ledger

import (
	"fmt"
	"strings"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/xid"
)

type DebtState struct {
	Debts []domain.Debt `json:"debts"`
}

type DebtUpdate struct {
	DebtorName  *string
	TotalAmount *int64
}

func (s DebtState) Clone() DebtState {
	next := DebtState{Debts: make([]domain.Debt, len(s.Debts))}
	for i, debt := range s.Debts {
		next.Debts[i] = cloneDebt(debt)
	}
	return next
}

func cloneDebt(debt domain.Debt) domain.Debt {
	history := make([]domain.DebtTransaction, len(debt.Transactions))
	copy(history, debt.Transactions)
	debt.Transactions = history
	return debt
}

func (s DebtState) indexByName(name string) int {
	key := DebtorKey(name)
	if key == "" {
		return -1
	}
	for i := range s.Debts {
		if DebtorKey(s.Debts[i].DebtorName) == key {
			return i
		}
	}
	return -1
}

func (s DebtState) indexByID(id string) int {
	for i := range s.Debts {
		if s.Debts[i].ID == id {
			return i
		}
	}
	return -1
}

func FindDebt(state DebtState, name string) (domain.Debt, bool) {
	idx := state.indexByName(name)
	if idx < 0 {
		return domain.Debt{}, false
	}
	return cloneDebt(state.Debts[idx]), true
}

func DebtByID(state DebtState, id string) (domain.Debt, bool) {
	idx := state.indexByID(id)
	if idx < 0 {
		return domain.Debt{}, false
	}
	return cloneDebt(state.Debts[idx]), true
}

// ApplyDebtAdd adds to the debtor's account, opening one when needed.
func ApplyDebtAdd(state DebtState, debtorName string, amount int64, note string, at time.Time) DebtState {
	next := state.Clone()
	name := strings.TrimSpace(debtorName)
	if DebtorKey(name) == "" {
		return next
	}
	amount = max(0, amount)

	idx := next.indexByName(name)
	if idx < 0 {
		next.Debts = append(next.Debts, newDebt(name, at))
		idx = len(next.Debts) - 1
	}
	debt := &next.Debts[idx]
	debt.TotalAmount += amount
	settle(debt)
	debt.Transactions = append(debt.Transactions, domain.DebtTransaction{
		Type:      domain.DebtTxAdd,
		Amount:    amount,
		Note:      note,
		CreatedAt: at,
	})
	debt.UpdatedAt = at
	return next
}

// ApplyDebtPayment books a payment capped at what is still owed. A payment
// from an unknown debtor opens the account from originalAmount (or the
// payment itself) and pays it down in the same step.
func ApplyDebtPayment(state DebtState, debtorName string, amount int64, originalAmount *int64, note string, at time.Time) DebtState {
	next := state.Clone()
	name := strings.TrimSpace(debtorName)
	if DebtorKey(name) == "" {
		return next
	}
	amount = max(0, amount)

	idx := next.indexByName(name)
	if idx < 0 {
		total := amount
		if original := nonNegative(originalAmount); original != nil && *original > 0 {
			total = *original
		}
		debt := newDebt(name, at)
		debt.TotalAmount = total
		debt.Transactions = append(debt.Transactions, domain.DebtTransaction{
			Type:      domain.DebtTxAdd,
			Amount:    total,
			Note:      "Hutang awal",
			CreatedAt: at,
		})
		next.Debts = append(next.Debts, debt)
		idx = len(next.Debts) - 1
	}

	debt := &next.Debts[idx]
	payment := min(amount, debt.TotalAmount-debt.PaidAmount)
	debt.PaidAmount += payment
	settle(debt)
	debt.Transactions = append(debt.Transactions, domain.DebtTransaction{
		Type:      domain.DebtTxPayment,
		Amount:    payment,
		Note:      note,
		CreatedAt: at,
	})
	debt.UpdatedAt = at
	return next
}

// UpdateDebtManual edits the name or the total. Lowering the total below
// what was already paid caps the paid amount.
func UpdateDebtManual(state DebtState, debtID string, in DebtUpdate, at time.Time) (DebtState, error) {
	idx := state.indexByID(debtID)
	if idx < 0 {
		return state, fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
	}
	if in.DebtorName != nil {
		if DebtorKey(*in.DebtorName) == "" {
			return state, fmt.Errorf("debtor name empty: %w", ErrInvalidInput)
		}
		if other := state.indexByName(*in.DebtorName); other >= 0 && other != idx {
			return state, fmt.Errorf("debtor %q: %w", *in.DebtorName, ErrDuplicateName)
		}
	}

	next := state.Clone()
	debt := &next.Debts[idx]
	if in.DebtorName != nil {
		debt.DebtorName = strings.TrimSpace(*in.DebtorName)
	}
	if in.TotalAmount != nil {
		debt.TotalAmount = max(0, *in.TotalAmount)
		debt.PaidAmount = min(debt.PaidAmount, debt.TotalAmount)
	}
	settle(debt)
	debt.UpdatedAt = at
	return next, nil
}

func DeleteDebt(state DebtState, debtID string) (DebtState, domain.Debt, error) {
	idx := state.indexByID(debtID)
	if idx < 0 {
		return state, domain.Debt{}, fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
	}
	removed := cloneDebt(state.Debts[idx])
	next := DebtState{Debts: make([]domain.Debt, 0, len(state.Debts)-1)}
	for i, debt := range state.Debts {
		if i != idx {
			next.Debts = append(next.Debts, cloneDebt(debt))
		}
	}
	return next, removed, nil
}

func DebtStatus(paid int64, remaining int64) string {
	switch {
	case remaining == 0:
		return domain.DebtStatusPaid
	case paid > 0:
		return domain.DebtStatusPartial
	default:
		return domain.DebtStatusPending
	}
}

func settle(debt *domain.Debt) {
	debt.RemainingAmount = debt.TotalAmount - debt.PaidAmount
	debt.Status = DebtStatus(debt.PaidAmount, debt.RemainingAmount)
}

func newDebt(name string, at time.Time) domain.Debt {
	return domain.Debt{
		ID:           xid.New("debt"),
		DebtorName:   name,
		Status:       domain.DebtStatusPending,
		Transactions: make([]domain.DebtTransaction, 0, 4),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}
