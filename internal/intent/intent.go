// Package intent turns shop owners' utterances into ParsedIntent values.
package intent

import (
	"context"
	"errors"
	"strings"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/unit"
)

var (
	ErrEmptyText   = errors.New("empty utterance")
	ErrUnavailable = errors.New("interpreter unavailable")
)

type Interpreter interface {
	Interpret(ctx context.Context, text string) (domain.ParsedIntent, error)
}

// Unavailable is used when no model is configured.
type Unavailable struct{}

func (Unavailable) Interpret(_ context.Context, _ string) (domain.ParsedIntent, error) {
	return domain.ParsedIntent{}, ErrUnavailable
}

// Normalize canonicalizes an intent in place: lowercase type, trimmed names,
// canonical unit labels, confidence within [0, 1] and the raw text kept.
func Normalize(intent *domain.ParsedIntent, rawText string) {
	intent.Type = strings.ToLower(strings.TrimSpace(intent.Type))
	intent.Note = strings.TrimSpace(intent.Note)
	if strings.TrimSpace(intent.RawText) == "" {
		intent.RawText = strings.TrimSpace(rawText)
	}
	intent.Confidence = min(1, max(0, intent.Confidence))

	lines := intent.Transactions[:0]
	for _, line := range intent.Transactions {
		line.ItemName = strings.TrimSpace(line.ItemName)
		if line.ItemName == "" {
			continue
		}
		line.Unit = unit.Normalize(line.Unit)
		lines = append(lines, line)
	}
	intent.Transactions = lines

	if intent.Debt != nil {
		intent.Debt.DebtorName = strings.TrimSpace(intent.Debt.DebtorName)
		if intent.Debt.DebtorName == "" && intent.Debt.Amount == nil {
			intent.Debt = nil
		}
	}
	if intent.Stock != nil {
		intent.Stock.ItemName = strings.TrimSpace(intent.Stock.ItemName)
		intent.Stock.Unit = unit.Normalize(intent.Stock.Unit)
		if intent.Stock.ItemName == "" && intent.Stock.UnitsPerPack == nil {
			intent.Stock = nil
		}
	}
}
