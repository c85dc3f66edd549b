package intent

import (
	"context"
	"errors"
	"testing"

	"catatwarung/backend/internal/domain"
)

func TestNormalize(t *testing.T) {
	qty := 2
	intent := domain.ParsedIntent{
		Type: " SALE ",
		Transactions: []domain.IntentLine{
			{ItemName: "  Aqua ", Quantity: &qty, Unit: "Botol"},
			{ItemName: " ", Unit: "pcs"},
			{ItemName: "Indomie", Unit: "Kardus"},
		},
		Debt:       &domain.IntentDebt{DebtorName: "  "},
		Stock:      &domain.IntentStock{Unit: "dus"},
		Confidence: 1.7,
	}
	Normalize(&intent, "  jual aqua dua botol ")

	if intent.Type != domain.IntentSale || intent.RawText != "jual aqua dua botol" || intent.Confidence != 1 {
		t.Fatalf("unexpected header %+v", intent)
	}
	if len(intent.Transactions) != 2 {
		t.Fatalf("expected blank line dropped, got %d lines", len(intent.Transactions))
	}
	if intent.Transactions[0].ItemName != "Aqua" || intent.Transactions[1].Unit != "dus" {
		t.Fatalf("unexpected lines %+v", intent.Transactions)
	}
	if intent.Debt != nil || intent.Stock != nil {
		t.Fatalf("empty debt and stock blocks must be dropped")
	}
}

func TestUnavailable(t *testing.T) {
	if _, err := (Unavailable{}).Interpret(context.Background(), "jual teh"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
