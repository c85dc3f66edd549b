package store

import (
	"testing"
	"time"

	"catatwarung/backend/internal/ledger"
)

func TestAggregateRoundTripKeepsFingerprint(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	var snap ledger.Snapshot
	snap.Debts = ledger.ApplyDebtAdd(snap.Debts, "Pak Budi", 50000, "", at)
	snap.Stock = ledger.ApplyStockAdd(snap.Stock, ledger.StockAdd{ItemName: "Beras", Quantity: 10, Unit: "kg"}, at)

	for _, aggregate := range Aggregates {
		payload, err := EncodeAggregate(snap, aggregate)
		if err != nil {
			t.Fatalf("encode %s: %v", aggregate, err)
		}
		var decoded ledger.Snapshot
		if err := DecodeAggregate(&decoded, aggregate, payload); err != nil {
			t.Fatalf("decode %s: %v", aggregate, err)
		}
		again, _ := EncodeAggregate(decoded, aggregate)
		if Fingerprint(again) != Fingerprint(payload) {
			t.Fatalf("%s fingerprint changed after round trip", aggregate)
		}
	}
}

func TestUnknownAggregate(t *testing.T) {
	if _, err := EncodeAggregate(ledger.Snapshot{}, "ledger"); err == nil {
		t.Fatalf("expected error for unknown aggregate")
	}
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Fatalf("distinct payloads share a fingerprint")
	}
}

func TestRemoteUpdateWins(t *testing.T) {
	payload := []byte(`{"debts":[]}`)
	same := Fingerprint(payload)
	cases := []struct {
		name        string
		update      RemoteUpdate
		version     int64
		fingerprint string
		want        bool
	}{
		{"newer", RemoteUpdate{Version: 3, Payload: payload}, 2, "other", true},
		{"older", RemoteUpdate{Version: 1, Payload: payload}, 2, "other", false},
		{"tie higher origin", RemoteUpdate{Origin: "b", LocalOrigin: "a", Version: 2, Payload: payload}, 2, "other", true},
		{"tie lower origin", RemoteUpdate{Origin: "a", LocalOrigin: "b", Version: 2, Payload: payload}, 2, "other", false},
		{"identical content", RemoteUpdate{Version: 9, Payload: payload}, 2, same, false},
	}
	for _, tc := range cases {
		if got := tc.update.Wins(tc.version, tc.fingerprint); got != tc.want {
			t.Fatalf("%s: Wins = %v, want %v", tc.name, got, tc.want)
		}
	}
}
