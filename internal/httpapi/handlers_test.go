package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/intent"
	"catatwarung/backend/internal/reconcile"
	"catatwarung/backend/internal/service"
	"catatwarung/backend/internal/store/memory"
)

var (
	testZone  = time.FixedZone("WIB", 7*3600)
	testClock = time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)
)

const testDate = "2026-10-15"

type scriptedInterpreter map[string]domain.ParsedIntent

func (s scriptedInterpreter) Interpret(_ context.Context, text string) (domain.ParsedIntent, error) {
	parsed, ok := s[text]
	if !ok {
		return domain.ParsedIntent{}, errors.New("not understood")
	}
	return parsed, nil
}

// newTestAPI wires a seeded in-memory store through the real engine,
// service and auth so handler tests exercise the full request path.
func newTestAPI(t *testing.T, interp intent.Interpreter) (*API, string) {
	t.Helper()

	repo := memory.NewSeeded()
	engine := reconcile.New(repo, reconcile.WithClock(func() time.Time { return testClock }))
	svc := service.New(repo, engine, interp, testZone)
	auth := NewAuthManager("test-secret-key", time.Hour, "warung-1")

	token, _, err := auth.Sign("sari", "warung-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return New(svc, auth, "*", 3), token
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (raw %s)", err, rec.Body.String())
	}
	return out
}

func iptr(v int) *int { return &v }

func i64(v int64) *int64 { return &v }

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	handler := api.Handler()

	for _, path := range []string{"/api/v1/stocks", "/api/v1/debts", "/api/v1/transactions", "/api/v1/summary"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stocks", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestIntentSaleThenDeleteRestoresStock(t *testing.T) {
	api, token := newTestAPI(t, nil)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/intents", token, domain.ParsedIntent{
		Type:         "sale",
		Transactions: []domain.IntentLine{{ItemName: "indomie goreng", Quantity: iptr(2), Unit: "biji"}},
		RawText:      "jual indomie dua",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.ReconcileResponse](t, rec)
	if resp.Transaction == nil || resp.Transaction.TotalAmount != 7000 {
		t.Fatalf("expected enriched total 7000, got %+v", resp.Transaction)
	}
	if len(resp.Stocks) != 1 || *resp.Stocks[0].SmallUnitQuantity != 78 {
		t.Fatalf("expected 78 pieces left, got %+v", resp.Stocks)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?date="+testDate, token, nil)
	txs := decodeBody[[]domain.Transaction](t, rec)
	if len(txs) != 1 || txs[0].ID != resp.Transaction.ID {
		t.Fatalf("expected the sale listed for %s, got %+v", testDate, txs)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/summary?date="+testDate, token, nil)
	summary := decodeBody[domain.Summary](t, rec)
	if summary.TotalSales != 7000 || summary.TransactionCount != 1 || summary.Date != testDate {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/transactions/"+resp.Transaction.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	deleted := decodeBody[domain.ReconcileResponse](t, rec)
	if len(deleted.Stocks) != 1 || *deleted.Stocks[0].SmallUnitQuantity != 80 {
		t.Fatalf("expected stock restored to 80, got %+v", deleted.Stocks)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/transactions/"+resp.Transaction.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestTransactionItemRoutes(t *testing.T) {
	api, token := newTestAPI(t, nil)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/intents", token, domain.ParsedIntent{
		Type: "sale",
		Transactions: []domain.IntentLine{
			{ItemName: "Beras", Quantity: iptr(2), Unit: "kg"},
			{ItemName: "Gula Pasir", Quantity: iptr(1), Unit: "kg"},
		},
	})
	resp := decodeBody[domain.ReconcileResponse](t, rec)
	if resp.Transaction == nil || resp.Transaction.TotalAmount != 47500 {
		t.Fatalf("expected 2x15000 + 17500, got %+v", resp.Transaction)
	}
	id := resp.Transaction.ID

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/transactions/"+id+"/items/x", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad index, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/transactions/"+id+"/items/5", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing item, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/transactions/"+id+"/items/1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	trimmed := decodeBody[domain.ReconcileResponse](t, rec)
	if trimmed.Transaction == nil || trimmed.Transaction.TotalAmount != 30000 {
		t.Fatalf("expected remaining total 30000, got %+v", trimmed.Transaction)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/transactions/"+id, token, domain.TransactionEditRequest{
		Items: []domain.TransactionItem{{ItemName: "Beras", Quantity: 3, Unit: "kg", PricePerUnit: i64(15000)}},
		Note:  "koreksi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on edit, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	edited := decodeBody[domain.ReconcileResponse](t, rec)
	if edited.Transaction == nil || edited.Transaction.TotalAmount != 45000 || edited.Transaction.Note != "koreksi" {
		t.Fatalf("unexpected edit result %+v", edited.Transaction)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/transactions/"+id, token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStockRoutes(t *testing.T) {
	api, token := newTestAPI(t, nil)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stocks", token, nil)
	stocks := decodeBody[[]domain.StockItem](t, rec)
	if len(stocks) != 4 {
		t.Fatalf("expected 4 seeded stocks, got %d", len(stocks))
	}
	var beras domain.StockItem
	for _, item := range stocks {
		if item.Name == "Beras" {
			beras = item
		}
	}
	if beras.ID == "" {
		t.Fatalf("seeded Beras missing from %+v", stocks)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/stocks/"+beras.ID+"/adjust", token, domain.StockAdjustRequest{Quantity: 5, Reason: "opname"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on adjust, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	adjusted := decodeBody[domain.StockItem](t, rec)
	if adjusted.PackQuantity != 5 {
		t.Fatalf("expected 5 kg after adjust, got %+v", adjusted)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stocks/"+beras.ID+"/movements", token, nil)
	movements := decodeBody[[]domain.StockMovement](t, rec)
	if len(movements) == 0 || movements[len(movements)-1].Type != domain.MovementAdjustment {
		t.Fatalf("expected adjustment movement, got %+v", movements)
	}

	newName := "Beras Pandan"
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/stocks/"+beras.ID, token, domain.StockUpdateRequest{Name: &newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	dup := "Gula Pasir"
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/stocks/"+beras.ID, token, domain.StockUpdateRequest{Name: &dup})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate name, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/stocks/"+beras.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stocks/"+beras.ID+"/movements", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stocks/"+beras.ID+"/unknown", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", rec.Code)
	}
}

func TestDebtRoutes(t *testing.T) {
	api, token := newTestAPI(t, nil)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/intents", token, domain.ParsedIntent{
		Type: "debt_add",
		Debt: &domain.IntentDebt{DebtorName: "Bu Tini", Amount: i64(50000)},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	added := decodeBody[domain.ReconcileResponse](t, rec)
	if added.Debt == nil || added.Debt.RemainingAmount != 50000 {
		t.Fatalf("unexpected debt %+v", added.Debt)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/debts/"+added.Debt.ID, token, domain.DebtUpdateRequest{TotalAmount: i64(40000)})
	updated := decodeBody[domain.Debt](t, rec)
	if updated.TotalAmount != 40000 || updated.RemainingAmount != 40000 {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/debts?outstanding=1", token, nil)
	debts := decodeBody[[]domain.Debt](t, rec)
	if len(debts) != 1 {
		t.Fatalf("expected one outstanding debt, got %+v", debts)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/debts/"+added.Debt.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?date="+testDate, token, nil)
	if txs := decodeBody[[]domain.Transaction](t, rec); len(txs) != 0 {
		t.Fatalf("expected debt rows to cascade away, got %+v", txs)
	}
}

func TestVoiceRoute(t *testing.T) {
	api, token := newTestAPI(t, scriptedInterpreter{
		"bayar hutang pak budi 20 ribu": {
			Type: "debt_payment",
			Debt: &domain.IntentDebt{DebtorName: "Pak Budi", Amount: i64(20000), OriginalAmount: i64(50000)},
		},
	})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/voice", token, domain.VoiceRequest{Text: "bayar hutang pak budi 20 ribu"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.ReconcileResponse](t, rec)
	if resp.Debt == nil || resp.Debt.RemainingAmount != 30000 {
		t.Fatalf("expected 30000 remaining, got %+v", resp.Debt)
	}
	if resp.Intent.RawText != "bayar hutang pak budi 20 ribu" {
		t.Fatalf("expected raw text echoed, got %q", resp.Intent.RawText)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/voice", token, domain.VoiceRequest{Text: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rec.Code)
	}
}

func TestVoiceWithoutInterpreterIsUnavailable(t *testing.T) {
	api, token := newTestAPI(t, intent.Unavailable{})
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/voice", token, domain.VoiceRequest{Text: "jual beras"})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestIntentValidationErrors(t *testing.T) {
	api, token := newTestAPI(t, nil)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/intents", token, domain.ParsedIntent{Type: "refund"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/intents", token, domain.ParsedIntent{
		Type:  "price_update",
		Stock: &domain.IntentStock{ItemName: "Kopi Kapal Api", SellPerUnit: i64(2000)},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/summary?date=15-10-2026", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", bytes.NewReader([]byte(`{"type":"sale","bogus":1}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}
