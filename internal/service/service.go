package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"catatwarung/backend/internal/domain"
	"catatwarung/backend/internal/intent"
	"catatwarung/backend/internal/ledger"
	"catatwarung/backend/internal/reconcile"
	"catatwarung/backend/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	engine      *reconcile.Engine
	interpreter intent.Interpreter
	loc         *time.Location
	now         func() time.Time
}

func New(repo store.Repository, engine *reconcile.Engine, interpreter intent.Interpreter, loc *time.Location) *Service {
	if interpreter == nil {
		interpreter = intent.Unavailable{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:        repo,
		engine:      engine,
		interpreter: interpreter,
		loc:         loc,
		now:         time.Now,
	}
}

func (s *Service) ApplyIntent(ctx context.Context, in domain.ParsedIntent) (domain.ReconcileResponse, error) {
	intent.Normalize(&in, in.RawText)
	result, err := s.engine.Apply(ctx, in)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	return toReconcileResponse(in, result), nil
}

// Voice interprets free text and applies the resulting intent.
func (s *Service) Voice(ctx context.Context, req domain.VoiceRequest) (domain.ReconcileResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.ReconcileResponse{}, fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}

	parsed, err := s.interpreter.Interpret(ctx, text)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	if parsed.RawText == "" {
		parsed.RawText = text
	}
	return s.ApplyIntent(ctx, parsed)
}

func (s *Service) ListTransactions(ctx context.Context, date string) ([]domain.Transaction, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	state, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.ByDate(state.Snapshot.Transactions, day, s.loc), nil
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.Summary, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return domain.Summary{}, err
	}
	state, err := s.repo.Load(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	from, to := ledger.DayWindow(day, s.loc)
	summary := ledger.Summary(state.Snapshot.Transactions, from, to)
	summary.Date = from.Format("2006-01-02")
	return summary, nil
}

func (s *Service) ListStocks(ctx context.Context, lowOnly bool) ([]domain.StockItem, error) {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	items := state.Snapshot.Stock.Stocks
	if lowOnly {
		items = ledger.LowStock(state.Snapshot.Stock)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func (s *Service) StockMovements(ctx context.Context, stockID string) ([]domain.StockMovement, error) {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := ledger.StockByID(state.Snapshot.Stock, stockID); !ok {
		return nil, fmt.Errorf("stock %s: %w", stockID, ledger.ErrNotFound)
	}
	return ledger.MovementsFor(state.Snapshot.Stock, stockID), nil
}

// ListDebts returns accounts with the largest outstanding balance first.
func (s *Service) ListDebts(ctx context.Context, outstandingOnly bool) ([]domain.Debt, error) {
	state, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	debts := make([]domain.Debt, 0, len(state.Snapshot.Debts.Debts))
	for _, debt := range state.Snapshot.Debts.Debts {
		if outstandingOnly && debt.RemainingAmount == 0 {
			continue
		}
		debts = append(debts, debt)
	}
	sort.SliceStable(debts, func(i, j int) bool {
		if debts[i].RemainingAmount != debts[j].RemainingAmount {
			return debts[i].RemainingAmount > debts[j].RemainingAmount
		}
		return strings.ToLower(debts[i].DebtorName) < strings.ToLower(debts[j].DebtorName)
	})
	return debts, nil
}

func (s *Service) EditTransaction(ctx context.Context, id string, req domain.TransactionEditRequest) (domain.ReconcileResponse, error) {
	result, err := s.engine.EditTransaction(ctx, id, req)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	s.audit(ctx, "edit transaction %s", id)
	return toReconcileResponse(domain.ParsedIntent{}, result), nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) (domain.ReconcileResponse, error) {
	result, err := s.engine.DeleteTransaction(ctx, id)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	s.audit(ctx, "delete transaction %s", id)
	return toReconcileResponse(domain.ParsedIntent{}, result), nil
}

func (s *Service) DeleteTransactionItem(ctx context.Context, id string, index int) (domain.ReconcileResponse, error) {
	result, err := s.engine.DeleteTransactionItem(ctx, id, index)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	s.audit(ctx, "delete transaction %s item %d", id, index)
	return toReconcileResponse(domain.ParsedIntent{}, result), nil
}

func (s *Service) AdjustStock(ctx context.Context, stockID string, req domain.StockAdjustRequest) (domain.StockItem, error) {
	if req.Quantity < 0 {
		return domain.StockItem{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidRequest)
	}
	item, err := s.engine.AdjustStock(ctx, stockID, req)
	if err != nil {
		return domain.StockItem{}, err
	}
	s.audit(ctx, "adjust stock %s to %d", stockID, req.Quantity)
	return item, nil
}

func (s *Service) UpdateStock(ctx context.Context, stockID string, req domain.StockUpdateRequest) (domain.StockItem, error) {
	item, err := s.engine.UpdateStock(ctx, stockID, req)
	if err != nil {
		return domain.StockItem{}, err
	}
	s.audit(ctx, "update stock %s", stockID)
	return item, nil
}

func (s *Service) DeleteStock(ctx context.Context, stockID string) (domain.StockItem, error) {
	item, err := s.engine.DeleteStock(ctx, stockID)
	if err != nil {
		return domain.StockItem{}, err
	}
	s.audit(ctx, "delete stock %s (%s)", stockID, item.Name)
	return item, nil
}

func (s *Service) UpdateDebt(ctx context.Context, debtID string, req domain.DebtUpdateRequest) (domain.Debt, error) {
	debt, err := s.engine.UpdateDebt(ctx, debtID, req)
	if err != nil {
		return domain.Debt{}, err
	}
	s.audit(ctx, "update debt %s", debtID)
	return debt, nil
}

func (s *Service) DeleteDebt(ctx context.Context, debtID string) (domain.Debt, error) {
	debt, dropped, err := s.engine.DeleteDebt(ctx, debtID)
	if err != nil {
		return domain.Debt{}, err
	}
	s.audit(ctx, "delete debt %s (%s) with %d transaction(s)", debtID, debt.DebtorName, dropped)
	return debt, nil
}

func (s *Service) parseDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return s.now().In(s.loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return day, nil
}

func (s *Service) audit(ctx context.Context, format string, args ...any) {
	owner := "unknown"
	if actor, ok := ActorFromContext(ctx); ok && actor.Owner != "" {
		owner = actor.Owner
	}
	log.Printf("[service] owner=%s %s", owner, fmt.Sprintf(format, args...))
}

func toReconcileResponse(in domain.ParsedIntent, result reconcile.Result) domain.ReconcileResponse {
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return domain.ReconcileResponse{
		Intent:      in,
		Transaction: result.Transaction,
		Stocks:      result.Stocks,
		Debt:        result.Debt,
		Warnings:    warnings,
	}
}
