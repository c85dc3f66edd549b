package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"catatwarung/backend/internal/domain"
)

type countingInterpreter struct {
	calls int
}

func (c *countingInterpreter) Interpret(_ context.Context, text string) (domain.ParsedIntent, error) {
	c.calls++
	return domain.ParsedIntent{Type: domain.IntentSale, RawText: text}, nil
}

type mapCache struct {
	items  map[string]domain.ParsedIntent
	failOn error
}

func (m *mapCache) Get(_ context.Context, key string) (*domain.ParsedIntent, bool, error) {
	if m.failOn != nil {
		return nil, false, m.failOn
	}
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mapCache) Set(_ context.Context, key string, value *domain.ParsedIntent, _ time.Duration) error {
	if m.failOn != nil {
		return m.failOn
	}
	m.items[key] = *value
	return nil
}

func TestCachedInterpreterReusesResult(t *testing.T) {
	next := &countingInterpreter{}
	c := NewCached(next, &mapCache{items: map[string]domain.ParsedIntent{}}, time.Minute)
	ctx := context.Background()

	if _, err := c.Interpret(ctx, "Jual teh  dua"); err != nil {
		t.Fatalf("first interpret: %v", err)
	}
	got, err := c.Interpret(ctx, "jual TEH dua")
	if err != nil {
		t.Fatalf("second interpret: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if got.RawText != "jual TEH dua" {
		t.Fatalf("cached intent must carry the current raw text, got %q", got.RawText)
	}
}

func TestCachedInterpreterSurvivesCacheFailure(t *testing.T) {
	next := &countingInterpreter{}
	c := NewCached(next, &mapCache{failOn: errors.New("redis down")}, time.Minute)

	if _, err := c.Interpret(context.Background(), "jual teh"); err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected upstream call, got %d", next.calls)
	}
	if _, err := c.Interpret(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text error, got %v", err)
	}
}

func TestCacheKeyFoldsCaseAndSpace(t *testing.T) {
	if CacheKey("Jual  Teh") != CacheKey("jual teh") {
		t.Fatalf("expected equal keys")
	}
	if CacheKey("jual teh") == CacheKey("jual kopi") {
		t.Fatalf("expected different keys")
	}
}
