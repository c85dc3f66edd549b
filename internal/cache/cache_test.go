package cache

import (
	"context"
	"testing"
	"time"

	"catatwarung/backend/internal/domain"
)

func TestNoopIntentCacheAlwaysMisses(t *testing.T) {
	var c IntentCache = NoopIntentCache{}
	ctx := context.Background()

	if err := c.Set(ctx, "jual beras", &domain.ParsedIntent{Type: domain.IntentSale}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "jual beras")
	if err != nil || ok || got != nil {
		t.Fatalf("expected a miss, got %+v %v %v", got, ok, err)
	}
}
