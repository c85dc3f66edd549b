package cache

import (
	"context"
	"time"

	"catatwarung/backend/internal/domain"
)

// IntentCache remembers interpreter output for a normalized utterance.
type IntentCache interface {
	Get(ctx context.Context, key string) (*domain.ParsedIntent, bool, error)
	Set(ctx context.Context, key string, value *domain.ParsedIntent, ttl time.Duration) error
}

// NoopIntentCache never remembers anything, so every utterance goes to the
// interpreter. Used when redis is not configured.
type NoopIntentCache struct{}

func (NoopIntentCache) Get(_ context.Context, _ string) (*domain.ParsedIntent, bool, error) {
	return nil, false, nil
}

func (NoopIntentCache) Set(_ context.Context, _ string, _ *domain.ParsedIntent, _ time.Duration) error {
	return nil
}
