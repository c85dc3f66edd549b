package intent

import (
	"context"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"catatwarung/backend/internal/cache"
	"catatwarung/backend/internal/domain"
)

// Cached answers repeated utterances from the cache. Cache failures are
// logged and fall through to the wrapped interpreter.
type Cached struct {
	next  Interpreter
	cache cache.IntentCache
	ttl   time.Duration
}

func NewCached(next Interpreter, c cache.IntentCache, ttl time.Duration) *Cached {
	if c == nil {
		c = cache.NoopIntentCache{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) Interpret(ctx context.Context, text string) (domain.ParsedIntent, error) {
	key := CacheKey(text)
	if key == "" {
		return domain.ParsedIntent{}, ErrEmptyText
	}

	if hit, ok, err := c.cache.Get(ctx, key); err != nil {
		log.Printf("[intent] WARN: cache get failed: %v", err)
	} else if ok {
		intent := *hit
		intent.RawText = strings.TrimSpace(text)
		return intent, nil
	}

	intent, err := c.next.Interpret(ctx, text)
	if err != nil {
		return domain.ParsedIntent{}, err
	}
	if err := c.cache.Set(ctx, key, &intent, c.ttl); err != nil {
		log.Printf("[intent] WARN: cache set failed: %v", err)
	}
	return intent, nil
}

// CacheKey hashes the utterance after folding case and whitespace.
func CacheKey(text string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if folded == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(folded))
	return hex.EncodeToString(sum[:16])
}
