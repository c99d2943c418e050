package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/types"
)

// CachingFetcher memoises successful lookups per ticker and target date.
// A settled close-to-close move never changes, so only failures are refetched.
type CachingFetcher struct {
	next    interfaces.MovementFetcher
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	mv      types.Movement
	expires time.Time
}

var _ interfaces.MovementFetcher = (*CachingFetcher)(nil)

// NewCachingFetcher wraps next; a non-positive ttl defaults to six hours.
func NewCachingFetcher(next interfaces.MovementFetcher, ttl time.Duration) *CachingFetcher {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachingFetcher{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachingFetcher) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	key := cacheKey(ticker, target)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return e.mv, nil
	}

	mv, err := c.next.FetchMovement(ctx, ticker, target)
	if err != nil {
		return mv, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{mv: mv, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return mv, nil
}

// Len reports the number of live entries.
func (c *CachingFetcher) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			continue
		}
		n++
	}
	return n
}

func cacheKey(ticker string, target time.Time) string {
	return strings.ToUpper(strings.TrimSpace(ticker)) + "|" + target.Format(types.DateLayout)
}
