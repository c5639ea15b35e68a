package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"billing-lifecycle/internal/domain/currency"
)

// Rate cache key pattern:
// - rate:{base}:{target} - current effective rate, TTL bounded by the row's expiry

type RateCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRateCache(client *goredis.Client, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RateCache{client: client, ttl: ttl}
}

type cachedQuote struct {
	Base      string          `json:"base"`
	Target    string          `json:"target"`
	Rate      decimal.Decimal `json:"rate"`
	RateID    int64           `json:"rate_id"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func rateKey(base, target string) string {
	return fmt.Sprintf("rate:%s:%s", base, target)
}

// Get returns nil on a cache miss.
func (c *RateCache) Get(ctx context.Context, base, target string) (*currency.Quote, error) {
	data, err := c.client.Get(ctx, rateKey(base, target)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cq cachedQuote
	if err := json.Unmarshal(data, &cq); err != nil {
		return nil, err
	}
	return &currency.Quote{
		Base:      cq.Base,
		Target:    cq.Target,
		Rate:      cq.Rate,
		RateID:    cq.RateID,
		ExpiresAt: cq.ExpiresAt,
	}, nil
}

// Set stores q until the configured TTL or the rate's own expiry, whichever
// comes first. Quotes already past expiry are not cached.
func (c *RateCache) Set(ctx context.Context, q currency.Quote, now time.Time) error {
	ttl := c.ttl
	if q.ExpiresAt != nil {
		until := q.ExpiresAt.Sub(now)
		if until <= 0 {
			return nil
		}
		if until < ttl {
			ttl = until
		}
	}
	data, err := json.Marshal(cachedQuote{
		Base:      q.Base,
		Target:    q.Target,
		Rate:      q.Rate,
		RateID:    q.RateID,
		ExpiresAt: q.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rateKey(q.Base, q.Target), data, ttl).Err()
}

func (c *RateCache) Invalidate(ctx context.Context, pairs ...currency.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, rateKey(p.Base, p.Target))
	}
	return c.client.Del(ctx, keys...).Err()
}
