package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper filters duplicate inbound webhook deliveries by provider
// message id. Telephony providers retry on slow responses, so delivery is
// at-least-once; processing the same message twice would double-book and
// double-escalate.
type Deduper struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewDeduper creates a dedupe filter. ttl bounds how long a message id is
// remembered; provider retries land well inside it.
func NewDeduper(redisClient *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{redis: redisClient, ttl: ttl}
}

// FirstDelivery atomically claims the provider message id. It returns
// true exactly once per id within the TTL window; later deliveries get
// false and should be acknowledged without processing.
func (d *Deduper) FirstDelivery(ctx context.Context, providerMessageID string) (bool, error) {
	if d == nil || d.redis == nil || providerMessageID == "" {
		return true, nil
	}
	key := "inbound_msg:" + providerMessageID
	claimed, err := d.redis.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: dedupe claim: %w", err)
	}
	return claimed, nil
}
