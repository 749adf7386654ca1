// Package antispam rate-limits relayed and anonymous messages per sender.
package antispam

import (
	"context"
	"time"

	"nashenas/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a minimum delay between messages from the same user. The
// guard key lives in Redis so a restart does not reset in-flight cooldowns.
type Limiter struct {
	rdb   *redis.Client
	ctx   context.Context
	delay time.Duration
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:   rdb,
		ctx:   context.Background(),
		delay: config.SpamDelay,
	}
}

// Allow reports whether the user may send now. The first call inside a
// cooldown window wins; subsequent calls are rejected until it lapses.
// Redis trouble fails open so messaging keeps working.
func (l *Limiter) Allow(userID string) bool {
	ok, err := l.rdb.SetNX(l.ctx, "antispam:"+userID, "1", l.delay).Result()
	if err != nil {
		return true
	}
	return ok
}
