package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CaptureThrottle is the coarse per-signal-identity guard in front of the
// persisted capture path. It is shared across capture workers through
// Redis, with the cooldown enforced by key TTL.
type CaptureThrottle struct {
	rdb      *redis.Client
	cooldown time.Duration
	prefix   string
}

func NewCaptureThrottle(rdb *redis.Client, cooldown time.Duration) *CaptureThrottle {
	return &CaptureThrottle{rdb: rdb, cooldown: cooldown, prefix: "capture-throttle:"}
}

// Allow claims identity for one cooldown window. The first claim within a
// window wins; later claims are rejected until the key expires.
func (t *CaptureThrottle) Allow(ctx context.Context, identity string) (bool, error) {
	ok, err := t.rdb.SetNX(ctx, t.prefix+identity, 1, t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("claim throttle key: %w", err)
	}
	return ok, nil
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}
