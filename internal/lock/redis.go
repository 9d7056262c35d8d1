package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/apperr"
)

// CodeLockNotObtained is reported when another instance keeps a stay busy past
// the retry window.
const CodeLockNotObtained = "LockNotObtained"

// Redis is a Locker shared by every instance pointing at the same Redis.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *logrus.Logger
}

// NewRedis wraps rdb. ttl bounds how long a crashed holder can keep a stay locked.
func NewRedis(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: redislock.New(rdb),
		prefix: "frontdesk:stay:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(r.retry)}
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.Wrap(apperr.KindConflict, CodeLockNotObtained, err, "stay %s is busy", key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock for %s: %w", key, err)
	}

	return func() {
		// The caller's ctx may already be cancelled; release must still happen.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.WithFields(logrus.Fields{"module": "lock", "key": key}).Warn("failed to release redis lock: " + err.Error())
		}
	}, nil
}
