package access

import (
	"context"
	"fmt"
	"time"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles repeated PIN guesses. A hardening layer on
// top of the core contracts: when the backing store is unreachable the
// limiter fails open so an infrastructure outage cannot lock providers
// out of emergency access.
type AttemptLimiter interface {
	Blocked(ctx context.Context, subjectID, redeemerID string) bool
	RecordFailure(ctx context.Context, subjectID, redeemerID string)
	Reset(ctx context.Context, subjectID, redeemerID string)
}

// RedisLimiter counts failed attempts per subject/redeemer pair in a
// rolling window.
type RedisLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(subjectID, redeemerID string) string {
	return fmt.Sprintf("pin_attempts:%s:%s", subjectID, redeemerID)
}

func (l *RedisLimiter) Blocked(ctx context.Context, subjectID, redeemerID string) bool {
	count, err := l.client.Get(ctx, l.key(subjectID, redeemerID)).Int()
	if err != nil && err != redis.Nil {
		logger.Log.WithError(err).Warn("attempt limiter unavailable, failing open")
		return false
	}
	return count >= l.maxAttempts
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, subjectID, redeemerID string) {
	key := l.key(subjectID, redeemerID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		logger.Log.WithError(err).Warn("failed to record pin attempt")
		return
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			logger.Log.WithError(err).Warn("failed to set pin attempt window")
		}
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, subjectID, redeemerID string) {
	if err := l.client.Del(ctx, l.key(subjectID, redeemerID)).Err(); err != nil {
		logger.Log.WithError(err).Warn("failed to reset pin attempts")
	}
}

// NoopLimiter disables guess throttling. Used when no redis is
// configured and in tests that exercise the unthrottled contracts.
type NoopLimiter struct{}

func (NoopLimiter) Blocked(ctx context.Context, subjectID, redeemerID string) bool { return false }

func (NoopLimiter) RecordFailure(ctx context.Context, subjectID, redeemerID string) {}

func (NoopLimiter) Reset(ctx context.Context, subjectID, redeemerID string) {}
