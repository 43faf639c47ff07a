package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/service-workflow/internal/workflow"
)

// redisTicketLocker serializes applies across processes using SET NX with a
// TTL. The lock is advisory; the version column in the ticket store remains
// the authoritative conflict check, so a Redis outage degrades to
// optimistic concurrency instead of blocking writes.
type redisTicketLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisTicketLocker builds a distributed ticket locker.
func NewRedisTicketLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) workflow.TicketLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisTicketLocker{client: client, ttl: ttl, logger: logger}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`

func (l *redisTicketLocker) Acquire(ctx context.Context, ticketID string) (func(), error) {
	key := "ticket_lock:" + ticketID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("ticket lock unavailable, relying on version check",
			zap.String("ticket_id", ticketID),
			zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, workflow.ErrLockHeld
	}

	release := func() {
		// Compare-and-delete so an expired lock taken over by another
		// process is never released by the original holder.
		if err := l.client.Eval(context.Background(), releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("ticket lock release failed",
				zap.String("ticket_id", ticketID),
				zap.Error(err))
		}
	}
	return release, nil
}
