package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisScanLock is a SET NX lease in Redis.  The value is a per-instance
// token so a replica never releases a lease another replica took over
// after expiry.
type RedisScanLock struct {
	rdb   redis.Cmdable
	key   string
	token string
	ttl   time.Duration
}

func NewRedisScanLock(rdb redis.Cmdable, key string, ttl time.Duration) *RedisScanLock {
	return &RedisScanLock{rdb: rdb, key: key, token: uuid.NewString(), ttl: ttl}
}

func (l *RedisScanLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes the lease when this instance still owns it.
func (l *RedisScanLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
