package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/iliyamo/ticket-booking/internal/config"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests per key (see config.RateLimitConfig
// KeyStrategy).  Buckets are shared through Redis when rdb is non-nil and
// kept in process otherwise.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if rdb == nil {
        return newLocalBucket(cfg).middleware
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            args := []interface{}{
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL / time.Second),
            }

            vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
            if err != nil {
                c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
                return next(c)
            }
            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 3 {
                c.Logger().Warnf("[ratelimit] unexpected script result for key=%s: %#v", key, vals)
                return next(c)
            }
            allowed := fmt.Sprint(arr[0]) == "1"
            remaining := asInt64(arr[1])
            retry := time.Duration(asInt64(arr[2])) * time.Millisecond

            return respond(c, cfg, key, allowed, remaining, retry, next)
        }
    }
}

func respond(c echo.Context, cfg config.RateLimitConfig, key string, allowed bool, remaining int64, retry time.Duration, next echo.HandlerFunc) error {
    h := c.Response().Header()
    h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
    h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
    if cfg.Debug {
        h.Set("X-RateLimit-Key", key)
    }
    if allowed {
        return next(c)
    }

    secs := int(math.Ceil(retry.Seconds()))
    if secs < 1 {
        secs = 1
    }
    h.Set("Retry-After", strconv.Itoa(secs))
    if cfg.Debug {
        c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, retry)
    }
    return c.JSON(http.StatusTooManyRequests, map[string]any{
        "error":       "too_many_requests",
        "message":     "rate limit exceeded",
        "retry_after": secs,
    })
}

// localBucket keeps one rate.Limiter per key.  Keys idle for longer than
// the configured TTL are dropped.
type localBucket struct {
    cfg   config.RateLimitConfig
    limit rate.Limit

    mu        sync.Mutex
    entries   map[string]*localEntry
    lastSweep time.Time
}

type localEntry struct {
    lim  *rate.Limiter
    seen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
    return &localBucket{
        cfg:       cfg,
        limit:     rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
        entries:   map[string]*localEntry{},
        lastSweep: time.Now(),
    }
}

func (b *localBucket) limiter(key string, now time.Time) *rate.Limiter {
    b.mu.Lock()
    defer b.mu.Unlock()
    if now.Sub(b.lastSweep) > b.cfg.TTL {
        for k, e := range b.entries {
            if now.Sub(e.seen) > b.cfg.TTL {
                delete(b.entries, k)
            }
        }
        b.lastSweep = now
    }
    e, ok := b.entries[key]
    if !ok {
        e = &localEntry{lim: rate.NewLimiter(b.limit, b.cfg.Capacity)}
        b.entries[key] = e
    }
    e.seen = now
    return e.lim
}

func (b *localBucket) middleware(next echo.HandlerFunc) echo.HandlerFunc {
    return func(c echo.Context) error {
        key := buildRateKey(b.cfg, c)
        now := time.Now()
        lim := b.limiter(key, now)
        r := lim.ReserveN(now, 1)
        delay := r.DelayFrom(now)
        if delay > 0 {
            r.CancelAt(now)
        }
        remaining := int64(lim.TokensAt(now))
        if remaining < 0 {
            remaining = 0
        }
        return respond(c, b.cfg, key, delay == 0, remaining, delay, next)
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := identity(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
