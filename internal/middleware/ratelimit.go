package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts a hit and starts the window on the first one.
// INCR and PEXPIRE run atomically, so a crash between them cannot leave a
// counter without a TTL. Returns {count, remaining window in ms}.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// redisEvaler is the part of *redis.Client the limiter uses.
type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisLimiter is a fixed-window counter kept in Redis, shared by every
// server instance pointing at the same Redis.
type RedisLimiter struct {
	client  redisEvaler
	max     int
	window  time.Duration
	prefix  string
	timeout time.Duration
}

// NewRedisLimiter allows max requests per key per window.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("middleware: redis client is required")
	}
	return newRedisLimiter(client, max, window)
}

func newRedisLimiter(client redisEvaler, max int, window time.Duration) (*RedisLimiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("middleware: rate limit max must be positive, got %d", max)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("middleware: rate limit window too small: %s", window)
	}
	return &RedisLimiter{
		client:  client,
		max:     max,
		window:  window,
		prefix:  "rl:",
		timeout: 500 * time.Millisecond,
	}, nil
}

// Allow counts one hit for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	vals, err := l.client.Eval(ctx, fixedWindowScript, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("middleware: evaluating rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("middleware: rate limit script returned %d values", len(vals))
	}

	count, ttlMS := int(vals[0]), vals[1]
	reset := l.window
	if ttlMS > 0 {
		reset = time.Duration(ttlMS) * time.Millisecond
	}

	return Decision{
		Allowed:   count <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-count, 0),
		Reset:     reset,
	}, nil
}

// KeyFunc derives the rate-limit bucket for a request.
type KeyFunc func(r *http.Request) string

// KeyByIPAndPath buckets by client IP and path, so sign-in and sign-up
// attempts are counted separately. Run it after chi's RealIP.
func KeyByIPAndPath(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "unknown"
	}
	return "path:" + r.URL.Path + ":ip:" + ip
}

// RateLimit rejects requests over the limiter's budget with 429.
//
// A nil limiter disables the middleware. When the limiter errors (Redis is
// down) the request is let through and a warning logged: losing the limiter
// must not take sign-in down with it.
func RateLimit(limiter Limiter, keyFn KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || keyFn == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			resetSec := int((d.Reset + time.Second - 1) / time.Second)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))

			if !d.Allowed {
				logger.Info("rate limit exceeded", slog.String("key", key))
				w.Header().Set("Retry-After", strconv.Itoa(resetSec))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"rate limit exceeded, try again later"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
