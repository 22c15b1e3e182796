package fourmizzz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// KeyPrefix is the prefix for the rate limit keys in Redis.
	KeyPrefix = "ratelimit:fourmizzz"

	// WaitTime is the fixed wait between attempts when the limit is reached.
	WaitTime = 100 * time.Millisecond

	// DefaultRequestsPerSecond applies when no positive rate is configured.
	DefaultRequestsPerSecond = 1.0
)

// slidingWindowScript increments the current one-second window when the
// weighted count of the current and previous windows is below the limit.
const slidingWindowScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or 0)
local last = tonumber(redis.call('GET', KEYS[2]) or 0)
local weight = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

if (last * weight) + current >= limit then
	return 0
end

redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], 2)

return 1
`

// Limiter throttles requests sent to one game server.
type Limiter interface {
	Wait(ctx context.Context, server string) error
}

// LocalLimiter keeps one token bucket per server in process memory.
type LocalLimiter struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

// NewLocalLimiter creates a limiter allowing requestsPerSecond per server.
func NewLocalLimiter(requestsPerSecond float64) *LocalLimiter {
	requestsPerSecond = positiveRate(requestsPerSecond)

	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Wait blocks until a request to the server is allowed.
func (l *LocalLimiter) Wait(ctx context.Context, server string) error {
	l.mu.Lock()

	limiter, ok := l.limiters[server]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[server] = limiter
	}

	l.mu.Unlock()

	return limiter.Wait(ctx)
}

// RedisLimiter shares a sliding window limit across every worker process.
type RedisLimiter struct {
	client            rueidis.Client
	requestsPerSecond float64
	logger            *zap.Logger
	now               func() time.Time
}

// NewRedisLimiter creates a distributed limiter.
func NewRedisLimiter(client rueidis.Client, requestsPerSecond float64, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:            client,
		requestsPerSecond: positiveRate(requestsPerSecond),
		logger:            logger.Named("ratelimit"),
		now:               time.Now,
	}
}

// Wait keeps trying until capacity is acquired or the context is cancelled.
func (l *RedisLimiter) Wait(ctx context.Context, server string) error {
	for {
		allowed, err := l.TryAcquire(ctx, server)
		if err != nil {
			return err
		}

		if allowed {
			return nil
		}

		l.logger.Debug("Rate limit reached, waiting", zap.String("server", server))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(WaitTime):
		}
	}
}

// TryAcquire attempts to take one slot in the current window.
func (l *RedisLimiter) TryAcquire(ctx context.Context, server string) (bool, error) {
	now := l.now().UTC()
	currentKey := fmt.Sprintf("%s:%s:%d", KeyPrefix, server, now.Unix())
	lastKey := fmt.Sprintf("%s:%s:%d", KeyPrefix, server, now.Unix()-1)

	weight := 1.0 - float64(now.Nanosecond())/float64(time.Second)

	allowed, err := l.client.Do(ctx, l.client.B().Eval().
		Script(slidingWindowScript).
		Numkeys(2).
		Key(currentKey).
		Key(lastKey).
		Arg(fmt.Sprintf("%.6f", weight)).
		Arg(fmt.Sprintf("%.6f", l.requestsPerSecond)).
		Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rate limit: %w (server=%s)", err, server)
	}

	return allowed == 1, nil
}

func positiveRate(requestsPerSecond float64) float64 {
	if requestsPerSecond <= 0 {
		return DefaultRequestsPerSecond
	}

	return requestsPerSecond
}
