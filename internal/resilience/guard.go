package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardConfig configures a Guard for one provider.
type GuardConfig struct {
	Name              string
	RequestsPerSecond float64 // 0 disables rate limiting
	Burst             int
	Retry             RetryConfig
	Breaker           CircuitBreakerConfig
}

// Guard wraps provider calls: each attempt waits for the rate limiter and
// passes through the circuit breaker, and transient failures are retried
// with backoff.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewGuard creates a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	g := &Guard{name: cfg.Name, retry: cfg.Retry}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakerCfg := cfg.Breaker
	onChange := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("provider", cfg.Name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if onChange != nil {
			onChange(from, to)
		}
	}
	g.breaker = NewCircuitBreaker(breakerCfg)

	if g.retry.OnRetry == nil {
		g.retry.OnRetry = RetryLogger(cfg.Name, "complete")
	}
	return g
}

// Breaker exposes the guard's circuit breaker for health reporting.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Call runs fn under g.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "%s: rate limit wait", g.name)
			}
		}
		return ExecuteVal(ctx, g.breaker, fn)
	})
}
