// Package completion adapts LLM providers to a single text-in, text-out
// call and guards every call with rate limiting, retries and a circuit
// breaker.
package completion

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/config"
	"github.com/sells-group/annual-report-eval/internal/resilience"
	"github.com/sells-group/annual-report-eval/pkg/anthropic"
)

// Provider completes a prompt with the named model.
type Provider interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Settings are the generation parameters shared by every provider.
type Settings struct {
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// Guarded runs a Provider under a resilience.Guard.
type Guarded struct {
	name  string
	inner Provider
	guard *resilience.Guard
}

// NewGuarded wraps p with g.
func NewGuarded(name string, p Provider, g *resilience.Guard) *Guarded {
	return &Guarded{name: name, inner: p, guard: g}
}

// Complete implements Provider.
func (g *Guarded) Complete(ctx context.Context, model, prompt string) (string, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) (string, error) {
		return g.inner.Complete(ctx, model, prompt)
	})
}

// Name returns the provider name.
func (g *Guarded) Name() string { return g.name }

// Guard exposes the guard for health reporting.
func (g *Guarded) Guard() *resilience.Guard { return g.guard }

// GuardConfig builds the resilience settings for provider from cfg.
func GuardConfig(provider string, cfg config.CompletionConfig) resilience.GuardConfig {
	return resilience.GuardConfig{
		Name:              provider,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0.25,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.BreakerResetSecs) * time.Second,
		},
	}
}

// New builds the configured provider wrapped in its guard.
func New(ctx context.Context, cfg *config.Config) (*Guarded, error) {
	settings := Settings{
		MaxTokens:    cfg.Completion.MaxTokens,
		Temperature:  cfg.Completion.Temperature,
		SystemPrompt: cfg.Completion.SystemPrompt,
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Completion.Provider {
	case "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key,
			anthropic.WithBaseURL(cfg.Anthropic.BaseURL),
			anthropic.WithMaxRetries(0),
		)
		p = NewAnthropic(client, settings, cfg.Anthropic.CacheTTL)
	case "openai":
		p = NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, settings)
	case "gemini":
		p, err = NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL, settings)
	default:
		return nil, eris.Errorf("completion: unknown provider %q", cfg.Completion.Provider)
	}
	if err != nil {
		return nil, err
	}

	guard := resilience.NewGuard(GuardConfig(cfg.Completion.Provider, cfg.Completion))
	return NewGuarded(cfg.Completion.Provider, p, guard), nil
}
