package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type throttledClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewThrottled wraps a client with a request rate cap. The plan, assess, and
// re-synthesis calls of a single turn can otherwise burst into provider
// limits. A non-positive rate disables throttling.
func NewThrottled(inner Client, perSecond float64) Client {
	if perSecond <= 0 {
		return inner
	}
	return &throttledClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (t *throttledClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for llm rate limit: %w", err)
	}
	return t.inner.Generate(ctx, messages)
}

var _ Client = (*throttledClient)(nil)
