package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/cardscope/internal/resilience"
)

// Limited throttles calls to an inner Client and retries transient failures.
type Limited struct {
	inner   Client
	limiter *rate.Limiter
	policy  resilience.Policy
}

// NewLimited wraps inner. requestsPerMinute <= 0 disables throttling.
func NewLimited(inner Client, requestsPerMinute int, policy resilience.Policy) *Limited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
		policy:  policy,
	}
}

// Chat waits for a rate slot before each attempt.
func (l *Limited) Chat(ctx context.Context, prompt string) (*Reply, error) {
	return resilience.DoVal(ctx, l.policy, func(ctx context.Context) (*Reply, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limit wait")
		}
		return l.inner.Chat(ctx, prompt)
	})
}
