package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Model with a token-bucket limiter, so a single
// noisy diagram cannot exceed a provider's requests-per-second quota.
// Each person_job node execution calls Chat once, so the limiter is keyed
// per process rather than per node.
type RateLimited struct {
	Model   Model
	Limiter *rate.Limiter
}

// NewRateLimited wraps model with a limiter allowing ratePerSecond
// requests/sec and a burst of burst.
func NewRateLimited(model Model, ratePerSecond float64, burst int) *RateLimited {
	return &RateLimited{Model: model, Limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (r *RateLimited) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return Output{}, err
	}
	return r.Model.Chat(ctx, messages, tools)
}
