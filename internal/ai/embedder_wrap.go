package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/retry"
)

// IsRetryable reports whether an embedding or generation error may succeed
// on another attempt.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, appErr.ErrInvalid) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// WrapRetry retries failed embed calls according to policy. A nil Retryable
// in policy is replaced by IsRetryable.
func WrapRetry(e IEmbedder, policy retry.Policy) IEmbedder {
	if e == nil {
		return nil
	}
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	return &retryEmbedder{next: e, policy: policy}
}

type retryEmbedder struct {
	next   IEmbedder
	policy retry.Policy
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var out []float32
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		res, err := r.next.Embed(ctx, text, taskType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

// WrapRateLimit throttles embed calls with a token bucket. rps <= 0 disables it.
func WrapRateLimit(e IEmbedder, rps float64, burst int) IEmbedder {
	if e == nil || rps <= 0 {
		return e
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedEmbedder{next: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type rateLimitedEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text, taskType)
}

func (r *rateLimitedEmbedder) ModelName() string {
	return r.next.ModelName()
}

// WrapChecked is the outermost embedder layer: it rejects empty input and
// malformed vectors, and tags every failure with ErrEmbeddingFailure.
// dimension <= 0 accepts any non-empty vector.
func WrapChecked(e IEmbedder, dimension int) IEmbedder {
	if e == nil {
		return nil
	}
	return &checkedEmbedder{next: e, dimension: dimension}
}

type checkedEmbedder struct {
	next      IEmbedder
	dimension int
}

func (c *checkedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w: empty text", appErr.ErrEmbeddingFailure, appErr.ErrInvalid)
	}
	vec, err := c.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrEmbeddingFailure, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", appErr.ErrEmbeddingFailure)
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: dimension %d, want %d", appErr.ErrEmbeddingFailure, len(vec), c.dimension)
	}
	return vec, nil
}

func (c *checkedEmbedder) ModelName() string {
	return c.next.ModelName()
}
