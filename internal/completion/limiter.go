package completion

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/concrete-go"
)

// AdaptiveLimiter bounds the request rate. A rate-limited response halves the
// allowed rate; each success recovers a step toward the configured maximum.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	current  float64
	min      float64
	max      float64
	recovery float64
}

// NewAdaptiveLimiter allows rpm requests per minute at most.
func NewAdaptiveLimiter(rpm float64) *AdaptiveLimiter {
	if rpm <= 0 {
		rpm = 60
	}
	floor := rpm * 0.1
	if floor < 1 {
		floor = 1
	}
	recovery := rpm * 0.05
	if recovery < 1 {
		recovery = 1
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rpm/60.0), burst(rpm)),
		current:  rpm,
		min:      floor,
		max:      rpm,
		recovery: recovery,
	}
}

// Current returns the allowed requests per minute.
func (l *AdaptiveLimiter) Current() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Wait blocks until a request may be sent or ctx is done.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return concrete.NewCancelledError("rate limiter", err)
	}
	return nil
}

// Observe adjusts the rate from the outcome of a request.
func (l *AdaptiveLimiter) Observe(err error) {
	switch {
	case err == nil:
		l.set(l.current + l.recovery)
	case errors.Is(err, concrete.ErrRateLimited):
		l.set(l.current * 0.5)
	}
}

func (l *AdaptiveLimiter) set(rpm float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rpm < l.min {
		rpm = l.min
	}
	if rpm > l.max {
		rpm = l.max
	}
	if rpm == l.current {
		return
	}
	l.current = rpm
	l.limiter.SetLimit(rate.Limit(rpm / 60.0))
	l.limiter.SetBurst(burst(rpm))
}

func burst(rpm float64) int {
	b := int(rpm / 6)
	if b < 1 {
		return 1
	}
	return b
}

type limited struct {
	next    concrete.CompletionService
	limiter *AdaptiveLimiter
}

// Limited puts an adaptive limiter allowing rpm requests per minute in front of next.
func Limited(next concrete.CompletionService, rpm float64) concrete.CompletionService {
	return LimitedBy(next, NewAdaptiveLimiter(rpm))
}

// LimitedBy shares one limiter between several services.
func LimitedBy(next concrete.CompletionService, l *AdaptiveLimiter) concrete.CompletionService {
	return &limited{next: next, limiter: l}
}

func (c *limited) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.Observe(err)
	return resp, err
}
