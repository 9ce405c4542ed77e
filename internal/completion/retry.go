package completion

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
)

// DefaultMaxRetries bounds retries after rate limiting.
const DefaultMaxRetries = 5

// RetryOptions configures Retrying.
type RetryOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         logrus.FieldLogger
}

type retrying struct {
	next concrete.CompletionService
	opts RetryOptions
}

// Retrying retries rate-limited requests with exponential backoff. Every
// other error, including a refusal, is returned at once.
func Retrying(next concrete.CompletionService, opts RetryOptions) concrete.CompletionService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &retrying{next: next, opts: opts}
}

func (r *retrying) Complete(ctx context.Context, req concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.InitialBackoff
	eb.MaxInterval = r.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.MaxRetries)), ctx)

	attempt := 0
	var resp *concrete.CompletionResponse
	op := func() error {
		attempt++
		var err error
		resp, err = r.next.Complete(ctx, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, concrete.ErrRateLimited) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		r.opts.Logger.WithFields(logrus.Fields{
			"schema":  req.SchemaName,
			"attempt": attempt,
			"wait":    wait,
		}).WithError(err).Warn("completion rate limited, backing off")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}
