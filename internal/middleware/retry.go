package middleware

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"dataplane-backend/internal/pipeline"
)

var defaultRetryMarkers = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily unavailable",
	"429",
	"502",
	"503",
	"504",
}

// Retry converts retryable failures into a should-retry envelope after
// sleeping out the backoff. It never re-invokes the chain itself; the
// caller (pipeline.Run) is responsible for that, so a single pass through
// the chain stays a single pass.
type Retry struct {
	// Max is the retry budget per request context.
	Max int
	// Base is the backoff base; attempt n sleeps Base * 2^n plus up to
	// 10% jitter, capped at MaxDelay. With NoBackoff the delay is
	// constant Base.
	Base      time.Duration
	MaxDelay  time.Duration
	NoBackoff bool
	// Retryable overrides marker-based classification.
	Retryable func(error) bool
	Markers   []string
	OnRetry   func(attempt int, delay time.Duration, err error)
	// Sleep is swappable for tests; defaults to time.Sleep.
	Sleep    func(time.Duration)
	Disabled bool
}

func (r *Retry) Name() string  { return "retry" }
func (r *Retry) Enabled() bool { return !r.Disabled }

func (r *Retry) OnError(ctx context.Context, rc *pipeline.RequestContext, err error) (*pipeline.Response, error) {
	if rc.Meta.RetryCount >= r.Max || !r.retryable(err) {
		return nil, nil
	}

	attempt := rc.Meta.RetryCount
	delay := r.delayFor(attempt)
	if r.OnRetry != nil {
		r.OnRetry(attempt, delay, err)
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(delay)

	rc.Meta.RetryCount++
	return &pipeline.Response{
		Meta: pipeline.ResponseMeta{
			ShouldRetry: true,
			Retries:     rc.Meta.RetryCount,
		},
	}, nil
}

func (r *Retry) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	if rc.Meta.RetryCount == 0 {
		return nil, nil
	}
	out := resp.Clone()
	out.Meta.Retries = rc.Meta.RetryCount
	return out, nil
}

func (r *Retry) retryable(err error) bool {
	// Typed pipeline errors are configuration or access failures; those
	// never heal on retry.
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return false
	}
	if r.Retryable != nil {
		return r.Retryable(err)
	}

	markers := r.Markers
	if len(markers) == 0 {
		markers = defaultRetryMarkers
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range markers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (r *Retry) delayFor(attempt int) time.Duration {
	delay := r.Base
	if !r.NoBackoff {
		delay = r.Base << uint(attempt)
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}
