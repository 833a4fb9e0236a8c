package pipeline

import "context"

// Run executes the chain and re-invokes it while the envelope carries the
// should-retry flag. The retry and auth middleware only ever signal a retry,
// they never loop internally; the budget lives in the request context's
// retry counter and refresh bookkeeping, so this loop terminates once those
// are exhausted.
func Run(ctx context.Context, chain *Chain, rc *RequestContext, terminal Terminal) (*Response, error) {
	for {
		resp, err := chain.Execute(ctx, rc, terminal)
		if err != nil || resp == nil || !resp.Meta.ShouldRetry {
			return resp, err
		}
	}
}
