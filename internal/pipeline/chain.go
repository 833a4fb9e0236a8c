package pipeline

import "context"

// Chain runs an ordered list of middleware around a terminal operation.
//
// Two execution styles exist. When every stage uses before/after/error
// hooks, the chain runs hook-style: before-hooks in declared order,
// after-hooks in exact reverse order, error-hooks in declared order. When
// any stage supplies a continuation Handler, the whole chain runs
// continuation-style and hook stages are wrapped in place, keeping the same
// short-circuit and reverse-after semantics. The style is chosen once at
// construction, not per call.
type Chain struct {
	stages       []Middleware
	continuation bool
}

// NewChain builds a chain from the given middleware, dropping disabled
// stages. Order is significant: the first stage is outermost, so a logger
// declared first measures the latency of everything inside it.
func NewChain(stages ...Middleware) *Chain {
	c := &Chain{}
	for _, mw := range stages {
		if mw == nil || !mw.Enabled() {
			continue
		}
		c.stages = append(c.stages, mw)
		if _, ok := mw.(Handler); ok {
			c.continuation = true
		}
	}
	return c
}

// Execute runs the chain around terminal and returns the final envelope.
func (c *Chain) Execute(ctx context.Context, rc *RequestContext, terminal Terminal) (*Response, error) {
	if c.continuation {
		return c.executeContinuation(ctx, rc, terminal)
	}
	return c.executeHooks(ctx, rc, terminal)
}

func (c *Chain) executeHooks(ctx context.Context, rc *RequestContext, terminal Terminal) (*Response, error) {
	for _, mw := range c.stages {
		b, ok := mw.(BeforeHook)
		if !ok {
			continue
		}
		resp, err := b.Before(ctx, rc)
		if err != nil {
			return c.runErrorHooks(ctx, rc, err)
		}
		if resp != nil {
			// Short-circuit: remaining before-hooks and the terminal
			// never run.
			return resp, nil
		}
	}

	resp, err := terminal(ctx, rc)
	if err != nil {
		return c.runErrorHooks(ctx, rc, err)
	}

	for i := len(c.stages) - 1; i >= 0; i-- {
		a, ok := c.stages[i].(AfterHook)
		if !ok {
			continue
		}
		next, err := a.After(ctx, rc, resp)
		if err != nil {
			return nil, err
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

// runErrorHooks gives each stage, in declared order, one chance to intercept
// the failure. The first stage that returns a response or a replacement
// error wins; otherwise the original error propagates.
func (c *Chain) runErrorHooks(ctx context.Context, rc *RequestContext, cause error) (*Response, error) {
	for _, mw := range c.stages {
		h, ok := mw.(ErrorHook)
		if !ok {
			continue
		}
		resp, err := h.OnError(ctx, rc, cause)
		if resp != nil {
			return resp, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, cause
}

func (c *Chain) executeContinuation(ctx context.Context, rc *RequestContext, terminal Terminal) (*Response, error) {
	var dispatch func(ctx context.Context, i int) (*Response, error)
	dispatch = func(ctx context.Context, i int) (*Response, error) {
		if i >= len(c.stages) {
			return terminal(ctx, rc)
		}
		mw := c.stages[i]

		if h, ok := mw.(Handler); ok {
			called := false
			next := Next(func(ctx context.Context) (*Response, error) {
				if called {
					return nil, ChainMisuse(mw.Name())
				}
				called = true
				return dispatch(ctx, i+1)
			})
			return h.Handle(ctx, rc, next)
		}

		// Hook-style stage participating in a continuation chain: its
		// hooks wrap this position's dispatch call.
		if b, ok := mw.(BeforeHook); ok {
			resp, err := b.Before(ctx, rc)
			if err != nil {
				return interceptError(ctx, rc, mw, err)
			}
			if resp != nil {
				return resp, nil
			}
		}

		resp, err := dispatch(ctx, i+1)
		if err != nil {
			return interceptError(ctx, rc, mw, err)
		}

		if a, ok := mw.(AfterHook); ok {
			next, err := a.After(ctx, rc, resp)
			if err != nil {
				return nil, err
			}
			if next != nil {
				resp = next
			}
		}
		return resp, nil
	}
	return dispatch(ctx, 0)
}

// interceptError runs a single wrapped stage's error hook as the failure
// bubbles outward through the continuation chain.
func interceptError(ctx context.Context, rc *RequestContext, mw Middleware, cause error) (*Response, error) {
	h, ok := mw.(ErrorHook)
	if !ok {
		return nil, cause
	}
	resp, err := h.OnError(ctx, rc, cause)
	if resp != nil {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, cause
}
