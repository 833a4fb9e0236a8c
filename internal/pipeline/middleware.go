package pipeline

import "context"

// Terminal is the storage operation the chain wraps.
type Terminal func(ctx context.Context, rc *RequestContext) (*Response, error)

// Next resumes the downstream chain from a continuation-style middleware.
// Calling it more than once per invocation is a ChainMisuse error.
type Next func(ctx context.Context) (*Response, error)

// Middleware identifies a chain stage. Capability is declared by also
// implementing BeforeHook, AfterHook, ErrorHook, or Handler; a stage
// implementing Handler runs continuation-style and its hook methods, if any,
// are ignored for that instance.
type Middleware interface {
	Name() string
	Enabled() bool
}

// BeforeHook runs before the terminal operation, in declared chain order.
// Returning a non-nil Response short-circuits: remaining before-hooks and
// the terminal never run and the response is returned as-is.
type BeforeHook interface {
	Before(ctx context.Context, rc *RequestContext) (*Response, error)
}

// AfterHook runs after a successful terminal operation, in reverse chain
// order. Returning a non-nil Response replaces the envelope for the next
// (outer) stage; returning nil keeps the current one.
type AfterHook interface {
	After(ctx context.Context, rc *RequestContext, resp *Response) (*Response, error)
}

// ErrorHook runs when the terminal or an inner hook fails, in declared chain
// order. Returning a non-nil Response converts the failure into a normal
// envelope; returning a non-nil error replaces the failure. Returning
// (nil, nil) lets the original error keep propagating.
type ErrorHook interface {
	OnError(ctx context.Context, rc *RequestContext, err error) (*Response, error)
}

// Handler is the continuation-style contract: the middleware decides
// whether and when the downstream chain runs.
type Handler interface {
	Handle(ctx context.Context, rc *RequestContext, next Next) (*Response, error)
}
