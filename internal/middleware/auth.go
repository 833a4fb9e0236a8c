// Package middleware provides the standard middleware set for the request
// pipeline: auth, claims extraction, row-level security, response caching,
// retry, logging, and metrics. Each stage implements the pipeline hook
// contracts and can be composed in any order.
package middleware

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"dataplane-backend/internal/pipeline"
)

// TokenFunc produces a bearer token. It may block (e.g. a network call to a
// token endpoint).
type TokenFunc func(ctx context.Context) (string, error)

// Auth attaches a bearer token before the operation and drives the
// refresh-on-401 path afterwards. It never validates tokens itself.
type Auth struct {
	// Token fetches the current access token. Empty string means none.
	Token TokenFunc
	// Refresh obtains a fresh token after an unauthorized response.
	// Concurrent refreshes are coalesced: the first caller triggers it,
	// the rest await the same result.
	Refresh TokenFunc
	// OnUnauthorized is invoked when a 401-shaped failure cannot be
	// recovered by a refresh.
	OnUnauthorized func(rc *pipeline.RequestContext, cause error)

	Header   string // default "Authorization"
	Prefix   string // default "Bearer "
	SkipOps  []pipeline.OpKind
	Disabled bool

	flight singleflight.Group
}

func (a *Auth) Name() string  { return "auth" }
func (a *Auth) Enabled() bool { return !a.Disabled }

func (a *Auth) header() string {
	if a.Header != "" {
		return a.Header
	}
	return "Authorization"
}

func (a *Auth) prefix() string {
	if a.Prefix != "" {
		return a.Prefix
	}
	return "Bearer "
}

func (a *Auth) skipped(op pipeline.OpKind) bool {
	for _, s := range a.SkipOps {
		if s == op {
			return true
		}
	}
	return false
}

func (a *Auth) Before(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	if a.skipped(rc.Op) || a.Token == nil {
		return nil, nil
	}
	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		rc.Headers[a.header()] = a.prefix() + token
		rc.Meta.TokenAttached = true
	}
	return nil, nil
}

func (a *Auth) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	if !isUnauthorized(resp.Err) {
		return nil, nil
	}

	if a.Refresh != nil && !rc.Meta.RefreshTried {
		// Exactly one refresh attempt per request context; process-wide,
		// simultaneous 401s share one in-flight refresh.
		rc.Meta.RefreshTried = true
		v, err, _ := a.flight.Do("refresh", func() (any, error) {
			return a.Refresh(ctx)
		})
		if err != nil {
			a.unauthorized(rc, resp.Err)
			return nil, nil
		}
		rc.Headers[a.header()] = a.prefix() + v.(string)
		out := resp.Clone()
		out.Meta.ShouldRetry = true
		return out, nil
	}

	a.unauthorized(rc, resp.Err)
	return nil, nil
}

func (a *Auth) OnError(ctx context.Context, rc *pipeline.RequestContext, err error) (*pipeline.Response, error) {
	if isUnauthorized(err) {
		a.unauthorized(rc, err)
	}
	// Always let the failure keep propagating.
	return nil, nil
}

func (a *Auth) unauthorized(rc *pipeline.RequestContext, cause error) {
	if a.OnUnauthorized != nil {
		a.OnUnauthorized(rc, cause)
	}
}

// isUnauthorized is a deliberately loose heuristic: upstream failures come
// from arbitrary drivers, so we match the message rather than a type.
func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "401") ||
		strings.Contains(strings.ToLower(msg), "unauthorized")
}
