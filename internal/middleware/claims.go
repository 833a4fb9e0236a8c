package middleware

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"dataplane-backend/internal/pipeline"
)

// Claims copies identity claims and conventional headers into the request's
// execution context for RLS and business logic. It decodes the bearer
// token's payload segment without verifying any signature: this middleware
// never authenticates, it only extracts.
type Claims struct {
	// Decode overrides the default unverified JWT payload decode.
	Decode func(token string) (map[string]any, error)

	Header        string // default "Authorization"
	Prefix        string // default "Bearer "
	ContextPrefix string // headers with this prefix map to camelCase keys; default "X-Ctx-"
	Disabled      bool
}

func (c *Claims) Name() string  { return "claims" }
func (c *Claims) Enabled() bool { return !c.Disabled }

func (c *Claims) header() string {
	if c.Header != "" {
		return c.Header
	}
	return "Authorization"
}

func (c *Claims) prefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return "Bearer "
}

func (c *Claims) contextPrefix() string {
	if c.ContextPrefix != "" {
		return c.ContextPrefix
	}
	return "X-Ctx-"
}

func (c *Claims) Before(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	if header := rc.Headers[c.header()]; strings.HasPrefix(header, c.prefix()) {
		token := strings.TrimPrefix(header, c.prefix())
		claims, err := c.decode(token)
		if err == nil {
			// Keys set by an earlier middleware win.
			for k, v := range claims {
				if _, exists := rc.Exec[k]; !exists {
					rc.Exec[k] = v
				}
			}
		}
	}

	for name, value := range rc.Headers {
		if !strings.HasPrefix(name, c.contextPrefix()) {
			continue
		}
		key := camelKey(strings.TrimPrefix(name, c.contextPrefix()))
		if _, exists := rc.Exec[key]; !exists {
			rc.Exec[key] = value
		}
	}
	return nil, nil
}

func (c *Claims) decode(token string) (map[string]any, error) {
	if c.Decode != nil {
		return c.Decode(token)
	}
	// ParseUnverified base64url-decodes the middle segment as JSON and
	// skips signature checks, which is exactly the contract here.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// camelKey maps a hyphenated header suffix to a camelCase context key:
// "User-Id" becomes "userId".
func camelKey(s string) string {
	parts := strings.Split(s, "-")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		if i == 0 {
			b.WriteString(lower)
			continue
		}
		b.WriteString(strings.ToUpper(lower[:1]))
		b.WriteString(lower[1:])
	}
	return b.String()
}
