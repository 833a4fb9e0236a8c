package middleware

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dataplane-backend/internal/cache"
	"dataplane-backend/internal/pipeline"
)

// Cache short-circuits cacheable reads with a previously stored envelope
// and stores fresh ones on the way out.
type Cache struct {
	Store *cache.Store
	TTL   time.Duration
	// Ops is the cacheable set; default find-one and find-many.
	Ops []pipeline.OpKind
	// Key overrides the deterministic default key derivation.
	Key func(rc *pipeline.RequestContext) string
	// CacheErrors stores envelopes that carry a soft error; off by default.
	CacheErrors bool
	Disabled    bool
}

func (c *Cache) Name() string  { return "cache" }
func (c *Cache) Enabled() bool { return !c.Disabled }

func (c *Cache) cacheable(op pipeline.OpKind) bool {
	ops := c.Ops
	if len(ops) == 0 {
		ops = []pipeline.OpKind{pipeline.OpFindOne, pipeline.OpFindMany}
	}
	for _, cand := range ops {
		if cand == op {
			return true
		}
	}
	return false
}

func (c *Cache) Before(ctx context.Context, rc *pipeline.RequestContext) (*pipeline.Response, error) {
	if c.Store == nil || rc.SkipCache || !c.cacheable(rc.Op) {
		return nil, nil
	}

	key := c.keyFor(rc)
	rc.Meta.CacheChecked = true

	if v, ok := c.Store.Get(key); ok {
		hit := v.(*pipeline.Response).Clone()
		hit.Meta.CacheHit = true
		return hit, nil
	}

	// Miss: leave the key for the after-hook to store under.
	rc.Meta.CacheKey = key
	return nil, nil
}

func (c *Cache) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	if c.Store == nil || rc.Meta.CacheKey == "" || !c.cacheable(rc.Op) {
		return nil, nil
	}
	if resp.Err != nil && !c.CacheErrors {
		return nil, nil
	}
	c.Store.Set(rc.Meta.CacheKey, resp.Clone(), c.TTL)
	return nil, nil
}

// keyFor derives a deterministic key from everything that shapes a read:
// operation, entity, params, filter, ordering, and pagination.
func (c *Cache) keyFor(rc *pipeline.RequestContext) string {
	if c.Key != nil {
		return c.Key(rc)
	}

	var b strings.Builder
	b.WriteString(string(rc.Op))
	b.WriteByte('|')
	b.WriteString(rc.Entity)

	b.WriteByte('|')
	for _, k := range sortedStringKeys(rc.Params) {
		fmt.Fprintf(&b, "%s=%s;", k, rc.Params[k])
	}

	b.WriteByte('|')
	for _, k := range sortedAnyKeys(rc.Filter) {
		fmt.Fprintf(&b, "%s=%v;", k, rc.Filter[k])
	}

	b.WriteByte('|')
	for _, s := range rc.Sorts {
		dir := "asc"
		if s.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, "%s.%s;", s.Field, dir)
	}

	fmt.Fprintf(&b, "|%d|%d", rc.Page.Limit, rc.Page.Offset)
	return b.String()
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
