package pipeline

import "time"

// Response is the envelope produced by the terminal operation and threaded
// back through after-hooks. Stages that change it must return a new envelope
// (Clone then modify) rather than mutating their input, so earlier stages
// never observe later rewrites.
type Response struct {
	// Data is a single record (map[string]any), a list
	// ([]map[string]any), a scalar (count), or nil.
	Data any
	// Err is a soft error carried as data, e.g. an upstream status the
	// auth middleware inspects. Hard failures travel as Go errors through
	// the error-hook phase instead.
	Err  error
	Meta ResponseMeta
}

type ResponseMeta struct {
	Total       int
	HasMore     bool
	Duration    time.Duration
	CacheHit    bool
	Retries     int
	ShouldRetry bool
}

// Clone returns a shallow copy of the envelope. Record maps are shared;
// stages replace fields, they do not edit records in place.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	dup := *r
	return &dup
}

// Records returns the list payload, wrapping a single record as a
// one-element list. Returns nil for empty or scalar payloads.
func (r *Response) Records() []map[string]any {
	switch v := r.Data.(type) {
	case []map[string]any:
		return v
	case map[string]any:
		return []map[string]any{v}
	default:
		return nil
	}
}

// Single returns the single-record payload, or nil.
func (r *Response) Single() map[string]any {
	rec, _ := r.Data.(map[string]any)
	return rec
}
