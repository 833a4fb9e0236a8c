package pipeline

import "time"

type OpKind string

const (
	OpFindOne  OpKind = "findOne"
	OpFindMany OpKind = "findMany"
	OpCreate   OpKind = "create"
	OpUpdate   OpKind = "update"
	OpDelete   OpKind = "delete"
	OpCount    OpKind = "count"
	OpView     OpKind = "view"
)

// IsWrite reports whether the operation mutates storage.
func (op OpKind) IsWrite() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// IsRead reports whether the operation only reads.
func (op OpKind) IsRead() bool {
	return op == OpFindOne || op == OpFindMany || op == OpCount || op == OpView
}

type Order struct {
	Field string
	Desc  bool
}

type Page struct {
	Limit  int
	Offset int
}

// RequestContext describes one logical operation. It is created once per
// operation and owned exclusively by the executing call; it is never shared
// across concurrent operations.
//
// Filter keys are either a field name ("status") or a field.operator pair
// ("total.gte"); supported operators are eq, neq, gt, gte, lt, lte, in,
// not_in, like.
type RequestContext struct {
	Entity   string
	Op       OpKind
	Params   map[string]string
	Filter   map[string]any
	Sorts    []Order
	Page     Page
	Fields   []string
	Includes []string
	Payload  map[string]any
	Headers  map[string]string

	// SkipCache bypasses the cache middleware for this request only.
	SkipCache bool

	// Exec holds identity claims and other attributes extracted by
	// middleware, consumed by RLS predicates and business logic.
	Exec map[string]any

	// Meta is the typed side-channel middleware use to signal each other
	// across the before/after boundary.
	Meta Meta
}

// Meta is per-request middleware bookkeeping. A small struct rather than an
// untyped bag so hooks can't disagree about key names.
type Meta struct {
	CacheKey      string
	CacheChecked  bool
	RetryCount    int
	TokenAttached bool
	RefreshTried  bool
	StartedAt     time.Time

	// PendingRLS names the write operation whose row predicate must run
	// after the storage call (update/delete target rows are unknown before).
	PendingRLS OpKind
	// DeletedRecord is the row captured by the CRUD resolver before a
	// delete, for the deferred RLS check.
	DeletedRecord map[string]any
	// FilteredOut counts list elements removed by RLS post-filtering.
	FilteredOut int
}

// NewRequestContext returns a context for one operation with all maps ready.
func NewRequestContext(entity string, op OpKind) *RequestContext {
	return &RequestContext{
		Entity:  entity,
		Op:      op,
		Params:  make(map[string]string),
		Filter:  make(map[string]any),
		Headers: make(map[string]string),
		Exec:    make(map[string]any),
	}
}
