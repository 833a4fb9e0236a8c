package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataplane-backend/internal/metadata"
)

// Memory is the in-memory driver: the mock half of the data layer and the
// driver the test suite runs on. Records are copied on the way in and out so
// callers never alias internal state.
type Memory struct {
	mu       sync.RWMutex
	tables   map[string][]map[string]any
	registry *metadata.Registry
	seq      map[string]int64 // per-entity integer PK sequence
}

func NewMemory(reg *metadata.Registry) *Memory {
	return &Memory{
		tables:   make(map[string][]map[string]any),
		registry: reg,
		seq:      make(map[string]int64),
	}
}

var _ Driver = (*Memory)(nil)

func (m *Memory) FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.tables[entity] {
		if Matches(rec, where) {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindMany(ctx context.Context, entity string, q Query) (*Result, error) {
	m.mu.RLock()
	var matched []map[string]any
	for _, rec := range m.tables[entity] {
		if Matches(rec, q.Where) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	m.mu.RUnlock()

	for i := len(q.Sort) - 1; i >= 0; i-- {
		s := q.Sort[i]
		sort.SliceStable(matched, func(a, b int) bool {
			cmp := CompareValues(matched[a][s.Field], matched[b][s.Field])
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= total {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return &Result{
		Records: matched,
		Total:   total,
		HasMore: q.Offset+len(matched) < total,
	}, nil
}

func (m *Memory) Create(ctx context.Context, entity string, data map[string]any) (map[string]any, error) {
	e := m.registry.Get(entity)
	if e == nil {
		return nil, fmt.Errorf("create: unknown entity %s", entity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := cloneRecord(data)
	if rec == nil {
		rec = make(map[string]any)
	}
	m.applyDefaults(e, rec)
	m.assignKey(e, rec)
	if e.Timestamps {
		now := time.Now().UTC()
		rec["created_at"] = now
		rec["updated_at"] = now
	}

	m.tables[entity] = append(m.tables[entity], rec)
	return cloneRecord(rec), nil
}

func (m *Memory) Update(ctx context.Context, entity string, where map[string]any, data map[string]any) (map[string]any, error) {
	e := m.registry.Get(entity)
	if e == nil {
		return nil, fmt.Errorf("update: unknown entity %s", entity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.tables[entity] {
		if !Matches(rec, where) {
			continue
		}
		for k, v := range data {
			if k == e.PrimaryKey.Field {
				continue
			}
			rec[k] = v
		}
		if e.Timestamps {
			rec["updated_at"] = time.Now().UTC()
		}
		return cloneRecord(rec), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) Delete(ctx context.Context, entity string, where map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[entity]
	kept := rows[:0]
	for _, rec := range rows {
		if !Matches(rec, where) {
			kept = append(kept, rec)
		}
	}
	m.tables[entity] = kept
	return nil
}

func (m *Memory) Count(ctx context.Context, entity string, where map[string]any) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.tables[entity] {
		if Matches(rec, where) {
			n++
		}
	}
	return n, nil
}

// Seed generates counts[entity] records per entity. Entities are seeded in
// belongs-to dependency order where possible so foreign keys can point at
// already-seeded targets.
func (m *Memory) Seed(ctx context.Context, counts map[string]int, reg *metadata.Registry) error {
	for _, name := range seedOrder(counts, reg) {
		e := reg.Get(name)
		if e == nil {
			return fmt.Errorf("seed: unknown entity %s", name)
		}
		for i := 0; i < counts[name]; i++ {
			rec := m.generate(e, i)
			if _, err := m.Create(ctx, name, rec); err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[string][]map[string]any)
	m.seq = make(map[string]int64)
	return nil
}

func (m *Memory) applyDefaults(e *metadata.Entity, rec map[string]any) {
	for _, f := range e.Fields {
		if _, ok := rec[f.Name]; ok {
			continue
		}
		if f.Default != nil {
			rec[f.Name] = f.Default
		}
	}
}

func (m *Memory) assignKey(e *metadata.Entity, rec map[string]any) {
	pk := e.PrimaryKey
	if !pk.Generated {
		return
	}
	if v, ok := rec[pk.Field]; ok && v != nil && v != "" {
		return
	}
	switch pk.Type {
	case "int", "bigint":
		m.seq[e.Name]++
		rec[pk.Field] = m.seq[e.Name]
	default:
		rec[pk.Field] = uuid.New().String()
	}
}

// generate produces field values for one seed record. Belongs-to keys pick a
// random already-seeded target PK when one exists.
func (m *Memory) generate(e *metadata.Entity, i int) map[string]any {
	rec := make(map[string]any)
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		if rel := relationForKey(e, f.Name); rel != nil {
			if pk := m.randomKey(rel.Target); pk != nil {
				rec[f.Name] = pk
			}
			continue
		}
		rec[f.Name] = mockValue(f, i)
	}
	return rec
}

func (m *Memory) randomKey(entity string) any {
	target := m.registry.Get(entity)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[entity]
	if target == nil || len(rows) == 0 {
		return nil
	}
	return rows[rand.Intn(len(rows))][target.PrimaryKey.Field]
}

func relationForKey(e *metadata.Entity, field string) *metadata.Relation {
	for i := range e.Relations {
		r := &e.Relations[i]
		if r.Kind == metadata.BelongsTo && r.LocalKey == field {
			return r
		}
	}
	return nil
}

func mockValue(f metadata.Field, i int) any {
	if len(f.Enum) > 0 {
		return f.Enum[i%len(f.Enum)]
	}
	switch f.Type {
	case "int", "bigint":
		return int64(i + 1)
	case "decimal":
		return float64(i+1) * 1.5
	case "boolean":
		return i%2 == 0
	case "timestamp", "date":
		return time.Now().UTC().Add(-time.Duration(i) * time.Hour)
	case "uuid":
		return uuid.New().String()
	case "json":
		return map[string]any{}
	default:
		return fmt.Sprintf("%s-%d", f.Name, i+1)
	}
}

// seedOrder sorts seeded entities so belongs-to targets come before their
// dependents. Cycles fall back to name order; seeding tolerates nil FKs.
func seedOrder(counts map[string]int, reg *metadata.Registry) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var ordered []string
	placed := make(map[string]bool)
	var place func(name string, trail map[string]bool)
	place = func(name string, trail map[string]bool) {
		if placed[name] || trail[name] {
			return
		}
		trail[name] = true
		if e := reg.Get(name); e != nil {
			for _, rel := range e.Relations {
				if rel.Kind == metadata.BelongsTo {
					if _, seeded := counts[rel.Target]; seeded {
						place(rel.Target, trail)
					}
				}
			}
		}
		placed[name] = true
		ordered = append(ordered, name)
	}
	for _, name := range names {
		place(name, make(map[string]bool))
	}
	return ordered
}

func cloneRecord(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	dup := make(map[string]any, len(rec))
	for k, v := range rec {
		dup[k] = v
	}
	return dup
}
