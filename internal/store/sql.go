package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	_ "modernc.org/sqlite"             // register sqlite as database/sql driver

	"dataplane-backend/internal/metadata"
)

// SQL is the production driver: the same Driver contract as Memory, backed
// by database/sql over pgx or sqlite. Tables are expected to exist; this
// layer does no migration.
type SQL struct {
	db       *sql.DB
	registry *metadata.Registry
}

// Open connects using the named driver ("postgres" or "sqlite") and DSN.
func Open(ctx context.Context, driver, dsn string, reg *metadata.Registry) (*SQL, error) {
	name := driver
	if name == "postgres" || name == "" {
		name = "pgx"
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQL{db: db, registry: reg}, nil
}

// NewSQL wraps an existing connection.
func NewSQL(db *sql.DB, reg *metadata.Registry) *SQL {
	return &SQL{db: db, registry: reg}
}

func (s *SQL) Close() error { return s.db.Close() }

var _ Driver = (*SQL)(nil)

func (s *SQL) entity(name string) (*metadata.Entity, error) {
	e := s.registry.Get(name)
	if e == nil {
		return nil, fmt.Errorf("unknown entity %s", name)
	}
	return e, nil
}

func (s *SQL) FindOne(ctx context.Context, entity string, where map[string]any) (map[string]any, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	qr := buildSelect(e, Query{Where: where, Limit: 1})
	rows, err := queryRows(ctx, s.db, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("findOne %s: %w", entity, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *SQL) FindMany(ctx context.Context, entity string, q Query) (*Result, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}

	qr := buildSelect(e, q)
	records, err := queryRows(ctx, s.db, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("findMany %s: %w", entity, err)
	}

	total, err := s.Count(ctx, entity, q.Where)
	if err != nil {
		return nil, err
	}

	if records == nil {
		records = []map[string]any{}
	}
	return &Result{
		Records: records,
		Total:   int(total),
		HasMore: q.Offset+len(records) < int(total),
	}, nil
}

func (s *SQL) Create(ctx context.Context, entity string, data map[string]any) (map[string]any, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}

	rec := cloneRecord(data)
	if rec == nil {
		rec = make(map[string]any)
	}
	if e.PrimaryKey.Generated {
		if _, ok := rec[e.PrimaryKey.Field]; !ok && e.PrimaryKey.Type == "uuid" {
			rec[e.PrimaryKey.Field] = uuid.New().String()
		}
	}
	if e.Timestamps {
		now := time.Now().UTC()
		rec["created_at"] = now
		rec["updated_at"] = now
	}

	qr := buildInsert(e, rec)
	rows, err := queryRows(ctx, s.db, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

func (s *SQL) Update(ctx context.Context, entity string, where map[string]any, data map[string]any) (map[string]any, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}

	rec := cloneRecord(data)
	if rec == nil {
		rec = make(map[string]any)
	}
	if e.Timestamps {
		rec["updated_at"] = time.Now().UTC()
	}

	qr := buildUpdate(e, where, rec)
	rows, err := queryRows(ctx, s.db, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", entity, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *SQL) Delete(ctx context.Context, entity string, where map[string]any) error {
	e, err := s.entity(entity)
	if err != nil {
		return err
	}
	qr := buildDelete(e, where)
	if _, err := execStmt(ctx, s.db, qr.SQL, qr.Params...); err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	return nil
}

func (s *SQL) Count(ctx context.Context, entity string, where map[string]any) (int64, error) {
	e, err := s.entity(entity)
	if err != nil {
		return 0, err
	}
	qr := buildCount(e, where)
	row, err := queryRows(ctx, s.db, qr.SQL, qr.Params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	if len(row) == 0 {
		return 0, nil
	}
	for _, v := range row[0] {
		if n, ok := v.(int64); ok {
			return n, nil
		}
	}
	return 0, nil
}

// Seed inserts generated records, reusing the memory driver's value
// generation so mock and production data look alike.
func (s *SQL) Seed(ctx context.Context, counts map[string]int, reg *metadata.Registry) error {
	mem := NewMemory(reg)
	for _, name := range seedOrder(counts, reg) {
		e := reg.Get(name)
		if e == nil {
			return fmt.Errorf("seed: unknown entity %s", name)
		}
		for i := 0; i < counts[name]; i++ {
			if _, err := s.Create(ctx, name, mem.generate(e, i)); err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return nil
}

// Reset deletes every row of every registered entity, children first so
// foreign keys don't block.
func (s *SQL) Reset(ctx context.Context) error {
	entities := s.registry.All()
	for i := len(entities) - 1; i >= 0; i-- {
		sqlStr := fmt.Sprintf("DELETE FROM %s", entities[i].TableName())
		if _, err := execStmt(ctx, s.db, sqlStr); err != nil {
			return fmt.Errorf("reset %s: %w", entities[i].Name, err)
		}
	}
	return nil
}

// queryRows executes a query and returns results as []map[string]any.
func queryRows(ctx context.Context, db *sql.DB, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

func execStmt(ctx context.Context, db *sql.DB, sqlStr string, args ...any) (int64, error) {
	result, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// normalizeValue converts database-specific types to JSON-serializable Go
// types. database/sql often returns []byte for TEXT columns; sqlite stores
// timestamps as text.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return s
	default:
		return v
	}
}
