package store

import (
	"fmt"
	"sort"
	"strings"

	"dataplane-backend/internal/metadata"
)

type queryResult struct {
	SQL    string
	Params []any
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

// buildSelect builds a parameterized SELECT for the query.
func buildSelect(e *metadata.Entity, q Query) queryResult {
	pb := &paramBuilder{}
	columns := strings.Join(e.FieldNames(), ", ")

	sqlStr := fmt.Sprintf("SELECT %s FROM %s", columns, e.TableName())
	if clause := buildWhere(q.Where, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}

	if len(q.Sort) > 0 {
		var orderParts []string
		for _, s := range q.Sort {
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			orderParts = append(orderParts, fmt.Sprintf("%s %s", s.Field, dir))
		}
		sqlStr += " ORDER BY " + strings.Join(orderParts, ", ")
	}

	if q.Limit > 0 {
		sqlStr += fmt.Sprintf(" LIMIT %s", pb.Add(q.Limit))
	}
	if q.Offset > 0 {
		sqlStr += fmt.Sprintf(" OFFSET %s", pb.Add(q.Offset))
	}

	return queryResult{SQL: sqlStr, Params: pb.params}
}

func buildCount(e *metadata.Entity, where map[string]any) queryResult {
	pb := &paramBuilder{}
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", e.TableName())
	if clause := buildWhere(where, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}
	return queryResult{SQL: sqlStr, Params: pb.params}
}

func buildInsert(e *metadata.Entity, rec map[string]any) queryResult {
	pb := &paramBuilder{}
	var cols, placeholders []string
	for _, name := range sortedKeys(rec) {
		cols = append(cols, name)
		placeholders = append(placeholders, pb.Add(rec[name]))
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		e.TableName(), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(e.FieldNames(), ", "))
	return queryResult{SQL: sqlStr, Params: pb.params}
}

// buildUpdate returns the updated row via RETURNING so the caller never has
// to re-match the where clause, which may reference a field the update just
// rewrote.
func buildUpdate(e *metadata.Entity, where, rec map[string]any) queryResult {
	pb := &paramBuilder{}
	var sets []string
	for _, name := range sortedKeys(rec) {
		if name == e.PrimaryKey.Field {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", name, pb.Add(rec[name])))
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s", e.TableName(), strings.Join(sets, ", "))
	if clause := buildWhere(where, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}
	sqlStr += " RETURNING " + strings.Join(e.FieldNames(), ", ")
	return queryResult{SQL: sqlStr, Params: pb.params}
}

func buildDelete(e *metadata.Entity, where map[string]any) queryResult {
	pb := &paramBuilder{}
	sqlStr := fmt.Sprintf("DELETE FROM %s", e.TableName())
	if clause := buildWhere(where, pb); clause != "" {
		sqlStr += " WHERE " + clause
	}
	return queryResult{SQL: sqlStr, Params: pb.params}
}

// buildWhere renders a where map deterministically (sorted keys, so tests
// and query plans are stable).
func buildWhere(where map[string]any, pb *paramBuilder) string {
	if len(where) == 0 {
		return ""
	}
	var clauses []string
	for _, key := range sortedKeys(where) {
		field, op := ParseFilterKey(key)
		clauses = append(clauses, buildWhereClause(field, op, where[key], pb))
	}
	return strings.Join(clauses, " AND ")
}

func buildWhereClause(field, op string, value any, pb *paramBuilder) string {
	switch op {
	case "eq", "":
		return fmt.Sprintf("%s = %s", field, pb.Add(value))
	case "neq":
		return fmt.Sprintf("%s != %s", field, pb.Add(value))
	case "gt":
		return fmt.Sprintf("%s > %s", field, pb.Add(value))
	case "gte":
		return fmt.Sprintf("%s >= %s", field, pb.Add(value))
	case "lt":
		return fmt.Sprintf("%s < %s", field, pb.Add(value))
	case "lte":
		return fmt.Sprintf("%s <= %s", field, pb.Add(value))
	case "in":
		return inClause(field, value, pb, false)
	case "not_in":
		return inClause(field, value, pb, true)
	case "like":
		return fmt.Sprintf("%s LIKE %s", field, pb.Add(value))
	default:
		return fmt.Sprintf("%s = %s", field, pb.Add(value))
	}
}

// inClause expands a list into IN (...) placeholders rather than relying on
// = ANY, which sqlite lacks.
func inClause(field string, value any, pb *paramBuilder, negate bool) string {
	items := toList(value)
	if len(items) == 0 {
		if negate {
			return "1 = 1"
		}
		return "1 = 0"
	}
	placeholders := make([]string, len(items))
	for i, v := range items {
		placeholders[i] = pb.Add(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(placeholders, ", "))
}

func toList(value any) []any {
	switch l := value.(type) {
	case []any:
		return l
	case []string:
		items := make([]any, len(l))
		for i, s := range l {
			items[i] = s
		}
		return items
	default:
		return []any{value}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
