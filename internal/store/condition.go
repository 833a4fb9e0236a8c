package store

import (
	"fmt"
	"strings"
	"time"
)

// ParseFilterKey splits "total.gte" into ("total", "gte") or "status" into
// ("status", "eq").
func ParseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// Matches evaluates a where map against a record. Every clause must hold.
func Matches(record map[string]any, where map[string]any) bool {
	for key, condVal := range where {
		field, op := ParseFilterKey(key)
		if !evaluateCondition(op, record[field], condVal) {
			return false
		}
	}
	return true
}

func evaluateCondition(operator string, recordVal, condVal any) bool {
	switch operator {
	case "eq", "":
		return equalValues(recordVal, condVal)
	case "neq":
		return !equalValues(recordVal, condVal)
	case "in":
		return valueInList(recordVal, condVal)
	case "not_in":
		return !valueInList(recordVal, condVal)
	case "gt":
		return CompareValues(recordVal, condVal) > 0
	case "gte":
		return CompareValues(recordVal, condVal) >= 0
	case "lt":
		return CompareValues(recordVal, condVal) < 0
	case "lte":
		return CompareValues(recordVal, condVal) <= 0
	case "like":
		s, ok := recordVal.(string)
		if !ok {
			return false
		}
		pattern, ok := condVal.(string)
		if !ok {
			return false
		}
		return likeMatch(s, pattern)
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func valueInList(val, list any) bool {
	valStr := fmt.Sprintf("%v", val)
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if fmt.Sprintf("%v", item) == valStr {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if item == valStr {
				return true
			}
		}
	}
	return false
}

// CompareValues orders two values: numerics numerically, times
// chronologically, everything else lexically by string form.
func CompareValues(a, b any) int {
	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	if aIsTime && bIsTime {
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}

	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// likeMatch supports the SQL LIKE subset with % wildcards at either end.
func likeMatch(s, pattern string) bool {
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	core := strings.Trim(pattern, "%")
	switch {
	case leading && trailing:
		return strings.Contains(s, core)
	case leading:
		return strings.HasSuffix(s, core)
	case trailing:
		return strings.HasPrefix(s, core)
	default:
		return s == pattern
	}
}
