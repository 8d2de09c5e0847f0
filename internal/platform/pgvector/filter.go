package pgvector

import (
	"fmt"
	"sort"
	"strings"
)

// buildWhere renders a metadata filter as a parameterized SQL predicate over
// the jsonb metadata column. Values compare as text.
func buildWhere(namespace string, filter map[string]any) (string, []any, error) {
	pred, args, err := predicate(filter)
	if err != nil {
		return "", nil, err
	}
	where := "namespace = ?"
	args = append([]any{namespace}, args...)
	if pred != "" {
		where += " AND " + pred
	}
	return where, args, nil
}

func predicate(filter map[string]any) (string, []any, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, key := range keys {
		value := filter[key]
		switch key {
		case "$and", "$or":
			items, ok := value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("%s expects a list", key)
			}
			var sub []string
			for _, it := range items {
				m, ok := it.(map[string]any)
				if !ok {
					return "", nil, fmt.Errorf("%s item must be an object", key)
				}
				p, a, err := predicate(m)
				if err != nil {
					return "", nil, err
				}
				if p == "" {
					continue
				}
				sub = append(sub, "("+p+")")
				args = append(args, a...)
			}
			if len(sub) == 0 {
				continue
			}
			sep := " AND "
			if key == "$or" {
				sep = " OR "
			}
			parts = append(parts, "("+strings.Join(sub, sep)+")")
		case "$not":
			m, ok := value.(map[string]any)
			if !ok {
				return "", nil, fmt.Errorf("$not expects an object")
			}
			p, a, err := predicate(m)
			if err != nil {
				return "", nil, err
			}
			if p != "" {
				parts = append(parts, "NOT ("+p+")")
				args = append(args, a...)
			}
		default:
			if strings.HasPrefix(key, "$") {
				return "", nil, fmt.Errorf("unsupported filter operator %q", key)
			}
			p, a, err := fieldPredicate(key, value)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, p)
			args = append(args, a...)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func fieldPredicate(field string, value any) (string, []any, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return "metadata->>(?::text) = ?", []any{field, textValue(value)}, nil
	}
	var parts []string
	var args []any
	names := make([]string, 0, len(ops))
	for n := range ops {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, op := range names {
		raw := ops[op]
		switch op {
		case "$eq":
			parts = append(parts, "metadata->>(?::text) = ?")
			args = append(args, field, textValue(raw))
		case "$ne":
			parts = append(parts, "metadata->>(?::text) IS DISTINCT FROM ?")
			args = append(args, field, textValue(raw))
		case "$in":
			items, ok := raw.([]any)
			if !ok {
				if strs, ok2 := raw.([]string); ok2 {
					for _, s := range strs {
						items = append(items, s)
					}
				} else {
					return "", nil, fmt.Errorf("$in for %q expects a list", field)
				}
			}
			if len(items) == 0 {
				return "", nil, fmt.Errorf("$in for %q cannot be empty", field)
			}
			vals := make([]string, 0, len(items))
			for _, it := range items {
				vals = append(vals, textValue(it))
			}
			parts = append(parts, "metadata->>(?::text) IN ?")
			args = append(args, field, vals)
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q for field %q", op, field)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func textValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
