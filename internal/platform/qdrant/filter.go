package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// clause is a qdrant boolean filter under construction.
type clause struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (c clause) asMap() map[string]any {
	out := map[string]any{}
	if len(c.Must) > 0 {
		out["must"] = c.Must
	}
	if len(c.Should) > 0 {
		out["should"] = c.Should
	}
	if len(c.MustNot) > 0 {
		out["must_not"] = c.MustNot
	}
	return out
}

func (c *clause) merge(other clause) {
	c.Must = append(c.Must, other.Must...)
	c.Should = append(c.Should, other.Should...)
	c.MustNot = append(c.MustNot, other.MustNot...)
}

func filterErr(code OperationErrorCode, format string, args ...any) error {
	return opErr("filter_translate", code, fmt.Sprintf(format, args...), nil)
}

// translateFilter converts a metadata filter into qdrant's must/should/must_not
// form. Keys are visited in sorted order so the request body is stable.
func translateFilter(filter map[string]any) (clause, error) {
	var out clause
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		value := filter[key]
		if !strings.HasPrefix(k, "$") {
			part, err := translateField(k, value)
			if err != nil {
				return clause{}, err
			}
			out.merge(part)
			continue
		}

		op := strings.ToLower(k)
		switch op {
		case "$and", "$or":
			items, err := objectList(value)
			if err != nil {
				return clause{}, filterErr(OperationErrorValidation, "operator %s expects array of objects", op)
			}
			for _, item := range items {
				sub, err := translateFilter(item)
				if err != nil {
					return clause{}, err
				}
				if op == "$and" {
					out.Must = append(out.Must, sub.asMap())
				} else {
					out.Should = append(out.Should, sub.asMap())
				}
			}
		case "$not":
			item, ok := value.(map[string]any)
			if !ok {
				return clause{}, filterErr(OperationErrorValidation, "operator $not expects an object")
			}
			sub, err := translateFilter(item)
			if err != nil {
				return clause{}, err
			}
			out.MustNot = append(out.MustNot, sub.asMap())
		default:
			return clause{}, filterErr(OperationErrorUnsupportedFilter, "unsupported top-level filter operator %q", k)
		}
	}
	return out, nil
}

func translateField(field string, value any) (clause, error) {
	var out clause
	ops, isOps := value.(map[string]any)
	if !isOps {
		scalar, ok := scalarValue(value)
		if !ok {
			return clause{}, filterErr(OperationErrorValidation, "field %q expects scalar value or operator object", field)
		}
		out.Must = append(out.Must, matchValue(field, scalar))
		return out, nil
	}
	if len(ops) == 0 {
		return clause{}, filterErr(OperationErrorValidation, "field %q has empty operator map", field)
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw := ops[name]
		switch op := strings.ToLower(strings.TrimSpace(name)); op {
		case "$eq", "$ne":
			scalar, ok := scalarValue(raw)
			if !ok {
				return clause{}, filterErr(OperationErrorValidation, "operator %s for field %q expects scalar value", op, field)
			}
			if op == "$eq" {
				out.Must = append(out.Must, matchValue(field, scalar))
			} else {
				out.MustNot = append(out.MustNot, matchValue(field, scalar))
			}
		case "$in":
			values, err := scalarList(raw)
			if err != nil || len(values) == 0 {
				return clause{}, filterErr(OperationErrorValidation, "operator $in for field %q expects a non-empty scalar array", field)
			}
			out.Must = append(out.Must, map[string]any{
				"key":   field,
				"match": map[string]any{"any": values},
			})
		default:
			return clause{}, filterErr(OperationErrorUnsupportedFilter, "unsupported filter operator %q for field %q", name, field)
		}
	}
	return out, nil
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func objectList(value any) ([]map[string]any, error) {
	switch typed := value.(type) {
	case []map[string]any:
		return typed, nil
	case []any:
		out := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object in array, got %T", item)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", value)
	}
}

func scalarList(value any) ([]any, error) {
	var raw []any
	switch typed := value.(type) {
	case []any:
		raw = typed
	case []string:
		for _, v := range typed {
			raw = append(raw, v)
		}
	case []int:
		for _, v := range typed {
			raw = append(raw, v)
		}
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
	out := make([]any, 0, len(raw))
	for _, v := range raw {
		scalar, ok := scalarValue(v)
		if !ok {
			return nil, fmt.Errorf("expected scalar, got %T", v)
		}
		out = append(out, scalar)
	}
	return out, nil
}

func scalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int, int64, uint, uint64, float64:
		return typed, true
	case int32:
		return int(typed), true
	case float32:
		return float64(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}
