package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

const DefaultNamespace = "default"

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

type Stats struct {
	Provider         string
	Dimension        int
	TotalVectors     int64
	NamespaceVectors int64
}

// Store is a namespaced similarity index. Filters are flat field/value maps
// with optional $and/$or/$not/$in/$eq/$ne operators.
type Store interface {
	Provider() string
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error
	Stats(ctx context.Context, namespace string) (Stats, error)
}

func Namespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// SortMatches orders by descending score, then id for stable output.
func SortMatches(out []Match) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
}

// ClampScore folds a cosine similarity into [0,1].
func ClampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func ClonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MatchesFilter evaluates a filter against stored metadata in process.
func MatchesFilter(meta map[string]any, filter map[string]any) (bool, error) {
	for key, raw := range filter {
		switch key {
		case "$and", "$or":
			items, ok := raw.([]any)
			if !ok {
				if typed, ok2 := raw.([]map[string]any); ok2 {
					for _, m := range typed {
						items = append(items, m)
					}
				} else {
					return false, fmt.Errorf("%s expects a list", key)
				}
			}
			matched := false
			for _, it := range items {
				sub, ok := it.(map[string]any)
				if !ok {
					return false, fmt.Errorf("%s item must be an object", key)
				}
				hit, err := MatchesFilter(meta, sub)
				if err != nil {
					return false, err
				}
				if key == "$and" && !hit {
					return false, nil
				}
				matched = matched || hit
			}
			if key == "$or" && !matched {
				return false, nil
			}
		case "$not":
			sub, ok := raw.(map[string]any)
			if !ok {
				return false, fmt.Errorf("$not expects an object")
			}
			hit, err := MatchesFilter(meta, sub)
			if err != nil {
				return false, err
			}
			if hit {
				return false, nil
			}
		default:
			hit, err := matchField(meta[key], raw)
			if err != nil {
				return false, fmt.Errorf("field %q: %w", key, err)
			}
			if !hit {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchField(have any, cond any) (bool, error) {
	ops, ok := cond.(map[string]any)
	if !ok {
		return scalarEqual(have, cond), nil
	}
	for op, v := range ops {
		switch op {
		case "$eq":
			if !scalarEqual(have, v) {
				return false, nil
			}
		case "$ne":
			if scalarEqual(have, v) {
				return false, nil
			}
		case "$in":
			list, ok := v.([]any)
			if !ok {
				if ss, ok2 := v.([]string); ok2 {
					for _, s := range ss {
						list = append(list, s)
					}
				} else {
					return false, fmt.Errorf("$in expects a list")
				}
			}
			found := false
			for _, item := range list {
				if scalarEqual(have, item) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
	}
	return true, nil
}

func scalarEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
