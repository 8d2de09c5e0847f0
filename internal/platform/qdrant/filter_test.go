package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterSubset(t *testing.T) {
	got, err := translateFilter(map[string]any{
		"documentType": "ACT",
		"documentId":   map[string]any{"$in": []any{"doc-1", "doc-2"}},
		"category":     map[string]any{"$ne": "Bills"},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(got.Must) != 2 || len(got.MustNot) != 1 {
		t.Fatalf("shape: got must=%d must_not=%d", len(got.Must), len(got.MustNot))
	}
	in := findCondition(got.Must, "documentId")
	if in == nil {
		t.Fatalf("missing documentId condition")
	}
	values := in["match"].(map[string]any)["any"].([]any)
	if len(values) != 2 || values[0] != "doc-1" {
		t.Fatalf("in values: got=%v", values)
	}
}

func TestTranslateFilterNested(t *testing.T) {
	got, err := translateFilter(map[string]any{
		"$or": []any{
			map[string]any{"documentType": "ACT"},
			map[string]any{"documentType": "CONSTITUTION"},
		},
		"$not": map[string]any{"category": "Repealed"},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(got.Should) != 2 || len(got.MustNot) != 1 {
		t.Fatalf("shape: got=%+v", got)
	}
}

func TestTranslateFilterUnsupportedOperator(t *testing.T) {
	_, err := translateFilter(map[string]any{"chunkIndex": map[string]any{"$gt": 2}})
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("err: want unsupported filter got=%v", err)
	}
}

func findCondition(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if ok && cond["key"] == key {
			return cond
		}
	}
	return nil
}
