package pgvector

import (
	"reflect"
	"testing"
)

func TestBuildWhereFlatFilter(t *testing.T) {
	where, args, err := buildWhere("default", map[string]any{"documentId": "doc-1"})
	if err != nil {
		t.Fatalf("buildWhere: %v", err)
	}
	if where != "namespace = ? AND metadata->>(?::text) = ?" {
		t.Fatalf("where: got=%q", where)
	}
	want := []any{"default", "documentId", "doc-1"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args: want=%v got=%v", want, args)
	}
}

func TestBuildWhereOperators(t *testing.T) {
	where, args, err := buildWhere("default", map[string]any{
		"$or": []any{
			map[string]any{"documentType": "ACT"},
			map[string]any{"category": map[string]any{"$in": []any{"Acts", "Constitution"}}},
		},
		"chunkIndex": map[string]any{"$ne": 0},
	})
	if err != nil {
		t.Fatalf("buildWhere: %v", err)
	}
	wantWhere := "namespace = ? AND ((metadata->>(?::text) = ?) OR (metadata->>(?::text) IN ?)) AND metadata->>(?::text) IS DISTINCT FROM ?"
	if where != wantWhere {
		t.Fatalf("where: want=%q got=%q", wantWhere, where)
	}
	if len(args) != 7 || args[6] != "0" {
		t.Fatalf("args: got=%v", args)
	}
}

func TestBuildWhereRejectsUnknownOperator(t *testing.T) {
	if _, _, err := buildWhere("default", map[string]any{"x": map[string]any{"$gt": 1}}); err == nil {
		t.Fatalf("expected error")
	}
}
