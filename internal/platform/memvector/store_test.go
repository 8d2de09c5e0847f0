package memvector

import (
	"context"
	"math"
	"testing"

	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

func TestSelfSimilarityIsTopMatch(t *testing.T) {
	ctx := context.Background()
	s := New(3)
	vecs := []vectorstore.Vector{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: map[string]any{"documentId": "d1"}},
		{ID: "b", Values: []float32{0.6, 0.8, 0}, Metadata: map[string]any{"documentId": "d2"}},
		{ID: "c", Values: []float32{0, 0, 1}, Metadata: map[string]any{"documentId": "d2"}},
	}
	if err := s.Upsert(ctx, "", vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.QueryMatches(ctx, "default", []float32{0.6, 0.8, 0}, 2, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || math.Abs(got[0].Score-1) > 1e-6 {
		t.Fatalf("top match: %+v", got)
	}
	if got[0].Metadata["documentId"] != "d2" {
		t.Fatalf("metadata not returned: %+v", got[0])
	}
}

func TestDeleteByFilterAndStats(t *testing.T) {
	ctx := context.Background()
	s := New(2)
	_ = s.Upsert(ctx, "ns", []vectorstore.Vector{
		{ID: "x-chunk-0", Values: []float32{1, 0}, Metadata: map[string]any{"documentId": "x"}},
		{ID: "x-chunk-1", Values: []float32{0, 1}, Metadata: map[string]any{"documentId": "x"}},
		{ID: "y-chunk-0", Values: []float32{1, 1}, Metadata: map[string]any{"documentId": "y"}},
	})
	if err := s.DeleteByFilter(ctx, "ns", map[string]any{"documentId": "x"}); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	st, _ := s.Stats(ctx, "ns")
	if st.NamespaceVectors != 1 || st.TotalVectors != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if err := s.Upsert(ctx, "ns", []vectorstore.Vector{{ID: "z", Values: []float32{1}}}); err == nil {
		t.Fatalf("dimension mismatch: want error")
	}
}
