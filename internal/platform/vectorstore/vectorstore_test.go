package vectorstore

import (
	"math"
	"testing"
)

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{"documentId": "d1", "documentType": "ACT", "chunkIndex": 2}
	cases := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{"eq scalar", map[string]any{"documentId": "d1"}, true},
		{"eq miss", map[string]any{"documentId": "d2"}, false},
		{"in", map[string]any{"documentType": map[string]any{"$in": []any{"ACT", "REGULATION"}}}, true},
		{"ne", map[string]any{"documentType": map[string]any{"$ne": "ACT"}}, false},
		{"number as string", map[string]any{"chunkIndex": 2}, true},
		{"or", map[string]any{"$or": []any{map[string]any{"documentId": "x"}, map[string]any{"documentId": "d1"}}}, true},
		{"not", map[string]any{"$not": map[string]any{"documentId": "d1"}}, false},
	}
	for _, tc := range cases {
		got, err := MatchesFilter(meta, tc.filter)
		if err != nil {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
	if _, err := MatchesFilter(meta, map[string]any{"x": map[string]any{"$gt": 1}}); err == nil {
		t.Fatalf("unsupported operator: want error")
	}
}

func TestCosineAndClamp(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("self cosine: got=%v", got)
	}
	if ClampScore(-0.2) != 0 || ClampScore(1.0000001) != 1 || ClampScore(math.NaN()) != 0 {
		t.Fatalf("ClampScore bounds")
	}
}
