package memvector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

// Store is an in-process cosine index for local runs and tests.
type Store struct {
	dim int
	mu  sync.RWMutex
	ns  map[string]map[string]vectorstore.Vector
}

func New(dim int) *Store {
	return &Store{dim: dim, ns: map[string]map[string]vectorstore.Vector{}}
}

func (s *Store) Provider() string { return "memory" }

func (s *Store) EnsureIndex(ctx context.Context) error { return nil }

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := vectorstore.Namespace(namespace)
	bucket, ok := s.ns[ns]
	if !ok {
		bucket = map[string]vectorstore.Vector{}
		s.ns[ns] = bucket
	}
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("vector id is required")
		}
		if s.dim > 0 && len(v.Values) != s.dim {
			return fmt.Errorf("vector %q dimension mismatch: expected=%d got=%d", id, s.dim, len(v.Values))
		}
		vals := make([]float32, len(v.Values))
		copy(vals, v.Values)
		bucket[id] = vectorstore.Vector{ID: id, Values: vals, Metadata: vectorstore.ClonePayload(v.Metadata)}
	}
	return nil
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if topK <= 0 {
		topK = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vectorstore.Match
	for _, v := range s.ns[vectorstore.Namespace(namespace)] {
		if len(filter) > 0 {
			ok, err := vectorstore.MatchesFilter(v.Metadata, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, vectorstore.Match{
			ID:       v.ID,
			Score:    vectorstore.ClampScore(vectorstore.Cosine(q, v.Values)),
			Metadata: vectorstore.ClonePayload(v.Metadata),
		})
	}
	vectorstore.SortMatches(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.ns[vectorstore.Namespace(namespace)]
	for _, id := range ids {
		delete(bucket, strings.TrimSpace(id))
	}
	return nil
}

func (s *Store) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("delete by filter requires a filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.ns[vectorstore.Namespace(namespace)]
	for id, v := range bucket {
		ok, err := vectorstore.MatchesFilter(v.Metadata, filter)
		if err != nil {
			return err
		}
		if ok {
			delete(bucket, id)
		}
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, bucket := range s.ns {
		total += int64(len(bucket))
	}
	return vectorstore.Stats{
		Provider:         s.Provider(),
		Dimension:        s.dim,
		TotalVectors:     total,
		NamespaceVectors: int64(len(s.ns[vectorstore.Namespace(namespace)])),
	}, nil
}
