package vectorstore

import (
	"context"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/observability"
)

type instrumentedStore struct {
	inner   Store
	metrics *observability.Metrics
}

// Instrument records per-operation latency and status for inner.
func Instrument(inner Store, metrics *observability.Metrics) Store {
	if inner == nil || metrics == nil {
		return inner
	}
	return &instrumentedStore{inner: inner, metrics: metrics}
}

func (s *instrumentedStore) Provider() string { return s.inner.Provider() }

func (s *instrumentedStore) EnsureIndex(ctx context.Context) error {
	start := time.Now()
	err := s.inner.EnsureIndex(ctx)
	s.observe("ensure_index", err, start)
	return err
}

func (s *instrumentedStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, namespace, vectors)
	s.observe("upsert", err, start)
	return err
}

func (s *instrumentedStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error) {
	start := time.Now()
	out, err := s.inner.QueryMatches(ctx, namespace, q, topK, filter)
	s.observe("query_matches", err, start)
	return out, err
}

func (s *instrumentedStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	s.observe("delete_ids", err, start)
	return err
}

func (s *instrumentedStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	start := time.Now()
	err := s.inner.DeleteByFilter(ctx, namespace, filter)
	s.observe("delete_by_filter", err, start)
	return err
}

func (s *instrumentedStore) Stats(ctx context.Context, namespace string) (Stats, error) {
	start := time.Now()
	out, err := s.inner.Stats(ctx, namespace)
	s.observe("stats", err, start)
	return out, err
}

func (s *instrumentedStore) observe(op string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorStoreOperation(s.inner.Provider(), op, status, time.Since(start))
}
