package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

const DefaultUpsertBatch = 100

type (
	Record = vectorstore.Vector
	Match  = vectorstore.Match
	Stats  = vectorstore.Stats
)

type Config struct {
	Namespace   string
	UpsertBatch int
}

func ConfigFromEnv() Config {
	return Config{
		Namespace:   envutil.String("VECTOR_NAMESPACE", vectorstore.DefaultNamespace),
		UpsertBatch: envutil.Int("VECTOR_UPSERT_BATCH", DefaultUpsertBatch),
	}
}

// Service is the namespaced similarity index used by ingestion and retrieval.
type Service struct {
	store vectorstore.Store
	log   *logger.Logger
	cfg   Config

	initMu sync.Mutex
	ready  bool
}

func New(store vectorstore.Store, log *logger.Logger, cfg Config) (*Service, error) {
	if store == nil {
		return nil, legal.Errorf(legal.KindConfiguration, "vectorindex.New", "vector store required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.UpsertBatch <= 0 {
		cfg.UpsertBatch = DefaultUpsertBatch
	}
	cfg.Namespace = vectorstore.Namespace(cfg.Namespace)
	return &Service{store: store, log: log.With("service", "VectorIndexService", "provider", store.Provider()), cfg: cfg}, nil
}

func (s *Service) Provider() string { return s.store.Provider() }

// Initialize creates the backing index on first use. A failed attempt is
// retried on the next call.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.store.EnsureIndex(ctx); err != nil {
		return legal.NewError(legal.KindVectorIndex, "vectorindex.initialize", err)
	}
	s.ready = true
	s.log.Info("Vector index ready", "namespace", s.cfg.Namespace)
	return nil
}

func (s *Service) ns(namespace string) string {
	if namespace == "" {
		return s.cfg.Namespace
	}
	return vectorstore.Namespace(namespace)
}

func (s *Service) UpsertVectors(ctx context.Context, records []Record, namespace string) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	ns := s.ns(namespace)
	for start := 0; start < len(records); start += s.cfg.UpsertBatch {
		end := start + s.cfg.UpsertBatch
		if end > len(records) {
			end = len(records)
		}
		if err := s.store.Upsert(ctx, ns, records[start:end]); err != nil {
			return legal.NewError(legal.KindVectorIndex, "vectorindex.upsert",
				fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
	}
	s.log.Debug("Upserted vectors", "count", len(records), "namespace", ns)
	return nil
}

// SearchSimilar returns up to topK matches by descending score in [0,1].
func (s *Service) SearchSimilar(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]any) ([]Match, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	matches, err := s.store.QueryMatches(ctx, s.ns(namespace), vector, topK, filter)
	if err != nil {
		return nil, legal.NewError(legal.KindVectorIndex, "vectorindex.search", err)
	}
	for i := range matches {
		matches[i].Score = vectorstore.ClampScore(matches[i].Score)
	}
	vectorstore.SortMatches(matches)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Service) DeleteByDocumentID(ctx context.Context, documentID string, namespace string) error {
	if documentID == "" {
		return legal.Errorf(legal.KindVectorIndex, "vectorindex.delete_document", "document id required")
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteByFilter(ctx, s.ns(namespace), map[string]any{"documentId": documentID}); err != nil {
		return legal.NewError(legal.KindVectorIndex, "vectorindex.delete_document", err)
	}
	return nil
}

func (s *Service) DeleteVector(ctx context.Context, id string, namespace string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteIDs(ctx, s.ns(namespace), []string{id}); err != nil {
		return legal.NewError(legal.KindVectorIndex, "vectorindex.delete_vector", err)
	}
	return nil
}

func (s *Service) GetStats(ctx context.Context, namespace string) (Stats, error) {
	if err := s.Initialize(ctx); err != nil {
		return Stats{}, err
	}
	st, err := s.store.Stats(ctx, s.ns(namespace))
	if err != nil {
		return Stats{}, legal.NewError(legal.KindVectorIndex, "vectorindex.stats", err)
	}
	return st, nil
}
