package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

// Store implements vectorstore.Store on a serverless pinecone index.
type Store struct {
	log       *logger.Logger
	pc        Client
	indexName string
	nsPrefix  string
	dimension int

	// readyPoll is the wait between describe_index polls after creating an index.
	readyPoll time.Duration

	mu        sync.Mutex
	indexHost string
	ensured   bool
}

func NewStore(log *logger.Logger, pc Client, cfg Config, dimension int) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("pinecone dimension must be positive")
	}
	prefix := strings.TrimSpace(cfg.NSPrefix)
	if prefix == "" {
		prefix = "lex"
	}
	return &Store{
		log:       log.With("service", "PineconeVectorStore", "index_name", cfg.IndexName),
		pc:        pc,
		indexName: cfg.IndexName,
		indexHost: strings.TrimSpace(cfg.IndexHost),
		nsPrefix:  prefix,
		dimension: dimension,
		readyPoll: 2 * time.Second,
	}, nil
}

func (s *Store) Provider() string { return "pinecone" }

// EnsureIndex resolves the data-plane host, creating the index when missing.
func (s *Store) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	desc, err := s.pc.DescribeIndex(ctx, s.indexName)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
		s.log.Info("Pinecone index missing; creating", "dimension", s.dimension)
		desc, err = s.pc.CreateIndex(ctx, CreateIndexRequest{
			Name:      s.indexName,
			Dimension: s.dimension,
			Metric:    "cosine",
		})
		if err != nil {
			return fmt.Errorf("pinecone create_index: %w", err)
		}
		desc, err = s.waitReady(ctx, desc)
	}
	if err != nil {
		return fmt.Errorf("pinecone describe_index: %w", err)
	}
	if desc.Dimension != 0 && desc.Dimension != s.dimension {
		return fmt.Errorf("pinecone index %q dimension=%d, configured=%d", s.indexName, desc.Dimension, s.dimension)
	}
	if desc.Metric != "" && !strings.EqualFold(desc.Metric, "cosine") {
		return fmt.Errorf("pinecone index %q metric=%q, expected cosine", s.indexName, desc.Metric)
	}
	if s.indexHost == "" {
		s.indexHost = strings.TrimSpace(desc.Host)
	}
	if s.indexHost == "" {
		return fmt.Errorf("pinecone describe_index returned empty host")
	}
	s.ensured = true
	return nil
}

func (s *Store) waitReady(ctx context.Context, desc *IndexDescription) (*IndexDescription, error) {
	for desc != nil && !desc.Status.Ready {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.readyPoll):
		}
		next, err := s.pc.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return nil, err
		}
		desc = next
	}
	if desc == nil {
		return nil, fmt.Errorf("pinecone create_index returned no description")
	}
	return desc, nil
}

func (s *Store) host(ctx context.Context) (string, error) {
	if err := s.EnsureIndex(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexHost, nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	host, err := s.host(ctx)
	if err != nil {
		return err
	}
	out := make([]Vector, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Values) != s.dimension {
			return fmt.Errorf("vector %q dimension mismatch: expected=%d got=%d", v.ID, s.dimension, len(v.Values))
		}
		out = append(out, Vector{ID: v.ID, Values: v.Values, Metadata: v.Metadata})
	}
	_, err = s.pc.UpsertVectors(ctx, host, UpsertRequest{Namespace: s.qualifyNamespace(namespace), Vectors: out})
	return err
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	host, err := s.host(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.pc.Query(ctx, host, QueryRequest{
		Namespace:       s.qualifyNamespace(namespace),
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, vectorstore.Match{
			ID:       m.ID,
			Score:    vectorstore.ClampScore(m.Score),
			Metadata: m.Metadata,
		})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	host, err := s.host(ctx)
	if err != nil {
		return err
	}
	return s.pc.DeleteVectors(ctx, host, DeleteRequest{Namespace: s.qualifyNamespace(namespace), IDs: ids})
}

func (s *Store) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("refusing to delete with an empty filter")
	}
	host, err := s.host(ctx)
	if err != nil {
		return err
	}
	return s.pc.DeleteVectors(ctx, host, DeleteRequest{Namespace: s.qualifyNamespace(namespace), Filter: filter})
}

func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	host, err := s.host(ctx)
	if err != nil {
		return vectorstore.Stats{}, err
	}
	st, err := s.pc.DescribeIndexStats(ctx, host)
	if err != nil {
		return vectorstore.Stats{}, err
	}
	return vectorstore.Stats{
		Provider:         s.Provider(),
		Dimension:        st.Dimension,
		TotalVectors:     st.TotalVectorCount,
		NamespaceVectors: st.Namespaces[s.qualifyNamespace(namespace)].VectorCount,
	}, nil
}

func (s *Store) qualifyNamespace(ns string) string {
	return s.nsPrefix + ":" + vectorstore.Namespace(ns)
}

var _ vectorstore.Store = (*Store)(nil)
