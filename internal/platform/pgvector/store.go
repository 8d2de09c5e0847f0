package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	Table     string
	Dimension int
}

func ConfigFromEnv(dimension int) Config {
	return Config{
		Table:     envutil.String("PGVECTOR_TABLE", "legal_vector"),
		Dimension: envutil.Int("PGVECTOR_DIM", dimension),
	}
}

type row struct {
	Namespace string         `gorm:"column:namespace;primaryKey"`
	ID        string         `gorm:"column:id;primaryKey"`
	Embedding pgv.Vector     `gorm:"column:embedding"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
}

// Store keeps vectors in a postgres table next to the relational data and
// queries them with pgvector's cosine distance operator.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
	cfg Config

	mu      sync.Mutex
	ensured bool
}

func New(db *gorm.DB, log *logger.Logger, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pgvector: db required")
	}
	if !identRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be positive")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log.With("service", "PgvectorStore", "table", cfg.Table), cfg: cfg}, nil
}

func (s *Store) Provider() string { return "pgvector" }

func (s *Store) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace text NOT NULL,
			id text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (namespace, id)
		)`, s.cfg.Table, s.cfg.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.cfg.Table, s.cfg.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s ((metadata->>'documentId'))`, s.cfg.Table, s.cfg.Table),
	}
	db := s.db.WithContext(ctx)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector ensure index: %w", err)
		}
	}
	s.ensured = true
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	ns := vectorstore.Namespace(namespace)
	rows := make([]row, 0, len(vectors))
	for _, v := range vectors {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("vector id is required")
		}
		if len(v.Values) != s.cfg.Dimension {
			return fmt.Errorf("vector %q dimension mismatch: expected=%d got=%d", v.ID, s.cfg.Dimension, len(v.Values))
		}
		meta, err := json.Marshal(nonNilMeta(v.Metadata))
		if err != nil {
			return fmt.Errorf("encode metadata for %q: %w", v.ID, err)
		}
		rows = append(rows, row{Namespace: ns, ID: v.ID, Embedding: pgv.NewVector(v.Values), Metadata: datatypes.JSON(meta)})
	}
	return s.db.WithContext(ctx).
		Table(s.cfg.Table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata"}),
		}).
		Create(&rows).Error
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	if len(q) != s.cfg.Dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected=%d got=%d", s.cfg.Dimension, len(q))
	}
	if topK <= 0 {
		topK = 10
	}
	where, args, err := buildWhere(vectorstore.Namespace(namespace), filter)
	if err != nil {
		return nil, err
	}
	qv := pgv.NewVector(q)
	sql := fmt.Sprintf(
		`SELECT id, metadata, 1 - (embedding <=> ?) AS score FROM %s WHERE %s ORDER BY embedding <=> ? LIMIT ?`,
		s.cfg.Table, where,
	)
	params := append([]any{qv}, args...)
	params = append(params, qv, topK)

	var found []struct {
		ID       string
		Metadata datatypes.JSON
		Score    float64
	}
	if err := s.db.WithContext(ctx).Raw(sql, params...).Scan(&found).Error; err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	out := make([]vectorstore.Match, 0, len(found))
	for _, f := range found {
		meta := map[string]any{}
		if len(f.Metadata) > 0 {
			_ = json.Unmarshal(f.Metadata, &meta)
		}
		out = append(out, vectorstore.Match{ID: f.ID, Score: vectorstore.ClampScore(f.Score), Metadata: meta})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE namespace = ? AND id IN ?`, s.cfg.Table)
	return s.db.WithContext(ctx).Exec(sql, vectorstore.Namespace(namespace), ids).Error
}

func (s *Store) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("refusing to delete with an empty filter")
	}
	where, args, err := buildWhere(vectorstore.Namespace(namespace), filter)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.cfg.Table, where), args...).Error
}

func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	var total, inNS int64
	db := s.db.WithContext(ctx)
	if err := db.Table(s.cfg.Table).Count(&total).Error; err != nil {
		return vectorstore.Stats{}, err
	}
	if err := db.Table(s.cfg.Table).Where("namespace = ?", vectorstore.Namespace(namespace)).Count(&inNS).Error; err != nil {
		return vectorstore.Stats{}, err
	}
	return vectorstore.Stats{
		Provider:         s.Provider(),
		Dimension:        s.cfg.Dimension,
		TotalVectors:     total,
		NamespaceVectors: inNS,
	}, nil
}

func nonNilMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ vectorstore.Store = (*Store)(nil)
