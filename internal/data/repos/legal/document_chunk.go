package legal

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type DocumentChunkRepo interface {
	Create(dbc dbctx.Context, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error)
	ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	CountByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
	Count(dbc dbctx.Context) (int64, error)
	CountFallback(dbc dbctx.Context) (int64, error)
	DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	repoLog := baseLog.With("repo", "DocumentChunkRepo")
	return &documentChunkRepo{db: db, log: repoLog}
}

func (r *documentChunkRepo) Create(dbc dbctx.Context, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	if len(chunks) == 0 {
		return []*types.DocumentChunk{}, nil
	}
	// ChunkText is large; keep batches small.
	const batchSize = 100
	if err := dbc.Conn(r.db).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *documentChunkRepo) ListByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	var results []*types.DocumentChunk
	if err := dbc.Conn(r.db).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) CountByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).Model(&types.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&n).Error
	return n, err
}

func (r *documentChunkRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).Model(&types.DocumentChunk{}).Count(&n).Error
	return n, err
}

func (r *documentChunkRepo) CountFallback(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).Model(&types.DocumentChunk{}).
		Where("embedding_fallback = ?", true).
		Count(&n).Error
	return n, err
}

func (r *documentChunkRepo) DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error {
	return dbc.Conn(r.db).Where("document_id = ?", documentID).Delete(&types.DocumentChunk{}).Error
}
