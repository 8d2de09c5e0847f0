package legal

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lexbridge-backend/internal/domain"
	domainlegal "github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type LegalDocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.LegalDocument) error
	// ClaimSource inserts doc and reports false when another row already
	// holds doc.SourceURL. The unique index decides; there is no pre-read.
	ClaimSource(dbc dbctx.Context, doc *types.LegalDocument) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LegalDocument, error)
	ExistsBySourceURL(dbc dbctx.Context, sourceURL string) (bool, error)
	Count(dbc dbctx.Context) (int64, error)
	SumVectorsCount(dbc dbctx.Context) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkIngested(dbc dbctx.Context, id uuid.UUID, chunks, vectors int) error
	// FullDelete removes the document and its chunks in one transaction.
	FullDelete(dbc dbctx.Context, id uuid.UUID) error
}

type legalDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLegalDocumentRepo(db *gorm.DB, baseLog *logger.Logger) LegalDocumentRepo {
	repoLog := baseLog.With("repo", "LegalDocumentRepo")
	return &legalDocumentRepo{db: db, log: repoLog}
}

func (r *legalDocumentRepo) Create(dbc dbctx.Context, doc *types.LegalDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	normalizeSourceURL(doc)
	return dbc.Conn(r.db).Create(doc).Error
}

func (r *legalDocumentRepo) ClaimSource(dbc dbctx.Context, doc *types.LegalDocument) (bool, error) {
	if doc == nil {
		return false, errors.New("nil document")
	}
	normalizeSourceURL(doc)
	if doc.SourceURL == nil {
		return false, errors.New("claim requires a source url")
	}
	err := dbc.Conn(r.db).Create(doc).Error
	if err == nil {
		return true, nil
	}
	if IsUniqueViolation(err) {
		r.log.Debug("Source already claimed", "source_url", *doc.SourceURL)
		return false, nil
	}
	return false, err
}

func (r *legalDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LegalDocument, error) {
	var out types.LegalDocument
	err := dbc.Conn(r.db).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainlegal.NewError(domainlegal.KindNotFound, "LegalDocumentRepo.GetByID", err)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *legalDocumentRepo) ExistsBySourceURL(dbc dbctx.Context, sourceURL string) (bool, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return false, nil
	}
	var n int64
	if err := dbc.Conn(r.db).Model(&types.LegalDocument{}).
		Where("source_url = ?", sourceURL).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *legalDocumentRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).Model(&types.LegalDocument{}).Count(&n).Error
	return n, err
}

func (r *legalDocumentRepo) SumVectorsCount(dbc dbctx.Context) (int64, error) {
	var total int64
	err := dbc.Conn(r.db).Model(&types.LegalDocument{}).
		Select("COALESCE(SUM(vectors_count), 0)").
		Scan(&total).Error
	return total, err
}

func (r *legalDocumentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Conn(r.db).
		Model(&types.LegalDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *legalDocumentRepo) MarkIngested(dbc dbctx.Context, id uuid.UUID, chunks, vectors int) error {
	now := time.Now().UTC()
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"chunks_count":  chunks,
		"vectors_count": vectors,
		"ingested_at":   now,
	})
}

func (r *legalDocumentRepo) FullDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	run := func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&types.LegalDocument{}).Error
	}
	if dbc.Tx != nil {
		return run(dbc.Conn(r.db))
	}
	return dbc.Conn(r.db).Transaction(run)
}

func normalizeSourceURL(doc *types.LegalDocument) {
	if doc.SourceURL == nil {
		return
	}
	v := strings.TrimSpace(*doc.SourceURL)
	if v == "" {
		doc.SourceURL = nil
		return
	}
	doc.SourceURL = &v
}
