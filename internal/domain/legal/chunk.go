package legal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentChunk is immutable once written and removed with its document.
type DocumentChunk struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chunk_doc_index,priority:1" json:"document_id"`
	Document   *LegalDocument `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"-"`

	ChunkIndex int     `gorm:"column:chunk_index;not null;uniqueIndex:idx_document_chunk_doc_index,priority:2" json:"chunk_index"`
	ChunkText  string  `gorm:"column:chunk_text;type:text;not null" json:"chunk_text"`
	VectorID   string  `gorm:"column:vector_id;not null;uniqueIndex" json:"vector_id"`
	TokenCount int     `gorm:"column:token_count;not null;default:0" json:"token_count"`
	Section    *string `gorm:"column:section" json:"section,omitempty"`

	EmbeddingProvider string `gorm:"column:embedding_provider;index" json:"embedding_provider"`
	EmbeddingFallback bool   `gorm:"column:embedding_fallback;not null;default:false;index" json:"embedding_fallback"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// VectorID is the deterministic vector key for a chunk.
func VectorID(documentID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, chunkIndex)
}
