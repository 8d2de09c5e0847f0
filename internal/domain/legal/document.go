package legal

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentTypeConstitution DocumentType = "CONSTITUTION"
	DocumentTypeAct          DocumentType = "ACT"
	DocumentTypeRegulation   DocumentType = "REGULATION"
	DocumentTypeCaseLaw      DocumentType = "CASE_LAW"
	DocumentTypeProcedure    DocumentType = "PROCEDURE"
	DocumentTypeForm         DocumentType = "FORM"
	DocumentTypeGuideline    DocumentType = "GUIDELINE"
	DocumentTypeTreaty       DocumentType = "TREATY"
	DocumentTypeBill         DocumentType = "BILL"
	DocumentTypeOther        DocumentType = "OTHER"
)

var knownDocumentTypes = map[DocumentType]struct{}{
	DocumentTypeConstitution: {}, DocumentTypeAct: {}, DocumentTypeRegulation: {},
	DocumentTypeCaseLaw: {}, DocumentTypeProcedure: {}, DocumentTypeForm: {},
	DocumentTypeGuideline: {}, DocumentTypeTreaty: {}, DocumentTypeBill: {},
	DocumentTypeOther: {},
}

// ParseDocumentType is case-insensitive and maps unknown labels to OTHER.
func ParseDocumentType(s string) DocumentType {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownDocumentTypes[t]; ok {
		return t
	}
	return DocumentTypeOther
}

// LegalDocument is one ingested source. SourceURL is unique when set; crawler
// dedup relies on that constraint rather than a read-then-write check.
type LegalDocument struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string       `gorm:"column:title;not null" json:"title"`
	DocumentType DocumentType `gorm:"column:document_type;not null;index" json:"document_type"`
	Category     string       `gorm:"column:category;index" json:"category"`
	Citation     *string      `gorm:"column:citation" json:"citation,omitempty"`
	SourceURL    *string      `gorm:"column:source_url;uniqueIndex:idx_legal_document_source_url" json:"source_url,omitempty"`

	FilePath     string `gorm:"column:file_path" json:"file_path"`
	FileName     string `gorm:"column:file_name" json:"file_name"`
	FileSize     int64  `gorm:"column:file_size" json:"file_size"`
	ChunksCount  int    `gorm:"column:chunks_count;not null;default:0" json:"chunks_count"`
	VectorsCount int    `gorm:"column:vectors_count;not null;default:0" json:"vectors_count"`

	UploadedBy    uuid.UUID  `gorm:"type:uuid;column:uploaded_by;index" json:"uploaded_by"`
	UploadedAt    time.Time  `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
	EffectiveDate *time.Time `gorm:"column:effective_date" json:"effective_date,omitempty"`
	IngestedAt    *time.Time `gorm:"column:ingested_at;index" json:"ingested_at,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`

	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID;references:ID" json:"chunks,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (LegalDocument) TableName() string { return "legal_document" }

func (d *LegalDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	if d.DocumentType == "" {
		d.DocumentType = DocumentTypeOther
	}
	return nil
}

// Ingested reports whether chunking and vector writes completed.
func (d *LegalDocument) Ingested() bool {
	return d != nil && d.IngestedAt != nil
}
