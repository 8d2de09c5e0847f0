package db

import (
	"fmt"

	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.User{},
		&types.LegalDocument{},
		&types.DocumentChunk{},
	); err != nil {
		return err
	}
	return EnsureLegalIndexes(db)
}

// EnsureLegalIndexes adds indexes gorm tags cannot express. Safe to re-run.
func EnsureLegalIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_legal_document_type_category ON legal_document(document_type, category);`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunk_fallback ON document_chunk(embedding_provider, embedding_fallback);`,
	}
	if db.Dialector.Name() == "postgres" {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_legal_document_metadata_gin ON legal_document USING gin (metadata);`)
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure legal indexes: %w", err)
		}
	}
	return nil
}
