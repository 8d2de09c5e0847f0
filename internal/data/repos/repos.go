package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/data/repos/legal"
	"github.com/yungbote/lexbridge-backend/internal/data/repos/user"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type LegalDocumentRepo = legal.LegalDocumentRepo
type DocumentChunkRepo = legal.DocumentChunkRepo

type Repos struct {
	User          UserRepo
	LegalDocument LegalDocumentRepo
	DocumentChunk DocumentChunkRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		User:          user.NewUserRepo(db, log),
		LegalDocument: legal.NewLegalDocumentRepo(db, log),
		DocumentChunk: legal.NewDocumentChunkRepo(db, log),
	}
}
