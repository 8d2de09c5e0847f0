package domain

import (
	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/domain/user"
)

type User = user.User

type LegalDocument = legal.LegalDocument
type DocumentChunk = legal.DocumentChunk
type DocumentType = legal.DocumentType
