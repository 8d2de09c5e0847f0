package user

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type UserRepo interface {
	GetByEmail(dbc dbctx.Context, email string) (*types.User, error)
	// EnsureByEmail returns the user with u.Email, creating u when absent.
	// Concurrent callers converge on one row through the email unique index.
	EnsureByEmail(dbc dbctx.Context, u *types.User) (*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	var out types.User
	err := dbc.Conn(ur.db).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (ur *userRepo) EnsureByEmail(dbc dbctx.Context, u *types.User) (*types.User, error) {
	if u == nil || strings.TrimSpace(u.Email) == "" {
		return nil, errors.New("user email required")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := ur.GetByEmail(dbc, u.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := dbc.Conn(ur.db).Create(u).Error; err != nil {
		// Lost the race to another creator; read the winner.
		if again, getErr := ur.GetByEmail(dbc, u.Email); getErr == nil {
			return again, nil
		}
		return nil, err
	}
	ur.log.Info("Created account", "email_domain", emailDomain(u.Email), "role", u.Role)
	return u, nil
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
