package user

import (
	"context"
	"testing"

	"github.com/yungbote/lexbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
)

func TestUserRepoEnsureByEmailIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewUserRepo(db, testutil.Logger(t))

	a, err := repo.EnsureByEmail(dbc, &types.User{Email: "Crawler@LexBridge.local", Password: "x", FirstName: "Legal", LastName: "Crawler"})
	if err != nil {
		t.Fatalf("EnsureByEmail first: %v", err)
	}
	b, err := repo.EnsureByEmail(dbc, &types.User{Email: "crawler@lexbridge.local", Password: "y", FirstName: "Other", LastName: "Name"})
	if err != nil {
		t.Fatalf("EnsureByEmail second: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("ids differ: %s vs %s", a.ID, b.ID)
	}
}
