package legal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/lexbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	domainlegal "github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/pkg/pointers"
)

func TestLegalDocumentRepoClaimSourceIsInsertOrSkip(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	repo := NewLegalDocumentRepo(db, testutil.Logger(t))

	src := "https://kenyalaw.org/files/" + uuid.NewString() + ".pdf"
	first := &types.LegalDocument{Title: "Employment Act 2007", DocumentType: domainlegal.DocumentTypeAct, SourceURL: pointers.String(src)}
	claimed, err := repo.ClaimSource(dbc, first)
	if err != nil || !claimed {
		t.Fatalf("ClaimSource first: claimed=%v err=%v", claimed, err)
	}

	second := &types.LegalDocument{Title: "Employment Act 2007 copy", DocumentType: domainlegal.DocumentTypeAct, SourceURL: pointers.String("  " + src + " ")}
	claimed, err = repo.ClaimSource(dbc, second)
	if err != nil {
		t.Fatalf("ClaimSource second: %v", err)
	}
	if claimed {
		t.Fatalf("ClaimSource second: want skip for duplicate source url")
	}

	if ok, err := repo.ExistsBySourceURL(dbc, src); err != nil || !ok {
		t.Fatalf("ExistsBySourceURL: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.ExistsBySourceURL(dbc, "https://kenyalaw.org/files/"+uuid.NewString()+".pdf"); err != nil || ok {
		t.Fatalf("ExistsBySourceURL unknown: ok=%v err=%v", ok, err)
	}
}

func TestLegalDocumentRepoSumVectorsCount(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewLegalDocumentRepo(db, testutil.Logger(t))

	before, err := repo.SumVectorsCount(dbc)
	if err != nil {
		t.Fatalf("SumVectorsCount: %v", err)
	}
	for _, n := range []int{3, 4} {
		doc := &types.LegalDocument{Title: "Act", DocumentType: domainlegal.DocumentTypeAct}
		if err := repo.Create(dbc, doc); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.MarkIngested(dbc, doc.ID, n, n); err != nil {
			t.Fatalf("MarkIngested: %v", err)
		}
	}
	after, err := repo.SumVectorsCount(dbc)
	if err != nil || after-before != 7 {
		t.Fatalf("SumVectorsCount: want=+7 got=%d err=%v", after-before, err)
	}
}

func TestLegalDocumentRepoFullDeleteRemovesChunks(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	docs := NewLegalDocumentRepo(db, testutil.Logger(t))
	chunks := NewDocumentChunkRepo(db, testutil.Logger(t))

	doc := &types.LegalDocument{Title: "Land Registration Act", DocumentType: domainlegal.DocumentTypeAct}
	if err := docs.Create(dbc, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rows := []*types.DocumentChunk{
		{DocumentID: doc.ID, ChunkIndex: 0, ChunkText: "a", VectorID: domainlegal.VectorID(doc.ID, 0)},
		{DocumentID: doc.ID, ChunkIndex: 1, ChunkText: "b", VectorID: domainlegal.VectorID(doc.ID, 1)},
	}
	if _, err := chunks.Create(dbc, rows); err != nil {
		t.Fatalf("chunks.Create: %v", err)
	}
	if err := docs.MarkIngested(dbc, doc.ID, 2, 2); err != nil {
		t.Fatalf("MarkIngested: %v", err)
	}
	got, err := docs.GetByID(dbc, doc.ID)
	if err != nil || got.ChunksCount != 2 || got.VectorsCount != 2 || !got.Ingested() {
		t.Fatalf("GetByID after ingest: err=%v doc=%+v", err, got)
	}

	if err := docs.FullDelete(dbc, doc.ID); err != nil {
		t.Fatalf("FullDelete: %v", err)
	}
	if n, err := chunks.CountByDocumentID(dbc, doc.ID); err != nil || n != 0 {
		t.Fatalf("chunks after delete: n=%d err=%v", n, err)
	}
	if _, err := docs.GetByID(dbc, doc.ID); !errors.Is(err, domainlegal.ErrNotFound) {
		t.Fatalf("GetByID after delete: want ErrNotFound got=%v", err)
	}
}
