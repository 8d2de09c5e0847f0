package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion/extractor"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
)

type BatchItem struct {
	File   string `json:"file"`
	Result Result `json:"result"`
}

type BatchFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// BatchResult reports per-file outcomes of a bulk ingestion.
type BatchResult struct {
	Successful []BatchItem    `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
}

func (b BatchResult) SuccessCount() int { return len(b.Successful) }
func (b BatchResult) FailureCount() int { return len(b.Failed) }

// IngestDirectory ingests every supported file under dir in lexical order.
// Per-file failures are recorded and do not stop the batch. meta.Title is
// ignored; each document is titled from its file name.
func (s *Service) IngestDirectory(ctx context.Context, dir string, meta Metadata) (BatchResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch extractor.TypeFromName(path) {
		case extractor.FileTypePDF, extractor.FileTypeDOCX, extractor.FileTypeHTML, extractor.FileTypeText:
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	out := BatchResult{Successful: []BatchItem{}, Failed: []BatchFailure{}}
	for _, path := range paths {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := s.ingestPath(ctx, path, meta)
		if err != nil {
			s.log.Warn("File ingestion failed", "file", path, "error", err)
			out.Failed = append(out.Failed, BatchFailure{File: path, Error: err.Error()})
			continue
		}
		out.Successful = append(out.Successful, BatchItem{File: path, Result: res})
	}
	s.log.Info("Directory ingestion finished",
		"dir", dir,
		"successful", out.SuccessCount(),
		"failed", out.FailureCount(),
	)
	return out, nil
}

func (s *Service) ingestPath(ctx context.Context, path string, meta Metadata) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	meta.Title = TitleFromFileName(path)
	return s.IngestFile(ctx, File{Data: data, Name: filepath.Base(path), Type: extractor.TypeFromName(path)}, meta)
}

// IndexReport compares the relational store with the vector index.
type IndexReport struct {
	Provider         string `json:"provider"`
	Documents        int64  `json:"documents"`
	Chunks           int64  `json:"chunks"`
	FallbackChunks   int64  `json:"fallback_chunks"`
	// RecordedVectors sums LegalDocument.VectorsCount.
	RecordedVectors int64 `json:"recorded_vectors"`
	IndexedVectors   int64  `json:"indexed_vectors"`
	NamespaceVectors int64  `json:"namespace_vectors"`
	Consistent       bool   `json:"consistent"`
}

func (s *Service) IndexReport(ctx context.Context) (IndexReport, error) {
	var rep IndexReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbc := dbctx.Of(gctx)
		var err error
		if rep.Documents, err = s.repos.LegalDocument.Count(dbc); err != nil {
			return err
		}
		if rep.Chunks, err = s.repos.DocumentChunk.Count(dbc); err != nil {
			return err
		}
		if rep.FallbackChunks, err = s.repos.DocumentChunk.CountFallback(dbc); err != nil {
			return err
		}
		rep.RecordedVectors, err = s.repos.LegalDocument.SumVectorsCount(dbc)
		return err
	})
	g.Go(func() error {
		st, err := s.index.GetStats(gctx, s.namespace)
		if err != nil {
			return err
		}
		rep.Provider = st.Provider
		rep.IndexedVectors = st.TotalVectors
		rep.NamespaceVectors = st.NamespaceVectors
		return nil
	})
	if err := g.Wait(); err != nil {
		return IndexReport{}, err
	}
	rep.Consistent = rep.Chunks == rep.NamespaceVectors && rep.RecordedVectors == rep.NamespaceVectors
	return rep, nil
}
