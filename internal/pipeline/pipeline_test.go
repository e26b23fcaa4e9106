package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/entities"
	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
	"github.com/DeafMist/market-news-radar/internal/query"
	"github.com/DeafMist/market-news-radar/internal/stories"
)

// stubEmbedder returns the vector registered for the first title found in the
// embedding text, or a fallback vector.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
	failOn  string
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.failOn != "" && strings.HasPrefix(text, s.failOn+" ") {
		return nil, errors.New("provider down")
	}
	for title, vec := range s.vectors {
		if strings.HasPrefix(text, title+" ") {
			return vec, nil
		}
	}
	return []float64{0, 0, 1}, nil
}

type stubIndexer struct {
	batches [][]models.UniqueStory
	err     error
}

func (s *stubIndexer) IndexStories(_ context.Context, batch []models.UniqueStory) error {
	s.batches = append(s.batches, batch)
	return s.err
}

type stubExtractor struct {
	ents []models.Entity
}

func (s *stubExtractor) Extract(context.Context, string, string) ([]models.Entity, entities.Source) {
	return s.ents, entities.SourcePrimary
}

func newPipeline(t *testing.T, opts pipeline.Options) (*pipeline.Pipeline, *stories.Store) {
	t.Helper()
	if opts.Store == nil {
		store, err := stories.Open(t.TempDir(), nil)
		require.NoError(t, err)
		opts.Store = store
	}
	if opts.Embedder == nil {
		opts.Embedder = &stubEmbedder{}
	}
	p, err := pipeline.New(opts)
	require.NoError(t, err)
	return p, opts.Store
}

func hdfcEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float64{
		"HDFC Bank announces 15% dividend": {1, 0, 0},
		"HDFC Bank declares 15% dividend":  {1, 0, 0},
		"Monsoon arrives early":            {0, 1, 0},
	}}
}

func TestNewRequiresEmbedderAndStore(t *testing.T) {
	_, err := pipeline.New(pipeline.Options{})
	require.Error(t, err)

	store, err := stories.Open("", nil)
	require.NoError(t, err)
	_, err = pipeline.New(pipeline.Options{Store: store})
	require.Error(t, err)
}

func TestProcessBatchConsolidatesDuplicates(t *testing.T) {
	idx := &stubIndexer{}
	p, store := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder(), Indexer: idx})

	res, err := p.ProcessBatch(context.Background(), []pipeline.Submission{
		{Title: "HDFC Bank announces 15% dividend", Content: "HDFC Bank board approved a 15% final dividend.", Source: "MoneyControl"},
		{Title: "HDFC Bank declares 15% dividend", Content: "The board of HDFC Bank declared a 15% final dividend.", Source: "Economic Times"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.Len(t, res.Articles, 2)
	require.Equal(t, 1, res.Duplicates())

	first, second := res.Articles[0], res.Articles[1]
	require.False(t, first.IsDuplicate)
	require.True(t, second.IsDuplicate)
	require.Equal(t, first.ID, second.DuplicateOf)

	require.Len(t, res.Stories, 1)
	story := res.Stories[0]
	require.Equal(t, first.ID, story.ID)
	require.Equal(t, 1, story.NumDuplicates())
	require.Equal(t, []models.Entity{
		{Name: "Hdfc Bank", Type: models.EntityCompany, Mentions: 2, Context: "Mentioned 2 time(s) in article"},
	}, story.Entities)

	imp, ok := story.Impact("HDFCBANK")
	require.True(t, ok)
	require.Equal(t, 1.0, imp.Confidence)
	require.Equal(t, models.ImpactDirect, imp.Type)

	require.Equal(t, 1, store.Len())
	require.Len(t, idx.batches, 1)
	require.Len(t, idx.batches[0], 1)

	stats := p.Stats()
	require.Equal(t, 1, stats.Storage.TotalStories)
	require.Equal(t, 2, stats.Dedupe.TotalProcessed)
	require.Equal(t, 1, stats.Dedupe.DuplicateCount)
	require.Equal(t, 2, stats.Extraction.Fallback)
	require.Zero(t, stats.Extraction.Primary)
}

func TestProcessBatchArticleIDs(t *testing.T) {
	p, _ := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder()})

	res, err := p.ProcessBatch(context.Background(), []pipeline.Submission{
		{Title: " Monsoon arrives early ", Content: "Rain.", Source: " IMD "},
	})
	require.NoError(t, err)
	require.Len(t, res.Articles[0].ID, 12)
	require.Equal(t, "Monsoon arrives early", res.Articles[0].Title)
	require.Equal(t, "IMD", res.Articles[0].Source)
	require.False(t, res.Articles[0].PublishedAt.IsZero())
}

func TestProcessBatchTooLarge(t *testing.T) {
	emb := &stubEmbedder{}
	p, store := newPipeline(t, pipeline.Options{Embedder: emb, MaxBatch: 2})
	require.Equal(t, 2, p.MaxBatch())

	subs := make([]pipeline.Submission, 3)
	for i := range subs {
		subs[i] = pipeline.Submission{Title: fmt.Sprintf("t%d", i), Content: "c", Source: "s"}
	}
	_, err := p.ProcessBatch(context.Background(), subs)
	require.ErrorIs(t, err, pipeline.ErrBatchTooLarge)
	require.Zero(t, emb.calls)
	require.Zero(t, store.Len())
}

func TestProcessRejectsInvalidSubmission(t *testing.T) {
	emb := &stubEmbedder{}
	p, store := newPipeline(t, pipeline.Options{Embedder: emb})

	_, err := p.ProcessOne(context.Background(), pipeline.Submission{Title: "  ", Content: "body"})
	require.ErrorIs(t, err, pipeline.ErrInvalidSubmission)

	_, err = p.ProcessBatch(context.Background(), []pipeline.Submission{
		{Title: "ok", Content: "body"},
		{Title: "missing body"},
	})
	require.ErrorIs(t, err, pipeline.ErrInvalidSubmission)
	require.Zero(t, emb.calls)
	require.Zero(t, store.Len())
}

func TestProcessBatchAbortsOnEmbeddingFailure(t *testing.T) {
	idx := &stubIndexer{}
	p, store := newPipeline(t, pipeline.Options{
		Embedder: &stubEmbedder{err: errors.New("provider down")},
		Indexer:  idx,
	})

	_, err := p.ProcessBatch(context.Background(), []pipeline.Submission{
		{Title: "a", Content: "b", Source: "c"},
	})
	require.ErrorContains(t, err, "provider down")
	require.Zero(t, store.Len())
	require.Empty(t, idx.batches)
}

func TestAbortedBatchCanBeRetried(t *testing.T) {
	emb := hdfcEmbedder()
	emb.failOn = "HDFC Bank announces 15% dividend"
	p, store := newPipeline(t, pipeline.Options{Embedder: emb})

	batch := []pipeline.Submission{
		{Title: "Monsoon arrives early", Content: "Rain across Kerala.", Source: "IMD"},
		{Title: "HDFC Bank announces 15% dividend", Content: "Dividend news.", Source: "MoneyControl"},
	}
	_, err := p.ProcessBatch(context.Background(), batch)
	require.ErrorContains(t, err, "provider down")
	require.Zero(t, store.Len())
	require.Zero(t, p.Stats().Dedupe.TotalProcessed)

	emb.failOn = ""
	res, err := p.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Zero(t, res.Duplicates())
	require.Len(t, res.Stories, 2)
	require.Equal(t, 2, store.Len())
	require.Equal(t, 2, p.Stats().Dedupe.TotalProcessed)
}

func TestFailedPersistLeavesNoState(t *testing.T) {
	dir := t.TempDir()
	store, err := stories.Open(dir, nil)
	require.NoError(t, err)
	p, _ := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder(), Store: store})

	// A directory in place of the story file makes the rewrite fail.
	path := filepath.Join(dir, stories.FileName)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

	sub := pipeline.Submission{Title: "Monsoon arrives early", Content: "Rain across Kerala.", Source: "IMD"}
	_, err = p.ProcessOne(context.Background(), sub)
	require.ErrorContains(t, err, "persist stories")
	require.Zero(t, store.Len())
	require.Zero(t, p.Stats().Dedupe.TotalProcessed)
	require.Zero(t, p.Query(query.Request{Query: "monsoon rain", Limit: 10, MinRelevance: 0.1}).TotalResults)

	require.NoError(t, os.RemoveAll(path))
	article, err := p.ProcessOne(context.Background(), sub)
	require.NoError(t, err)
	require.False(t, article.IsDuplicate)
	require.Equal(t, 1, store.Len())
}

func TestIndexerFailureDoesNotFailBatch(t *testing.T) {
	idx := &stubIndexer{err: errors.New("es down")}
	p, store := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder(), Indexer: idx})

	_, err := p.ProcessOne(context.Background(), pipeline.Submission{Title: "Monsoon arrives early", Content: "Rain.", Source: "IMD"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	require.Len(t, idx.batches, 1)
}

func TestDuplicateAcrossBatchesIsDropped(t *testing.T) {
	p, store := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder()})

	first, err := p.ProcessOne(context.Background(), pipeline.Submission{
		Title: "HDFC Bank announces 15% dividend", Content: "Dividend news.", Source: "MoneyControl",
	})
	require.NoError(t, err)
	require.False(t, first.IsDuplicate)

	second, err := p.ProcessOne(context.Background(), pipeline.Submission{
		Title: "HDFC Bank declares 15% dividend", Content: "Dividend news.", Source: "Economic Times",
	})
	require.NoError(t, err)
	require.True(t, second.IsDuplicate)
	require.Equal(t, first.ID, second.DuplicateOf)

	require.Equal(t, 1, store.Len())
	got, ok := store.ByID(first.ID)
	require.True(t, ok)
	require.Zero(t, got.NumDuplicates())
}

func TestPrimaryExtractorFeedsImpacts(t *testing.T) {
	ex := &stubExtractor{ents: []models.Entity{
		{Name: "RBI", Type: models.EntityRegulator, Mentions: 1},
	}}
	p, _ := newPipeline(t, pipeline.Options{Extractor: ex})

	article, err := p.ProcessOne(context.Background(), pipeline.Submission{
		Title: "RBI policy review", Content: "Rates unchanged.", Source: "PTI",
	})
	require.NoError(t, err)
	require.Equal(t, ex.ents, article.Entities)

	symbols := make([]string, 0, len(article.StockImpacts))
	for _, imp := range article.StockImpacts {
		require.Equal(t, models.ImpactRegulatory, imp.Type)
		symbols = append(symbols, imp.Symbol)
	}
	require.Equal(t, []string{"HDFCBANK", "ICICIBANK", "SBIN", "AXISBANK", "KOTAKBANK"}, symbols)
	require.Equal(t, 1, p.Stats().Extraction.Primary)
}

func TestQueryAndLookups(t *testing.T) {
	p, _ := newPipeline(t, pipeline.Options{Embedder: hdfcEmbedder()})

	_, err := p.ProcessBatch(context.Background(), []pipeline.Submission{
		{Title: "HDFC Bank announces 15% dividend", Content: "HDFC Bank board approved a 15% final dividend.", Source: "MoneyControl"},
		{Title: "Monsoon arrives early", Content: "Rain lashes the coast.", Source: "IMD"},
	})
	require.NoError(t, err)

	res := p.Query(query.Request{Query: "HDFC Bank news", Limit: 10, IncludeSectorNews: true, MinRelevance: query.DefaultMinRelevance})
	require.Equal(t, 1, res.TotalResults)
	require.Equal(t, "HDFC Bank announces 15% dividend", res.Stories[0].Primary.Title)

	matches, total := p.StoriesBySymbol("hdfcbank")
	require.Len(t, matches, 1)
	require.Equal(t, 1, total)
	require.Equal(t, 1.0, matches[0].Confidence)

	require.Len(t, p.StoriesByCompany("hdfc"), 1)

	page, total := p.Stories(1, 5)
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
	require.Equal(t, "Monsoon arrives early", page[0].Primary.Title)
}

func TestStoriesBySymbolCapsResults(t *testing.T) {
	ex := &stubExtractor{ents: []models.Entity{{Name: "Infosys", Type: models.EntityCompany, Mentions: 1}}}
	p, _ := newPipeline(t, pipeline.Options{Extractor: ex})

	subs := make([]pipeline.Submission, 12)
	for i := range subs {
		subs[i] = pipeline.Submission{
			Title:       fmt.Sprintf("Infosys update %d", i),
			Content:     "Deal win.",
			Source:      "wire",
			PublishedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		}
	}
	// Every article embeds to the same vector, so only the first is unique.
	_, err := p.ProcessBatch(context.Background(), subs)
	require.NoError(t, err)
	matches, total := p.StoriesBySymbol("INFY")
	require.Len(t, matches, 1)
	require.Equal(t, 1, total)

	emb := &stubEmbedder{vectors: map[string][]float64{}}
	for i := range subs {
		v := make([]float64, len(subs))
		v[i] = 1
		emb.vectors[subs[i].Title] = v
	}
	p2, _ := newPipeline(t, pipeline.Options{Extractor: ex, Embedder: emb})
	_, err = p2.ProcessBatch(context.Background(), subs)
	require.NoError(t, err)
	matches, total = p2.StoriesBySymbol("INFY")
	require.Len(t, matches, pipeline.MaxSymbolStories)
	require.Equal(t, 12, total)
}
