// Package pipeline runs submitted articles through embedding, deduplication,
// entity extraction, impact mapping and story aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/market-news-radar/internal/catalog"
	"github.com/DeafMist/market-news-radar/internal/dedupe"
	"github.com/DeafMist/market-news-radar/internal/embedding"
	"github.com/DeafMist/market-news-radar/internal/entities"
	"github.com/DeafMist/market-news-radar/internal/impact"
	"github.com/DeafMist/market-news-radar/internal/logger"
	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/processing"
	"github.com/DeafMist/market-news-radar/internal/query"
	"github.com/DeafMist/market-news-radar/internal/stories"
)

// DefaultMaxBatch caps the number of submissions in one batch.
const DefaultMaxBatch = 100

// MaxSymbolStories caps the stories returned for a single symbol.
const MaxSymbolStories = 10

var (
	// ErrBatchTooLarge is returned when a batch exceeds the configured cap.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrInvalidSubmission is returned for submissions missing a title or content.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Submission is a raw article as received from a client or feed.
type Submission struct {
	Title       string
	Content     string
	Source      string
	URL         string
	Author      string
	PublishedAt time.Time
}

// EntityExtractor is satisfied by entities.FallbackExtractor.
type EntityExtractor interface {
	Extract(ctx context.Context, title, content string) ([]models.Entity, entities.Source)
}

// StoryIndexer mirrors freshly persisted stories somewhere searchable.
type StoryIndexer interface {
	IndexStories(ctx context.Context, stories []models.UniqueStory) error
}

// Options wires a Pipeline. Embedder and Store are required.
type Options struct {
	Embedder  embedding.Provider
	Store     *stories.Store
	Catalog   *catalog.Catalog
	Dedupe    *dedupe.Engine
	Extractor EntityExtractor
	Indexer   StoryIndexer
	MaxBatch  int
	Logger    *slog.Logger
}

// BatchResult describes one processed batch.
type BatchResult struct {
	ID       string
	Articles []models.Article
	Stories  []models.UniqueStory
}

// Duplicates counts articles flagged as duplicates.
func (r BatchResult) Duplicates() int {
	n := 0
	for _, a := range r.Articles {
		if a.IsDuplicate {
			n++
		}
	}
	return n
}

// ExtractionStats counts which extractor path produced entities.
type ExtractionStats struct {
	Primary  int `json:"primary"`
	Fallback int `json:"fallback"`
}

// Stats aggregates storage, deduplication and extraction counters.
type Stats struct {
	Storage    stories.Stats   `json:"storage"`
	Dedupe     dedupe.Stats    `json:"deduplication"`
	Extraction ExtractionStats `json:"extraction"`
}

// Pipeline processes one request at a time.
type Pipeline struct {
	mu         sync.Mutex
	embedder   embedding.Provider
	store      *stories.Store
	dedupe     *dedupe.Engine
	extractor  EntityExtractor
	mapper     *impact.Mapper
	query      *query.Engine
	indexer    StoryIndexer
	maxBatch   int
	extraction ExtractionStats
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
}

// New validates opts and fills in defaults for the optional collaborators.
func New(opts Options) (*Pipeline, error) {
	if opts.Embedder == nil {
		return nil, errors.New("pipeline: embedder is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: story store is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	dd := opts.Dedupe
	if dd == nil {
		dd = dedupe.NewEngine(dedupe.DefaultThreshold, log)
	}
	ex := opts.Extractor
	if ex == nil {
		ex = entities.NewFallbackExtractor(nil, entities.NewMatcher(cat), log)
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	return &Pipeline{
		embedder:  opts.Embedder,
		store:     opts.Store,
		dedupe:    dd,
		extractor: ex,
		mapper:    impact.NewMapper(cat),
		query:     query.NewEngine(cat),
		indexer:   opts.Indexer,
		maxBatch:  maxBatch,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// MaxBatch reports the batch cap.
func (p *Pipeline) MaxBatch() int { return p.maxBatch }

// ProcessOne runs a single submission as a batch of one.
func (p *Pipeline) ProcessOne(ctx context.Context, sub Submission) (models.Article, error) {
	res, err := p.process(ctx, []Submission{sub})
	if err != nil {
		return models.Article{}, err
	}
	return res.Articles[0], nil
}

// ProcessBatch runs every submission in order. Any failure aborts the whole
// batch: nothing is persisted and the dedupe engine forgets the batch, so a
// retry sees the same verdicts.
func (p *Pipeline) ProcessBatch(ctx context.Context, subs []Submission) (BatchResult, error) {
	if len(subs) > p.maxBatch {
		return BatchResult{}, fmt.Errorf("%d submissions, max %d: %w", len(subs), p.maxBatch, ErrBatchTooLarge)
	}
	return p.process(ctx, subs)
}

func (p *Pipeline) process(ctx context.Context, subs []Submission) (BatchResult, error) {
	for i, sub := range subs {
		if strings.TrimSpace(sub.Title) == "" || strings.TrimSpace(sub.Content) == "" {
			return BatchResult{}, fmt.Errorf("submission %d: title and content are required: %w", i, ErrInvalidSubmission)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := BatchResult{ID: p.newID()}
	log := p.log.With(slog.String("batch_id", res.ID))
	start := p.now()
	mark := p.dedupe.Mark()

	res.Articles = make([]models.Article, 0, len(subs))
	for _, sub := range subs {
		article, err := p.processArticle(ctx, sub)
		if err != nil {
			p.dedupe.Rollback(mark)
			log.Error("batch aborted", slog.Any("err", err), slog.Int("processed", len(res.Articles)))
			return BatchResult{}, err
		}
		res.Articles = append(res.Articles, article)
	}

	res.Stories = stories.Aggregate(res.Articles)
	for _, d := range stories.Dangling(res.Articles) {
		log.Debug("duplicate target outside batch", slog.String("id", d.ID), slog.String("duplicate_of", d.DuplicateOf))
	}

	if err := p.store.Append(res.Stories); err != nil {
		p.dedupe.Rollback(mark)
		log.Error("batch aborted", slog.Any("err", err), slog.Int("processed", len(res.Articles)))
		return BatchResult{}, fmt.Errorf("persist stories: %w", err)
	}

	if p.indexer != nil && len(res.Stories) > 0 {
		if err := p.indexer.IndexStories(ctx, res.Stories); err != nil {
			log.Warn("index stories", slog.Any("err", err))
		}
	}

	log.Info("batch processed",
		slog.Int("articles", len(res.Articles)),
		slog.Int("duplicates", res.Duplicates()),
		slog.Int("stories", len(res.Stories)),
		slog.Duration("elapsed", p.now().Sub(start)),
	)
	return res, nil
}

func (p *Pipeline) processArticle(ctx context.Context, sub Submission) (models.Article, error) {
	title := strings.TrimSpace(sub.Title)
	source := strings.TrimSpace(sub.Source)
	published := sub.PublishedAt
	if published.IsZero() {
		published = p.now().UTC()
	}

	article := models.Article{
		ID:          processing.BuildArticleID(title, source),
		Title:       title,
		Content:     sub.Content,
		Source:      source,
		URL:         sub.URL,
		Author:      sub.Author,
		PublishedAt: published,
	}

	vec, err := p.embedder.Embed(ctx, processing.EmbeddingText(article.Title, article.Content))
	if err != nil {
		return models.Article{}, fmt.Errorf("embed %s: %w", article.ID, err)
	}
	article.Embedding = vec

	if _, err := p.dedupe.Process(&article); err != nil {
		return models.Article{}, fmt.Errorf("dedupe: %w", err)
	}

	ents, src := p.extractor.Extract(ctx, article.Title, article.Content)
	if src == entities.SourcePrimary {
		p.extraction.Primary++
	} else {
		p.extraction.Fallback++
	}
	article.Entities = ents
	article.StockImpacts = p.mapper.MapEntities(ents)
	return article, nil
}

// Query ranks every stored story against req.
func (p *Pipeline) Query(req query.Request) models.QueryResult {
	return p.query.Process(p.store.All(), req)
}

// StoriesBySymbol returns up to MaxSymbolStories stories impacting symbol
// and the number of stories that matched before the cap.
func (p *Pipeline) StoriesBySymbol(symbol string) ([]stories.SymbolMatch, int) {
	matches := p.store.BySymbol(symbol)
	total := len(matches)
	if total > MaxSymbolStories {
		matches = matches[:MaxSymbolStories]
	}
	return matches, total
}

// StoriesByCompany returns stories mentioning an entity named like name.
func (p *Pipeline) StoriesByCompany(name string) []models.UniqueStory {
	return p.store.ByCompany(name)
}

// Stories pages through stored stories.
func (p *Pipeline) Stories(offset, limit int) ([]models.UniqueStory, int) {
	return p.store.Page(offset, limit), p.store.Len()
}

// Stats reports counters across the pipeline.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	extraction := p.extraction
	p.mu.Unlock()

	return Stats{
		Storage:    p.store.Stats(),
		Dedupe:     p.dedupe.Stats(),
		Extraction: extraction,
	}
}
