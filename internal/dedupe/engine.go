package dedupe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/similarity"
)

// DefaultThreshold is the cosine similarity at which two articles are
// considered the same story.
const DefaultThreshold = 0.85

var (
	// ErrMissingEmbedding means the caller did not embed the article first.
	ErrMissingEmbedding = errors.New("article has no embedding")
	// ErrDimensionMismatch means the vector width differs from earlier articles.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Verdict is the outcome of comparing an article against everything seen so far.
type Verdict struct {
	IsDuplicate   bool
	DuplicateOf   string
	MaxSimilarity float64
	SimilarIDs    []string
}

// SimilarityFunc scores two vectors.
type SimilarityFunc func(a, b []float64) float64

type seenArticle struct {
	id          string
	vector      []float64
	duplicateOf string
}

// Engine detects near-duplicate articles by scanning every previously
// recorded embedding. It keeps no index; each check is O(n).
type Engine struct {
	mu        sync.Mutex
	threshold float64
	sim       SimilarityFunc
	seen      []seenArticle
	log       *slog.Logger
}

// NewEngine returns an engine using cosine similarity. A non-positive
// threshold selects DefaultThreshold.
func NewEngine(threshold float64, log *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{threshold: threshold, sim: similarity.Cosine, log: log}
}

// WithSimilarity swaps the scoring function.
func (e *Engine) WithSimilarity(fn SimilarityFunc) *Engine {
	e.sim = fn
	return e
}

// Threshold reports the configured duplicate threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Check compares article against every recorded article without recording it.
func (e *Engine) Check(article *models.Article) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.check(article)
}

func (e *Engine) check(article *models.Article) (Verdict, error) {
	if len(article.Embedding) == 0 {
		return Verdict{}, fmt.Errorf("check %s: %w", article.ID, ErrMissingEmbedding)
	}

	var v Verdict
	for _, s := range e.seen {
		if len(s.vector) != len(article.Embedding) {
			return Verdict{}, fmt.Errorf("check %s against %s: %w", article.ID, s.id, ErrDimensionMismatch)
		}
		score := e.sim(article.Embedding, s.vector)
		// Strict comparison keeps the earliest article on ties.
		if score > v.MaxSimilarity {
			v.MaxSimilarity = score
			v.DuplicateOf = s.id
		}
		if score >= e.threshold {
			v.SimilarIDs = append(v.SimilarIDs, s.id)
		}
	}

	v.IsDuplicate = v.MaxSimilarity >= e.threshold
	if !v.IsDuplicate {
		v.DuplicateOf = ""
	}
	return v, nil
}

// Record appends article to the seen set regardless of its verdict.
func (e *Engine) Record(article *models.Article) error {
	if len(article.Embedding) == 0 {
		return fmt.Errorf("record %s: %w", article.ID, ErrMissingEmbedding)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.seen) > 0 && len(e.seen[0].vector) != len(article.Embedding) {
		return fmt.Errorf("record %s: %w", article.ID, ErrDimensionMismatch)
	}
	e.record(article)
	return nil
}

// Mark returns the current size of the seen set, for a later Rollback.
func (e *Engine) Mark() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// Rollback forgets every article recorded after mark was taken.
func (e *Engine) Rollback(mark int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mark < 0 || mark >= len(e.seen) {
		return
	}
	clear(e.seen[mark:])
	e.seen = e.seen[:mark]
}

func (e *Engine) record(article *models.Article) {
	e.seen = append(e.seen, seenArticle{
		id:          article.ID,
		vector:      article.Embedding,
		duplicateOf: article.DuplicateOf,
	})
}

// Process checks article, sets its duplicate flags and records it.
func (e *Engine) Process(article *models.Article) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.check(article)
	if err != nil {
		return Verdict{}, err
	}
	if v.IsDuplicate {
		article.MarkDuplicate(v.DuplicateOf)
		e.log.Info("duplicate article",
			slog.String("id", article.ID),
			slog.String("duplicate_of", v.DuplicateOf),
			slog.Float64("similarity", v.MaxSimilarity),
			slog.Int("similar", len(v.SimilarIDs)),
		)
	} else {
		article.MarkUnique()
		e.log.Debug("unique article",
			slog.String("id", article.ID),
			slog.Float64("max_similarity", v.MaxSimilarity),
		)
	}
	e.record(article)
	return v, nil
}

// Groups maps each duplicate target to the ids that point at it.
func (e *Engine) Groups() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups := make(map[string][]string)
	for _, s := range e.seen {
		if s.duplicateOf != "" {
			groups[s.duplicateOf] = append(groups[s.duplicateOf], s.id)
		}
	}
	return groups
}

// Stats summarises what the engine has processed.
type Stats struct {
	TotalProcessed  int     `json:"total_processed"`
	UniqueArticles  int     `json:"unique_articles"`
	DuplicateCount  int     `json:"duplicate_articles"`
	DuplicateRate   float64 `json:"duplicate_rate"`
	DuplicateGroups int     `json:"duplicate_groups"`
	Threshold       float64 `json:"threshold"`
}

// Stats reports counts over the seen set.
func (e *Engine) Stats() Stats {
	groups := e.Groups()

	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		TotalProcessed:  len(e.seen),
		DuplicateGroups: len(groups),
		Threshold:       e.threshold,
	}
	for _, s := range e.seen {
		if s.duplicateOf != "" {
			st.DuplicateCount++
		}
	}
	st.UniqueArticles = st.TotalProcessed - st.DuplicateCount
	if st.TotalProcessed > 0 {
		st.DuplicateRate = float64(st.DuplicateCount) / float64(st.TotalProcessed)
	}
	return st
}
