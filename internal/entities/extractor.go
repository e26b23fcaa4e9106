package entities

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/DeafMist/market-news-radar/internal/models"
)

// ErrUnavailable is returned by an extractor that is not configured.
var ErrUnavailable = errors.New("entity extractor unavailable")

// Result is the outcome of an extraction attempt. Err is set when the
// extractor could not produce entities; Entities is then ignored.
type Result struct {
	Entities []models.Entity
	Err      error
}

// Extractor produces entities for an article.
type Extractor interface {
	Extract(ctx context.Context, title, content string) Result
}

// Source names which path produced a set of entities.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// FallbackExtractor prefers Primary and downgrades to the keyword matcher
// whenever Primary is missing or reports a failure.
type FallbackExtractor struct {
	primary  Extractor
	fallback *Matcher
	log      *slog.Logger
}

// NewFallbackExtractor wires a primary extractor in front of the matcher.
// primary may be nil.
func NewFallbackExtractor(primary Extractor, fallback *Matcher, log *slog.Logger) *FallbackExtractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FallbackExtractor{primary: primary, fallback: fallback, log: log}
}

// Extract never fails; it reports which path answered.
func (f *FallbackExtractor) Extract(ctx context.Context, title, content string) ([]models.Entity, Source) {
	if f.primary != nil {
		res := f.primary.Extract(ctx, title, content)
		if res.Err == nil {
			return res.Entities, SourcePrimary
		}
		f.log.Warn("entity extraction failed, using keyword matcher", slog.Any("err", res.Err))
	}
	return f.fallback.MatchArticle(title, content), SourceFallback
}
