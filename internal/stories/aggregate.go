// Package stories consolidates processed articles into unique stories and
// keeps the accumulated story list.
package stories

import (
	"github.com/DeafMist/market-news-radar/internal/impact"
	"github.com/DeafMist/market-news-radar/internal/models"
)

// Aggregate groups a batch into stories. Each non-duplicate article becomes a
// story carrying every article of the same batch whose DuplicateOf points at
// it. A duplicate whose target is not part of the batch is dropped.
func Aggregate(articles []models.Article) []models.UniqueStory {
	processed := make(map[string]struct{}, len(articles))
	var out []models.UniqueStory

	for _, article := range articles {
		if _, ok := processed[article.ID]; ok {
			continue
		}
		processed[article.ID] = struct{}{}
		if article.IsDuplicate {
			continue
		}

		var dups []models.Article
		for _, other := range articles {
			if other.IsDuplicate && other.DuplicateOf == article.ID {
				dups = append(dups, other)
				processed[other.ID] = struct{}{}
			}
		}
		out = append(out, NewStory(article, dups))
	}
	return out
}

// Dangling returns the duplicates in the batch whose target is not a
// non-duplicate article of the same batch.
func Dangling(articles []models.Article) []models.Article {
	primaries := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		if !a.IsDuplicate {
			primaries[a.ID] = struct{}{}
		}
	}
	var out []models.Article
	for _, a := range articles {
		if !a.IsDuplicate {
			continue
		}
		if _, ok := primaries[a.DuplicateOf]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// NewStory merges a primary article with its duplicates.
func NewStory(primary models.Article, duplicates []models.Article) models.UniqueStory {
	ents := append([]models.Entity(nil), primary.Entities...)
	imps := append([]models.StockImpact(nil), primary.StockImpacts...)
	for _, d := range duplicates {
		ents = append(ents, d.Entities...)
		imps = append(imps, d.StockImpacts...)
	}

	return models.UniqueStory{
		ID:              primary.ID,
		Primary:         primary,
		Duplicates:      duplicates,
		Entities:        models.UniqueEntities(ents),
		StockImpacts:    impact.MergeImpacts(imps),
		ConfidenceScore: 1.0,
	}
}
