package elasticsearch

import (
	"time"

	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/processing"
)

const (
	keywordLimit  = 8
	keywordMinLen = 4
)

// StoryDocument is the searchable form of a unique story.
type StoryDocument struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Source        string    `json:"source"`
	PublishedDate time.Time `json:"published_date"`
	Keywords      []string  `json:"keywords,omitempty"`
	Symbols       []string  `json:"symbols,omitempty"`
	Entities      []string  `json:"entities,omitempty"`
	NumDuplicates int       `json:"num_duplicates"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// NewStoryDocument flattens a story for indexing.
func NewStoryDocument(story models.UniqueStory, indexedAt time.Time) StoryDocument {
	p := story.Primary
	doc := StoryDocument{
		ID:            story.ID,
		Title:         p.Title,
		Content:       p.Content,
		Source:        p.Source,
		PublishedDate: p.PublishedAt.UTC(),
		Keywords:      processing.ExtractKeywords(p.Title+" "+p.Content, keywordLimit, keywordMinLen),
		NumDuplicates: story.NumDuplicates(),
		IndexedAt:     indexedAt.UTC(),
	}
	for _, imp := range story.StockImpacts {
		doc.Symbols = append(doc.Symbols, imp.Symbol)
	}
	for _, e := range story.Entities {
		doc.Entities = append(doc.Entities, e.Name)
	}
	return doc
}

// indexMapping pins the field types used by filters, sorting and retention.
var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":             map[string]any{"type": "keyword"},
			"title":          map[string]any{"type": "text"},
			"content":        map[string]any{"type": "text"},
			"source":         map[string]any{"type": "keyword"},
			"published_date": map[string]any{"type": "date"},
			"keywords":       map[string]any{"type": "keyword"},
			"symbols":        map[string]any{"type": "keyword"},
			"entities":       map[string]any{"type": "text"},
			"num_duplicates": map[string]any{"type": "integer"},
			"indexed_at":     map[string]any{"type": "date"},
		},
	},
}
