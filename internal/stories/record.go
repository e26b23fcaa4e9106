package stories

import (
	"time"

	"github.com/DeafMist/market-news-radar/internal/models"
)

// Record is the persisted form of a story.
type Record struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Source        string         `json:"source"`
	PublishedDate string         `json:"published_date"`
	Entities      []EntityRecord `json:"entities"`
	StockImpacts  []ImpactRecord `json:"stock_impacts"`
	NumDuplicates int            `json:"num_duplicates"`
}

// EntityRecord is the persisted form of an entity.
type EntityRecord struct {
	Name string            `json:"name"`
	Type models.EntityType `json:"type"`
}

// ImpactRecord is the persisted form of a stock impact.
type ImpactRecord struct {
	Symbol     string            `json:"symbol"`
	Company    string            `json:"company"`
	Confidence float64           `json:"confidence"`
	Type       models.ImpactType `json:"type"`
}

// ToRecord flattens a story for persistence.
func ToRecord(s models.UniqueStory) Record {
	r := Record{
		ID:            s.ID,
		Title:         s.Primary.Title,
		Content:       s.Primary.Content,
		Source:        s.Primary.Source,
		PublishedDate: s.Primary.PublishedAt.Format(time.RFC3339),
		Entities:      make([]EntityRecord, 0, len(s.Entities)),
		StockImpacts:  make([]ImpactRecord, 0, len(s.StockImpacts)),
		NumDuplicates: s.NumDuplicates(),
	}
	for _, e := range s.Entities {
		r.Entities = append(r.Entities, EntityRecord{Name: e.Name, Type: e.Type})
	}
	for _, imp := range s.StockImpacts {
		r.StockImpacts = append(r.StockImpacts, ImpactRecord{
			Symbol:     imp.Symbol,
			Company:    imp.CompanyName,
			Confidence: imp.Confidence,
			Type:       imp.Type,
		})
	}
	return r
}

// FromRecord restores a story from its persisted form. Duplicate articles are
// not persisted; only their count survives.
func FromRecord(r Record) models.UniqueStory {
	published, _ := time.Parse(time.RFC3339, r.PublishedDate)

	s := models.UniqueStory{
		ID: r.ID,
		Primary: models.Article{
			ID:          r.ID,
			Title:       r.Title,
			Content:     r.Content,
			Source:      r.Source,
			PublishedAt: published,
		},
		ConfidenceScore:  1.0,
		LoadedDuplicates: r.NumDuplicates,
	}
	for _, e := range r.Entities {
		s.Entities = append(s.Entities, models.Entity{Name: e.Name, Type: e.Type})
	}
	for _, imp := range r.StockImpacts {
		s.StockImpacts = append(s.StockImpacts, models.StockImpact{
			Symbol:      imp.Symbol,
			CompanyName: imp.Company,
			Confidence:  imp.Confidence,
			Type:        imp.Type,
		})
	}
	s.Primary.Entities = s.Entities
	s.Primary.StockImpacts = s.StockImpacts
	return s
}
