package models

import "time"

// UniqueStory groups a primary article with the duplicates detected for it.
type UniqueStory struct {
	ID              string        `json:"id"`
	Primary         Article       `json:"primary_article"`
	Duplicates      []Article     `json:"duplicate_articles"`
	Entities        []Entity      `json:"entities"`
	StockImpacts    []StockImpact `json:"stock_impacts"`
	ConfidenceScore float64       `json:"confidence_score"`

	// LoadedDuplicates carries the duplicate count of stories restored from
	// disk, where the duplicate articles themselves are not persisted.
	LoadedDuplicates int `json:"-"`
}

// NumDuplicates reports how many reports were merged into the story.
func (s UniqueStory) NumDuplicates() int {
	if len(s.Duplicates) > 0 {
		return len(s.Duplicates)
	}
	return s.LoadedDuplicates
}

// Impact returns the story's impact for symbol, if any.
func (s UniqueStory) Impact(symbol string) (StockImpact, bool) {
	for _, imp := range s.StockImpacts {
		if imp.Symbol == symbol {
			return imp, true
		}
	}
	return StockImpact{}, false
}

// QueryResult is the ranked answer to a free-text query.
type QueryResult struct {
	Query            string        `json:"query"`
	Stories          []UniqueStory `json:"results"`
	Scores           []float64     `json:"scores"`
	TotalResults     int           `json:"total_results"`
	ProcessingTime   time.Duration `json:"processing_time"`
	ExpansionApplied bool          `json:"expansion_applied"`
}
