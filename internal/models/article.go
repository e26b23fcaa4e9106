package models

import (
	"strings"
	"time"
)

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityCompany   EntityType = "company"
	EntitySector    EntityType = "sector"
	EntityRegulator EntityType = "regulator"
	EntityPerson    EntityType = "person"
	EntityEvent     EntityType = "event"
)

// ImpactType describes how a stock is affected by an article.
type ImpactType string

const (
	ImpactDirect      ImpactType = "direct"
	ImpactSectorWide  ImpactType = "sector_wide"
	ImpactRegulatory  ImpactType = "regulatory"
	ImpactSupplyChain ImpactType = "supply_chain"
)

// Entity is a named thing mentioned in an article.
type Entity struct {
	Name     string     `json:"name"`
	Type     EntityType `json:"type"`
	Mentions int        `json:"mentions,omitempty"`
	Context  string     `json:"context,omitempty"`
}

// EntityKey identifies an entity for deduplication.
type EntityKey struct {
	Name string
	Type EntityType
}

// Key returns the case-insensitive identity of the entity.
func (e Entity) Key() EntityKey {
	return EntityKey{Name: strings.ToLower(e.Name), Type: e.Type}
}

// StockImpact links an article to a tradable symbol.
type StockImpact struct {
	Symbol      string     `json:"symbol"`
	CompanyName string     `json:"company"`
	Confidence  float64    `json:"confidence"`
	Type        ImpactType `json:"type"`
	Reasoning   string     `json:"reasoning,omitempty"`
}

// Article is a single news report moving through the pipeline.
// Fields after PublishedAt are filled in as the article is processed.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_date"`

	Embedding    []float64     `json:"-"`
	Entities     []Entity      `json:"entities"`
	StockImpacts []StockImpact `json:"stock_impacts"`
	IsDuplicate  bool          `json:"is_duplicate"`
	DuplicateOf  string        `json:"duplicate_of,omitempty"`
}

// MarkDuplicate flags the article as a duplicate of id.
func (a *Article) MarkDuplicate(id string) {
	a.IsDuplicate = id != ""
	a.DuplicateOf = id
}

// MarkUnique clears any duplicate flag.
func (a *Article) MarkUnique() {
	a.IsDuplicate = false
	a.DuplicateOf = ""
}

// UniqueEntities drops entities whose key was already seen, keeping the first.
func UniqueEntities(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[EntityKey]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
