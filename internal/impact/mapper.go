// Package impact maps extracted entities to the stock symbols they move.
package impact

import (
	"fmt"
	"strings"

	"github.com/DeafMist/market-news-radar/internal/catalog"
	"github.com/DeafMist/market-news-radar/internal/models"
)

// UnknownSymbol marks a company mention that is not in the catalog.
const UnknownSymbol = "UNKNOWN"

const (
	exactConfidence   = 1.0
	partialConfidence = 0.95
	unknownConfidence = 0.50
)

// Mapper turns entities into stock impacts. It holds no mutable state.
type Mapper struct {
	catalog *catalog.Catalog
}

// NewMapper returns a mapper over the catalog tables.
func NewMapper(c *catalog.Catalog) *Mapper {
	return &Mapper{catalog: c}
}

// MapEntities maps every entity and merges the impacts by symbol.
func (m *Mapper) MapEntities(entities []models.Entity) []models.StockImpact {
	var all []models.StockImpact
	for _, e := range entities {
		all = append(all, m.MapEntity(e)...)
	}
	return MergeImpacts(all)
}

// MapEntity dispatches on the entity type. People and events map to nothing.
func (m *Mapper) MapEntity(e models.Entity) []models.StockImpact {
	switch e.Type {
	case models.EntityCompany:
		return []models.StockImpact{m.mapCompany(e.Name)}
	case models.EntitySector:
		return m.mapSector(e.Name)
	case models.EntityRegulator:
		return m.mapRegulator(e.Name)
	default:
		return nil
	}
}

func (m *Mapper) mapCompany(name string) models.StockImpact {
	lower := strings.ToLower(name)

	if co, ok := m.catalog.Company(lower); ok {
		return models.StockImpact{
			Symbol:      co.Symbol,
			CompanyName: co.Name,
			Confidence:  exactConfidence,
			Type:        models.ImpactDirect,
			Reasoning:   fmt.Sprintf("Direct mention of %s in article", name),
		}
	}

	for _, co := range m.catalog.Companies {
		key := strings.ToLower(co.Key)
		if strings.Contains(lower, key) || strings.Contains(key, lower) {
			return models.StockImpact{
				Symbol:      co.Symbol,
				CompanyName: co.Name,
				Confidence:  partialConfidence,
				Type:        models.ImpactDirect,
				Reasoning:   fmt.Sprintf("Partial match for %s", name),
			}
		}
	}

	return models.StockImpact{
		Symbol:      UnknownSymbol,
		CompanyName: name,
		Confidence:  unknownConfidence,
		Type:        models.ImpactDirect,
		Reasoning:   fmt.Sprintf("Company %s not in mapping database", name),
	}
}

func (m *Mapper) mapSector(name string) []models.StockImpact {
	sector, ok := m.catalog.Sector(name)
	if !ok {
		return nil
	}
	out := make([]models.StockImpact, 0, len(sector.Stocks))
	for _, st := range sector.Stocks {
		out = append(out, models.StockImpact{
			Symbol:      st.Symbol,
			CompanyName: st.Name,
			Confidence:  st.Confidence,
			Type:        models.ImpactSectorWide,
			Reasoning:   fmt.Sprintf("Sector-wide %s news", name),
		})
	}
	return out
}

func (m *Mapper) mapRegulator(name string) []models.StockImpact {
	lower := strings.ToLower(name)

	for _, reg := range m.catalog.Regulators {
		if !containsAny(lower, reg.Patterns) {
			continue
		}
		sector, ok := m.catalog.Sector(reg.Sector)
		if !ok {
			return nil
		}
		out := make([]models.StockImpact, 0, len(sector.Stocks))
		for _, st := range sector.Stocks {
			out = append(out, models.StockImpact{
				Symbol:      st.Symbol,
				CompanyName: st.Name,
				Confidence:  st.Confidence * reg.Factor,
				Type:        models.ImpactRegulatory,
				Reasoning:   reg.Reasoning,
			})
		}
		return out
	}
	return nil
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// MergeImpacts collapses impacts sharing a symbol, keeping the highest
// confidence. Symbols keep the order of their first appearance and an equal
// confidence never replaces the earlier impact.
func MergeImpacts(impacts []models.StockImpact) []models.StockImpact {
	if len(impacts) == 0 {
		return nil
	}
	pos := make(map[string]int, len(impacts))
	out := make([]models.StockImpact, 0, len(impacts))
	for _, imp := range impacts {
		i, ok := pos[imp.Symbol]
		if !ok {
			pos[imp.Symbol] = len(out)
			out = append(out, imp)
			continue
		}
		if imp.Confidence > out[i].Confidence {
			out[i] = imp
		}
	}
	return out
}
