// Package entities finds companies, sectors and regulators in article text.
package entities

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DeafMist/market-news-radar/internal/catalog"
	"github.com/DeafMist/market-news-radar/internal/models"
)

// acronymMaxLen is the longest regulator name rendered in upper case.
const acronymMaxLen = 5

// Matcher is the deterministic keyword extractor. It scans the catalog's
// company, sector and regulator terms in that order.
type Matcher struct {
	terms catalog.Terms
}

// NewMatcher builds a matcher over the catalog's known terms.
func NewMatcher(c *catalog.Catalog) *Matcher {
	return &Matcher{terms: c.Matcher}
}

// MatchArticle runs Match over the article's title and body.
func (m *Matcher) MatchArticle(title, content string) []models.Entity {
	return m.Match(title + " " + content)
}

// Match returns the known entities found in text, first occurrence per
// (name, type) kept.
func (m *Matcher) Match(text string) []models.Entity {
	lower := strings.ToLower(text)
	title := cases.Title(language.Und)

	var found []models.Entity
	for _, company := range m.terms.Companies {
		if !strings.Contains(lower, company) {
			continue
		}
		n := strings.Count(lower, company)
		found = append(found, models.Entity{
			Name:     title.String(company),
			Type:     models.EntityCompany,
			Mentions: n,
			Context:  fmt.Sprintf("Mentioned %d time(s) in article", n),
		})
	}

	for _, sector := range m.terms.Sectors {
		if strings.Contains(lower, sector) {
			found = append(found, models.Entity{
				Name:     title.String(sector),
				Type:     models.EntitySector,
				Mentions: 1,
				Context:  "Industry/sector mention",
			})
		}
	}

	for _, regulator := range m.terms.Regulators {
		if !strings.Contains(lower, regulator) {
			continue
		}
		name := title.String(regulator)
		if len(regulator) <= acronymMaxLen {
			name = strings.ToUpper(regulator)
		}
		found = append(found, models.Entity{
			Name:     name,
			Type:     models.EntityRegulator,
			Mentions: 1,
			Context:  "Regulatory body",
		})
	}

	return models.UniqueEntities(found)
}
