// Package query ranks stories against free-text queries.
package query

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/market-news-radar/internal/catalog"
	"github.com/DeafMist/market-news-radar/internal/models"
)

// Scoring weights.
const (
	symbolWeight  = 1.0
	sectorWeight  = 0.7
	titleKeyword  = 0.5
	bodyKeyword   = 0.3
	minKeywordLen = 4
)

// Defaults applied by callers that do not override them.
const (
	DefaultLimit        = 10
	DefaultMinRelevance = 0.5
)

// Request is a single query. MinRelevance is the lowest score returned;
// stories scoring 0 are never returned, even when MinRelevance is 0 or
// negative.
type Request struct {
	Query             string
	Limit             int
	IncludeSectorNews bool
	MinRelevance      float64
}

// Parsed is what the parser recognised in a query. Symbols and Sectors may
// contain repeats when overlapping phrases match.
type Parsed struct {
	Symbols  []string
	Sectors  []string
	Keywords []string
}

// Engine parses queries and scores stories.
type Engine struct {
	companies []catalog.QueryCompany
	sectors   []catalog.QuerySector
	stopwords map[string]struct{}
	now       func() time.Time
}

// NewEngine builds an engine over the catalog's query vocabulary.
func NewEngine(c *catalog.Catalog) *Engine {
	stop := make(map[string]struct{}, len(c.Query.Stopwords))
	for _, w := range c.Query.Stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Engine{
		companies: c.Query.Companies,
		sectors:   c.Query.Sectors,
		stopwords: stop,
		now:       time.Now,
	}
}

// Parse extracts symbols, sectors and free keywords from query.
func (e *Engine) Parse(query string) Parsed {
	lower := strings.ToLower(query)

	var p Parsed
	for _, c := range e.companies {
		if strings.Contains(lower, c.Phrase) {
			p.Symbols = append(p.Symbols, c.Symbol)
		}
	}
	for _, s := range e.sectors {
		if strings.Contains(lower, s.Phrase) {
			p.Sectors = append(p.Sectors, s.Sector)
		}
	}
	for _, w := range strings.Fields(lower) {
		if utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		if _, stop := e.stopwords[w]; stop {
			continue
		}
		p.Keywords = append(p.Keywords, w)
	}
	return p
}

// Score computes the additive relevance of story for a parsed query.
func (e *Engine) Score(story models.UniqueStory, p Parsed, includeSectorNews bool) float64 {
	var score float64

	for _, symbol := range p.Symbols {
		if imp, ok := story.Impact(symbol); ok {
			score += symbolWeight * imp.Confidence
		}
	}

	if includeSectorNews {
		for _, sector := range p.Sectors {
			for _, ent := range story.Entities {
				if strings.Contains(strings.ToLower(ent.Name), sector) {
					score += sectorWeight
					break
				}
			}
		}
	}

	title := strings.ToLower(story.Primary.Title)
	body := strings.ToLower(story.Primary.Content)
	for _, kw := range p.Keywords {
		if strings.Contains(title, kw) {
			score += titleKeyword
		} else if strings.Contains(body, kw) {
			score += bodyKeyword
		}
	}
	return score
}

// Process scores every story, drops those under the relevance floor and
// returns the rest by descending relevance, ties in input order. A story that
// scores zero is never returned, so an empty query matches nothing.
func (e *Engine) Process(stories []models.UniqueStory, req Request) models.QueryResult {
	start := e.now()

	p := e.Parse(req.Query)

	type scored struct {
		story models.UniqueStory
		score float64
	}
	var hits []scored
	for _, st := range stories {
		score := e.Score(st, p, req.IncludeSectorNews)
		if score >= req.MinRelevance && score > 0 {
			hits = append(hits, scored{story: st, score: score})
		}
	}

	elapsed := e.now().Sub(start)

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	res := models.QueryResult{
		Query:            req.Query,
		Stories:          make([]models.UniqueStory, 0, len(hits)),
		Scores:           make([]float64, 0, len(hits)),
		TotalResults:     len(hits),
		ExpansionApplied: req.IncludeSectorNews && len(p.Sectors) > 0,
	}
	for _, h := range hits {
		res.Stories = append(res.Stories, h.story)
		res.Scores = append(res.Scores, h.score)
	}
	res.ProcessingTime = elapsed
	return res
}
