// Package catalog holds the static lookup tables used to recognise entities,
// map them to stock symbols and parse queries. The tables are loaded once at
// startup and treated as read-only afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Company maps a lower-cased company key to its listing.
type Company struct {
	Key    string `yaml:"key"`
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// SectorStock is one constituent of a sector with its base confidence.
type SectorStock struct {
	Symbol     string  `yaml:"symbol"`
	Name       string  `yaml:"name"`
	Confidence float64 `yaml:"confidence"`
}

// Sector lists the stocks affected by sector-wide news.
type Sector struct {
	Name   string        `yaml:"name"`
	Stocks []SectorStock `yaml:"stocks"`
}

// Regulator routes regulator mentions to an attenuated sector.
type Regulator struct {
	Label     string   `yaml:"label"`
	Patterns  []string `yaml:"patterns"`
	Sector    string   `yaml:"sector"`
	Factor    float64  `yaml:"factor"`
	Reasoning string   `yaml:"reasoning"`
}

// QueryCompany maps a query phrase to a symbol.
type QueryCompany struct {
	Phrase string `yaml:"phrase"`
	Symbol string `yaml:"symbol"`
}

// QuerySector maps a query phrase to a sector label.
type QuerySector struct {
	Phrase string `yaml:"phrase"`
	Sector string `yaml:"sector"`
}

// Terms are the known names the keyword matcher scans for.
type Terms struct {
	Companies  []string `yaml:"companies"`
	Sectors    []string `yaml:"sectors"`
	Regulators []string `yaml:"regulators"`
}

// Query holds the query parser's vocabulary.
type Query struct {
	Companies []QueryCompany `yaml:"companies"`
	Sectors   []QuerySector  `yaml:"sectors"`
	Stopwords []string       `yaml:"stopwords"`
}

// Catalog is the full set of tables.
type Catalog struct {
	Matcher    Terms       `yaml:"matcher"`
	Companies  []Company   `yaml:"companies"`
	Sectors    []Sector    `yaml:"sectors"`
	Regulators []Regulator `yaml:"regulators"`
	Query      Query       `yaml:"query"`

	companyIndex map[string]Company
	sectorIndex  map[string]Sector
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

func (c *Catalog) validate() error {
	var errs []error
	for _, co := range c.Companies {
		if co.Key == "" || co.Symbol == "" {
			errs = append(errs, fmt.Errorf("company %q: key and symbol are required", co.Key))
		}
	}
	for _, s := range c.Sectors {
		for _, st := range s.Stocks {
			if st.Confidence < 0 || st.Confidence > 1 {
				errs = append(errs, fmt.Errorf("sector %q stock %s: confidence %v out of [0,1]", s.Name, st.Symbol, st.Confidence))
			}
		}
	}
	for _, r := range c.Regulators {
		if r.Factor < 0 || r.Factor > 1 {
			errs = append(errs, fmt.Errorf("regulator %q: factor %v out of [0,1]", r.Label, r.Factor))
		}
		if len(r.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("regulator %q: at least one pattern is required", r.Label))
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) index() {
	c.companyIndex = make(map[string]Company, len(c.Companies))
	for _, co := range c.Companies {
		key := strings.ToLower(co.Key)
		if _, ok := c.companyIndex[key]; !ok {
			c.companyIndex[key] = co
		}
	}
	c.sectorIndex = make(map[string]Sector, len(c.Sectors))
	for _, s := range c.Sectors {
		key := strings.ToLower(s.Name)
		if _, ok := c.sectorIndex[key]; !ok {
			c.sectorIndex[key] = s
		}
	}
}

// Company looks up an exact lower-cased company key.
func (c *Catalog) Company(key string) (Company, bool) {
	co, ok := c.companyIndex[strings.ToLower(key)]
	return co, ok
}

// Sector looks up an exact lower-cased sector name.
func (c *Catalog) Sector(name string) (Sector, bool) {
	s, ok := c.sectorIndex[strings.ToLower(name)]
	return s, ok
}
