package stories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/DeafMist/market-news-radar/internal/logger"
	"github.com/DeafMist/market-news-radar/internal/models"
)

// FileName is the story file written inside the storage directory.
const FileName = "unique_stories.json"

// Store accumulates stories in memory and mirrors the full list to a JSON
// file after every batch. Stories from different batches are never re-merged.
type Store struct {
	mu      sync.RWMutex
	path    string
	stories []models.UniqueStory
	log     *slog.Logger
}

// Open creates the storage directory if needed and loads any stories
// persisted by a previous run. An empty dir keeps everything in memory.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	s := &Store{log: log}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s.path = filepath.Join(dir, FileName)

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stories: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode stories: %w", err)
	}
	for _, r := range records {
		s.stories = append(s.stories, FromRecord(r))
	}
	s.log.Info("loaded stories", slog.String("path", s.path), slog.Int("count", len(records)))
	return nil
}

// Path returns the story file location, empty for an in-memory store.
func (s *Store) Path() string { return s.path }

// Append adds a batch of stories and rewrites the story file. The in-memory
// list only changes once the file has been replaced.
func (s *Store) Append(batch []models.UniqueStory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(s.stories), batch...)
	if s.path == "" {
		s.stories = next
		return nil
	}
	if err := save(s.path, next); err != nil {
		return err
	}
	s.stories = next
	s.log.Debug("saved stories", slog.String("path", s.path), slog.Int("added", len(batch)), slog.Int("total", len(s.stories)))
	return nil
}

func save(path string, list []models.UniqueStory) error {
	records := make([]Record, 0, len(list))
	for _, st := range list {
		records = append(records, ToRecord(st))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp story file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write stories: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close story file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace story file: %w", err)
	}
	return nil
}

// All returns a copy of every stored story in insertion order.
func (s *Store) All() []models.UniqueStory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.UniqueStory(nil), s.stories...)
}

// Len returns the number of stored stories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stories)
}

// Page returns up to limit stories starting at offset.
func (s *Store) Page(offset, limit int) []models.UniqueStory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.stories) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(s.stories) {
		end = len(s.stories)
	}
	return append([]models.UniqueStory(nil), s.stories[offset:end]...)
}

// ByID finds a story by its primary article id.
func (s *Store) ByID(id string) (models.UniqueStory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.stories {
		if st.ID == id {
			return st, true
		}
	}
	return models.UniqueStory{}, false
}

// SymbolMatch is a story annotated with the confidence for one symbol.
type SymbolMatch struct {
	Story      models.UniqueStory
	Confidence float64
}

// BySymbol returns stories whose merged impacts include symbol, compared
// case-insensitively.
func (s *Store) BySymbol(symbol string) []SymbolMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SymbolMatch
	for _, st := range s.stories {
		for _, imp := range st.StockImpacts {
			if strings.EqualFold(imp.Symbol, symbol) {
				out = append(out, SymbolMatch{Story: st, Confidence: imp.Confidence})
				break
			}
		}
	}
	return out
}

// ByCompany returns stories with an entity whose name contains name.
func (s *Store) ByCompany(name string) []models.UniqueStory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(name)
	var out []models.UniqueStory
	for _, st := range s.stories {
		for _, e := range st.Entities {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				out = append(out, st)
				break
			}
		}
	}
	return out
}

// Stats summarises the stored stories.
type Stats struct {
	TotalStories  int    `json:"total_stories"`
	TotalImpacts  int    `json:"total_impacts"`
	TotalEntities int    `json:"total_entities"`
	Path          string `json:"stories_file,omitempty"`
}

// Stats counts stories, entities and impacts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalStories: len(s.stories), Path: s.path}
	for _, story := range s.stories {
		st.TotalImpacts += len(story.StockImpacts)
		st.TotalEntities += len(story.Entities)
	}
	return st
}
