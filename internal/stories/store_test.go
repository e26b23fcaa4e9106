package stories_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/models"
	"github.com/DeafMist/market-news-radar/internal/stories"
)

func sampleStory(id string) models.UniqueStory {
	p := models.Article{
		ID:          id,
		Title:       "Title " + id,
		Content:     "Content " + id,
		Source:      "MoneyControl",
		PublishedAt: time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC),
	}
	return stories.NewStory(p, []models.Article{{ID: id + "-dup"}})
}

func withImpact(s models.UniqueStory, symbol string, confidence float64) models.UniqueStory {
	s.StockImpacts = append(s.StockImpacts, models.StockImpact{Symbol: symbol, CompanyName: symbol, Confidence: confidence, Type: models.ImpactDirect})
	s.Entities = append(s.Entities, models.Entity{Name: symbol + " Ltd", Type: models.EntityCompany})
	return s
}

func TestStoreAppendRewritesWholeFile(t *testing.T) {
	dir := t.TempDir()
	store, err := stories.Open(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Append([]models.UniqueStory{withImpact(sampleStory("a"), "HDFCBANK", 1.0)}))
	require.NoError(t, store.Append([]models.UniqueStory{sampleStory("b")}))

	data, err := os.ReadFile(filepath.Join(dir, stories.FileName))
	require.NoError(t, err)

	var records []stories.Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "Title a", records[0].Title)
	require.Equal(t, "2024-11-28T10:00:00Z", records[0].PublishedDate)
	require.Equal(t, 1, records[0].NumDuplicates)
	require.Equal(t, []stories.ImpactRecord{{Symbol: "HDFCBANK", Company: "HDFCBANK", Confidence: 1.0, Type: models.ImpactDirect}}, records[0].StockImpacts)
	require.Equal(t, []stories.EntityRecord{{Name: "HDFCBANK Ltd", Type: models.EntityCompany}}, records[0].Entities)
}

func TestStoreReloadsPersistedStories(t *testing.T) {
	dir := t.TempDir()
	store, err := stories.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append([]models.UniqueStory{withImpact(sampleStory("a"), "TCS", 0.95)}))

	reopened, err := stories.Open(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())

	st, ok := reopened.ByID("a")
	require.True(t, ok)
	require.Equal(t, 1, st.NumDuplicates())
	require.Equal(t, "Content a", st.Primary.Content)
	require.True(t, st.Primary.PublishedAt.Equal(time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)))

	imp, ok := st.Impact("TCS")
	require.True(t, ok)
	require.Equal(t, 0.95, imp.Confidence)
}

func TestStoreOpenRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stories.FileName), []byte("{not json"), 0o644))
	_, err := stories.Open(dir, nil)
	require.Error(t, err)
}

func TestStoreInMemory(t *testing.T) {
	store, err := stories.Open("", nil)
	require.NoError(t, err)
	require.NoError(t, store.Append([]models.UniqueStory{sampleStory("a")}))
	require.Empty(t, store.Path())
	require.Equal(t, 1, store.Len())
}

func TestStoreBySymbolIsCaseInsensitive(t *testing.T) {
	store, err := stories.Open("", nil)
	require.NoError(t, err)
	require.NoError(t, store.Append([]models.UniqueStory{
		withImpact(sampleStory("a"), "HDFCBANK", 0.75),
		withImpact(sampleStory("b"), "TCS", 1.0),
		withImpact(sampleStory("c"), "HDFCBANK", 1.0),
	}))

	got := store.BySymbol("hdfcbank")
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Story.ID)
	require.Equal(t, 0.75, got[0].Confidence)
	require.Equal(t, "c", got[1].Story.ID)
	require.Equal(t, 1.0, got[1].Confidence)

	require.Empty(t, store.BySymbol("INFY"))
}

func TestStoreByCompanyPageAndStats(t *testing.T) {
	store, err := stories.Open("", nil)
	require.NoError(t, err)
	require.NoError(t, store.Append([]models.UniqueStory{
		withImpact(sampleStory("a"), "HDFCBANK", 0.75),
		withImpact(sampleStory("b"), "TCS", 1.0),
		sampleStory("c"),
	}))

	require.Len(t, store.ByCompany("tcs"), 1)

	page := store.Page(1, 5)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].ID)
	require.Empty(t, store.Page(10, 5))
	require.Empty(t, store.Page(0, 0))

	st := store.Stats()
	require.Equal(t, 3, st.TotalStories)
	require.Equal(t, 2, st.TotalImpacts)
	require.Equal(t, 2, st.TotalEntities)
}

func TestStoreFailedAppendKeepsPreviousStories(t *testing.T) {
	dir := t.TempDir()
	store, err := stories.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append([]models.UniqueStory{sampleStory("a")}))

	path := filepath.Join(dir, stories.FileName)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

	err = store.Append([]models.UniqueStory{sampleStory("b")})
	require.Error(t, err)
	require.Equal(t, 1, store.Len())
	_, ok := store.ByID("b")
	require.False(t, ok)

	require.NoError(t, os.RemoveAll(path))
	require.NoError(t, store.Append([]models.UniqueStory{sampleStory("c")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []stories.Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "c", records[1].ID)
}
