package dedupe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/dedupe"
	"github.com/DeafMist/market-news-radar/internal/models"
)

func article(id string, vec ...float64) *models.Article {
	return &models.Article{ID: id, Title: id, Embedding: vec}
}

func TestFirstArticleIsNeverDuplicate(t *testing.T) {
	e := dedupe.NewEngine(0, nil)

	v, err := e.Check(article("a", 1, 0))
	require.NoError(t, err)
	require.False(t, v.IsDuplicate)
	require.Empty(t, v.DuplicateOf)
	require.Zero(t, v.MaxSimilarity)
	require.Empty(t, v.SimilarIDs)
	require.Equal(t, dedupe.DefaultThreshold, e.Threshold())
}

func TestProcessMarksSecondAboveThreshold(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)

	first := article("first", 1, 0.1)
	second := article("second", 1, 0.12)

	_, err := e.Process(first)
	require.NoError(t, err)
	require.False(t, first.IsDuplicate)

	v, err := e.Process(second)
	require.NoError(t, err)
	require.True(t, v.IsDuplicate)
	require.True(t, second.IsDuplicate)
	require.Equal(t, "first", second.DuplicateOf)
	require.Equal(t, []string{"first"}, v.SimilarIDs)
	require.Greater(t, v.MaxSimilarity, 0.99)
}

func TestBelowThresholdBothUnique(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)

	a := article("a", 1, 0)
	b := article("b", 0.5, 0.5)

	_, err := e.Process(a)
	require.NoError(t, err)
	v, err := e.Process(b)
	require.NoError(t, err)

	require.False(t, v.IsDuplicate)
	require.False(t, b.IsDuplicate)
	require.Empty(t, b.DuplicateOf)
	require.InDelta(t, 0.7071, v.MaxSimilarity, 1e-3)
}

func TestThresholdIsInclusive(t *testing.T) {
	e := dedupe.NewEngine(0.5, nil).WithSimilarity(func(_, _ []float64) float64 { return 0.5 })

	_, err := e.Process(article("a", 1))
	require.NoError(t, err)
	v, err := e.Process(article("b", 1))
	require.NoError(t, err)
	require.True(t, v.IsDuplicate)
	require.Equal(t, "a", v.DuplicateOf)
}

func TestDuplicateOfPicksHighestAndKeepsFirstOnTie(t *testing.T) {
	scores := map[string]float64{"a": 0.9, "b": 0.95, "c": 0.95}
	e := dedupe.NewEngine(0.85, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.Record(article(id, 1)))
	}

	var calls []string
	order := []string{"a", "b", "c"}
	e.WithSimilarity(func(_, _ []float64) float64 {
		id := order[len(calls)]
		calls = append(calls, id)
		return scores[id]
	})

	v, err := e.Check(article("d", 1))
	require.NoError(t, err)
	require.True(t, v.IsDuplicate)
	require.Equal(t, "b", v.DuplicateOf)
	require.Equal(t, []string{"a", "b", "c"}, v.SimilarIDs)
}

func TestDuplicateCanPointAtDuplicate(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)

	a := article("a", 1, 0, 0)
	b := article("b", 1, 0.3, 0)
	c := article("c", 1, 0.6, 0)

	for _, art := range []*models.Article{a, b, c} {
		_, err := e.Process(art)
		require.NoError(t, err)
	}

	require.Equal(t, "a", b.DuplicateOf)
	// c is closer to b than to a, so it chains to the duplicate.
	require.Equal(t, "b", c.DuplicateOf)
}

func TestMissingEmbedding(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)

	_, err := e.Check(article("a"))
	require.ErrorIs(t, err, dedupe.ErrMissingEmbedding)

	_, err = e.Process(article("a"))
	require.ErrorIs(t, err, dedupe.ErrMissingEmbedding)

	require.ErrorIs(t, e.Record(article("a")), dedupe.ErrMissingEmbedding)
	require.Zero(t, e.Stats().TotalProcessed)
}

func TestDimensionMismatch(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)
	require.NoError(t, e.Record(article("a", 1, 0)))

	_, err := e.Check(article("b", 1, 0, 0))
	require.ErrorIs(t, err, dedupe.ErrDimensionMismatch)

	require.ErrorIs(t, e.Record(article("b", 1, 0, 0)), dedupe.ErrDimensionMismatch)
	require.Equal(t, 1, e.Stats().TotalProcessed)

	_, err = e.Check(article("c", 0, 1))
	require.NoError(t, err)
}

func TestRollbackForgetsLaterArticles(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)
	_, err := e.Process(article("a", 1, 0))
	require.NoError(t, err)

	mark := e.Mark()
	require.Equal(t, 1, mark)
	_, err = e.Process(article("b", 0, 1))
	require.NoError(t, err)
	_, err = e.Process(article("c", 0, 1))
	require.NoError(t, err)

	e.Rollback(mark)
	require.Equal(t, 1, e.Stats().TotalProcessed)
	require.Empty(t, e.Groups())

	// b is unique again once the rolled back copy is gone.
	v, err := e.Process(article("b", 0, 1))
	require.NoError(t, err)
	require.False(t, v.IsDuplicate)

	e.Rollback(5)
	require.Equal(t, 2, e.Stats().TotalProcessed)
}

func TestRecordIsUnconditional(t *testing.T) {
	e := dedupe.NewEngine(0.85, nil)
	for _, id := range []string{"a", "b", "c"} {
		_, err := e.Process(article(id, 1, 0))
		require.NoError(t, err)
	}

	st := e.Stats()
	require.Equal(t, 3, st.TotalProcessed)
	require.Equal(t, 1, st.UniqueArticles)
	require.Equal(t, 2, st.DuplicateCount)
	require.Equal(t, 1, st.DuplicateGroups)
	require.InDelta(t, 2.0/3.0, st.DuplicateRate, 1e-9)
	require.Equal(t, map[string][]string{"a": {"b", "c"}}, e.Groups())
}
