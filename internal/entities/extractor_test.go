package entities_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/entities"
	"github.com/DeafMist/market-news-radar/internal/models"
)

type stubExtractor struct {
	res   entities.Result
	calls int
}

func (s *stubExtractor) Extract(context.Context, string, string) entities.Result {
	s.calls++
	return s.res
}

func TestFallbackUsesPrimaryOnSuccess(t *testing.T) {
	primary := &stubExtractor{res: entities.Result{Entities: []models.Entity{
		{Name: "Sashidhar Jagdishan", Type: models.EntityPerson, Mentions: 1},
	}}}
	f := entities.NewFallbackExtractor(primary, entities.NewMatcher(testCatalog(t)), nil)

	got, src := f.Extract(context.Background(), "HDFC Bank", "")
	require.Equal(t, entities.SourcePrimary, src)
	require.Equal(t, 1, primary.calls)
	require.Len(t, got, 1)
	require.Equal(t, models.EntityPerson, got[0].Type)
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &stubExtractor{res: entities.Result{Err: errors.New("boom")}}
	f := entities.NewFallbackExtractor(primary, entities.NewMatcher(testCatalog(t)), nil)

	got, src := f.Extract(context.Background(), "HDFC Bank dividend", "")
	require.Equal(t, entities.SourceFallback, src)
	require.Len(t, got, 1)
	require.Equal(t, "Hdfc Bank", got[0].Name)
}

func TestFallbackWithoutPrimary(t *testing.T) {
	f := entities.NewFallbackExtractor(nil, entities.NewMatcher(testCatalog(t)), nil)
	got, src := f.Extract(context.Background(), "SEBI tightens rules", "")
	require.Equal(t, entities.SourceFallback, src)
	require.Equal(t, "SEBI", got[0].Name)
}

func TestNilLLMExtractorIsUnavailable(t *testing.T) {
	l := entities.NewLLMExtractor("", "")
	require.Nil(t, l)
	res := l.Extract(context.Background(), "t", "c")
	require.ErrorIs(t, res.Err, entities.ErrUnavailable)
}
