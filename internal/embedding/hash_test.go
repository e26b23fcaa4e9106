package embedding_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/embedding"
	"github.com/DeafMist/market-news-radar/internal/similarity"
)

func TestHashProviderDeterministic(t *testing.T) {
	p := embedding.NewHashProvider(64)

	a, err := p.Embed(context.Background(), "HDFC Bank announces 15% dividend")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "HDFC Bank announces 15% dividend")
	require.NoError(t, err)

	require.Len(t, a, 64)
	require.Equal(t, a, b)
	require.InDelta(t, 1.0, similarity.Cosine(a, b), 1e-9)
}

func TestHashProviderSimilarTexts(t *testing.T) {
	p := embedding.NewHashProvider(384)
	ctx := context.Background()

	a, _ := p.Embed(ctx, "HDFC Bank announces 15% dividend for shareholders, board approves buyback")
	b, _ := p.Embed(ctx, "HDFC Bank announces 15% dividend for shareholders; board approves the buyback")
	c, _ := p.Embed(ctx, "Monsoon rainfall forecast revised upward by weather office")

	require.Greater(t, similarity.Cosine(a, b), 0.85)
	require.Less(t, similarity.Cosine(a, c), 0.5)
}

func TestHashProviderEmptyText(t *testing.T) {
	p := embedding.NewHashProvider(0)
	v, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, v, 384)
	require.Zero(t, similarity.Cosine(v, v))
}
