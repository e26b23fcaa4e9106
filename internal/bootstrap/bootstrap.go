// Package bootstrap wires configuration into the services shared by the
// api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/market-news-radar/internal/catalog"
	"github.com/DeafMist/market-news-radar/internal/config"
	"github.com/DeafMist/market-news-radar/internal/dedupe"
	"github.com/DeafMist/market-news-radar/internal/elasticsearch"
	"github.com/DeafMist/market-news-radar/internal/embedding"
	"github.com/DeafMist/market-news-radar/internal/entities"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
	"github.com/DeafMist/market-news-radar/internal/stories"
)

const (
	maxRetryDelay = 30 * time.Second
	pingTimeout   = 5 * time.Second
)

// ConnectElasticsearch creates a client and pings it until it answers,
// backing off exponentially between attempts.
func ConnectElasticsearch(ctx context.Context, common config.Common, log *slog.Logger, attempts int, delay time.Duration) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(common.ElasticsearchAddr, common.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = client.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			log.Info("connected to elasticsearch", slog.String("addr", common.ElasticsearchAddr))
			return client, nil
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", attempts, lastErr)
}

// Catalog loads the tables named by path, or the embedded defaults.
func Catalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

// Embedder selects the embedding provider.
func Embedder(cfg config.Pipeline) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingOpenAI:
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel, cfg.EmbeddingDimensions), nil
	case config.EmbeddingHash, "":
		return embedding.NewHashProvider(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// Pipeline builds the processing pipeline. indexer may be nil.
func Pipeline(cfg config.Pipeline, indexer pipeline.StoryIndexer, log *slog.Logger) (*pipeline.Pipeline, error) {
	cat, err := Catalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	embedder, err := Embedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := stories.Open(cfg.StorageDir, log)
	if err != nil {
		return nil, fmt.Errorf("open story store: %w", err)
	}

	var primary entities.Extractor
	if llm := entities.NewLLMExtractor(cfg.AnthropicAPIKey, cfg.AnthropicModel); llm != nil {
		primary = llm
	} else {
		log.Info("ANTHROPIC_API_KEY not set, using keyword entity matcher")
	}

	log.Info("pipeline configured",
		slog.String("embedding_provider", cfg.EmbeddingProvider),
		slog.Float64("duplicate_threshold", cfg.DuplicateThreshold),
		slog.String("storage", store.Path()),
		slog.Int("stories_loaded", store.Len()),
		slog.Bool("search_mirror", indexer != nil),
	)

	return pipeline.New(pipeline.Options{
		Embedder:  embedder,
		Store:     store,
		Catalog:   cat,
		Dedupe:    dedupe.NewEngine(cfg.DuplicateThreshold, log),
		Extractor: entities.NewFallbackExtractor(primary, entities.NewMatcher(cat), log),
		Indexer:   indexer,
		MaxBatch:  cfg.MaxBatch,
		Logger:    log,
	})
}
