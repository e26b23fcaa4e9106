package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/market-news-radar/internal/bootstrap"
	"github.com/DeafMist/market-news-radar/internal/config"
	"github.com/DeafMist/market-news-radar/internal/logger"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		indexer  pipeline.StoryIndexer
		searcher storySearcher
	)
	if cfg.ElasticsearchAddr != "" {
		esClient, err := bootstrap.ConnectElasticsearch(ctx, cfg.Common, log, 10, 2*time.Second)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		if err := esClient.EnsureIndex(ctx); err != nil {
			log.Error("ensure index", slog.Any("err", err))
			os.Exit(1)
		}
		indexer, searcher = esClient, esClient
	} else {
		log.Info("ELASTICSEARCH_ADDR not set, search mirror disabled")
	}

	pipe, err := bootstrap.Pipeline(cfg.Pipeline, indexer, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, pipe: pipe, search: searcher, now: time.Now}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Batches embed up to API_MAX_BATCH articles through remote providers.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
