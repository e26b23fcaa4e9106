package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/market-news-radar/internal/bootstrap"
	"github.com/DeafMist/market-news-radar/internal/config"
	"github.com/DeafMist/market-news-radar/internal/dedupe"
	"github.com/DeafMist/market-news-radar/internal/logger"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
)

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var indexer pipeline.StoryIndexer
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
		indexer = esClient
	}

	pipe, err := bootstrap.Pipeline(cfg.Pipeline, indexer, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic + "_dlq",
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	defer dlqWriter.Close()

	c := newConsumer(consumerConfig{
		Reader:        reader,
		DLQ:           dlqWriter,
		Processor:     pipe,
		Seen:          dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        log,
	})

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("flush_interval", cfg.FlushInterval),
	)

	c.run(ctx)
	log.Info("worker stopped")
}
