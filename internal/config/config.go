package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding providers.
const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
)

// Common contains Elasticsearch parameters shared by every service. An empty
// address disables the search mirror in the API and the worker.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Pipeline configures the processing core shared by the API and the worker.
type Pipeline struct {
	DuplicateThreshold   float64
	StorageDir           string
	CatalogPath          string
	EmbeddingProvider    string
	EmbeddingDimensions  int
	OpenAIAPIKey         string
	OpenAIEmbeddingModel string
	AnthropicAPIKey      string
	AnthropicModel       string
	MaxBatch             int
}

// Worker holds configuration for the Kafka ingestion worker.
type Worker struct {
	Common
	Pipeline
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	FlushInterval  time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Pipeline
	BindAddr     string
	DefaultLimit int
	MaxLimit     int
	CORSOrigins  []string
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	pipe, err := loadPipeline()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:         loadCommon(""),
		Pipeline:       *pipe,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "market_news_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "news-radar-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 20),
		FlushInterval:  getDuration("WORKER_FLUSH_INTERVAL", "5s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.BatchSize > c.MaxBatch {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE cannot exceed API_MAX_BATCH (%d)", c.MaxBatch)
	}
	if c.FlushInterval <= 0 {
		return nil, fmt.Errorf("WORKER_FLUSH_INTERVAL must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	pipe, err := loadPipeline()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:       loadCommon(""),
		Pipeline:     *pipe,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultLimit: getInt("API_DEFAULT_LIMIT", 10),
		MaxLimit:     getInt("API_MAX_LIMIT", 50),
		CORSOrigins:  splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_LIMIT must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT cannot exceed API_MAX_LIMIT")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    loadCommon("http://elasticsearch:9200"),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.ElasticsearchAddr == "" {
		return nil, fmt.Errorf("ELASTICSEARCH_ADDR is required for retention")
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon(defaultAddr string) Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", defaultAddr),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "stories"),
	}
}

func loadPipeline() (*Pipeline, error) {
	c := &Pipeline{
		DuplicateThreshold:   getFloat("DUPLICATE_THRESHOLD", 0.85),
		StorageDir:           getEnv("STORAGE_DIR", "data/processed"),
		CatalogPath:          getEnv("CATALOG_PATH", ""),
		EmbeddingProvider:    strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingHash)),
		EmbeddingDimensions:  getInt("EMBEDDING_DIMENSIONS", 384),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", ""),
		MaxBatch:             getInt("API_MAX_BATCH", 100),
	}

	if c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("DUPLICATE_THRESHOLD must be in (0, 1]")
	}
	if c.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxBatch <= 0 {
		return nil, fmt.Errorf("API_MAX_BATCH must be positive")
	}

	switch c.EmbeddingProvider {
	case EmbeddingHash:
	case EmbeddingOpenAI:
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q", EmbeddingHash, EmbeddingOpenAI)
	}

	return c, nil
}

// loadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
